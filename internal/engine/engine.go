// Package engine binds the resolver, assembler, client and response
// handler into the four user-facing operations: ask, summarize,
// flashcards and breakdown.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kadaliao/logseq-reflect-sub001/internal/assembly"
	"github.com/kadaliao/logseq-reflect-sub001/internal/config"
	"github.com/kadaliao/logseq-reflect-sub001/internal/llm"
	"github.com/kadaliao/logseq-reflect-sub001/internal/logging"
	"github.com/kadaliao/logseq-reflect-sub001/internal/outline"
	"github.com/kadaliao/logseq-reflect-sub001/internal/resolver"
	"github.com/kadaliao/logseq-reflect-sub001/internal/response"
)

// Placeholder is the initial text of a destination node while a request
// is in flight.
const Placeholder = "⏳ Thinking…"

// Client is the slice of the model client the engine needs.
type Client interface {
	Stream(ctx context.Context, req llm.ChatRequest) (<-chan string, <-chan error)
	Complete(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Engine runs one operation at a time over an outline host.
type Engine struct {
	graph     outline.Graph
	resolver  *resolver.Resolver
	assembler *assembly.Assembler
	client    Client
	cfg       *config.Config

	mu     sync.Mutex
	active *response.Handler
}

// New wires an engine over the given host and model client.
func New(graph outline.Graph, client Client, cfg *config.Config) *Engine {
	return &Engine{
		graph:     graph,
		resolver:  resolver.New(graph, cfg.Request),
		assembler: assembly.New(graph),
		client:    client,
		cfg:       cfg,
	}
}

// Resolver exposes the property resolver, for the config inspection
// command.
func (e *Engine) Resolver() *resolver.Resolver {
	return e.resolver
}

// ApplyConfig swaps the runtime configuration after a reload. The
// resolver defaults are refreshed, which also purges its cache, so the
// next operation resolves against the new values.
func (e *Engine) ApplyConfig(cfg *config.Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	e.resolver.SetDefaults(cfg.Request)
	logging.Command("configuration applied: model=%s endpoint=%s", cfg.Request.Model, cfg.Endpoint())
}

func (e *Engine) config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Cancel aborts the in-flight operation, if any. Safe to call from a
// signal handler goroutine.
func (e *Engine) Cancel() {
	e.mu.Lock()
	h := e.active
	e.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}

// Ask answers the question held in the node's own content.
func (e *Engine) Ask(ctx context.Context, uuid string) (response.Status, error) {
	return e.run(ctx, uuid, modeAsk)
}

// Summarize condenses the node's page into a short summary.
func (e *Engine) Summarize(ctx context.Context, uuid string) (response.Status, error) {
	return e.run(ctx, uuid, modeSummarize)
}

// Flashcards turns the node's subtree into spaced-repetition cards.
func (e *Engine) Flashcards(ctx context.Context, uuid string) (response.Status, error) {
	return e.run(ctx, uuid, modeFlashcards)
}

// Breakdown splits the node's task into subtasks materialized as child
// nodes of the source.
func (e *Engine) Breakdown(ctx context.Context, uuid string) (response.Status, error) {
	return e.run(ctx, uuid, modeBreakdown)
}

func (e *Engine) run(ctx context.Context, uuid string, m mode) (response.Status, error) {
	node, ok := e.graph.Node(uuid)
	if !ok {
		return response.Failed, fmt.Errorf("block %s not found", uuid)
	}

	res := e.resolver.Resolve(uuid)
	eff := res.Config
	logging.Command("%s: block=%s model=%s stream=%v use_context=%v",
		m.name, uuid, eff.Model, eff.Stream, eff.UseContext)

	var assembled assembly.Context
	if eff.UseContext {
		switch m.kind {
		case assembly.KindSubtree:
			assembled = e.assembler.FromSubtree(uuid)
		default:
			assembled = e.assembler.FromPage(e.pageOf(node))
		}
		assembled = assembly.Truncate(assembled, eff.MaxContextTokens)
	}

	req := llm.ChatRequest{
		Model:       eff.Model,
		Messages:    buildMessages(m.system, assembled.Content, node.Content),
		Temperature: eff.Temperature,
		TopP:        eff.TopP,
		MaxTokens:   eff.MaxTokens,
		Stream:      eff.Stream,
	}

	// The placeholder lands next to the source block: under its parent,
	// or at the end of the page for a root block.
	target := outline.CreateTarget{ParentUUID: node.Parent, Page: e.pageOf(node)}
	placeholder, err := e.graph.Create(target, Placeholder)
	if err != nil {
		return response.Failed, fmt.Errorf("create placeholder: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []response.Option{
		response.WithCancel(cancel),
		response.WithInterval(e.config().Debounce()),
	}
	if m.suffix != "" {
		opts = append(opts, response.WithSuffix(m.suffix))
	}
	h := response.New(e.graph, placeholder, opts...)

	e.mu.Lock()
	e.active = h
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.active = nil
		e.mu.Unlock()
	}()

	var status response.Status
	if eff.Stream {
		fragments, errs := e.client.Stream(streamCtx, req)
		status = h.Run(streamCtx, fragments, errs)
	} else {
		status = e.runNonStreaming(streamCtx, h, req)
	}

	if status == response.Completed && m.materialize {
		e.materializeTasks(uuid, placeholder, h.Accumulated())
	}

	logging.Command("%s: block=%s finished %s in %v", m.name, uuid, status, h.Elapsed())
	return status, nil
}

// runNonStreaming fetches the whole completion and drives the handler
// with it as a single fragment, so both paths share the same terminal
// rendering.
func (e *Engine) runNonStreaming(ctx context.Context, h *response.Handler, req llm.ChatRequest) response.Status {
	fragments := make(chan string, 1)
	errs := make(chan error, 1)

	text, err := e.client.Complete(ctx, req)
	if err != nil {
		errs <- err
	} else if text != "" {
		fragments <- text
	}
	close(fragments)
	close(errs)

	return h.Run(ctx, fragments, errs)
}

func (e *Engine) pageOf(node *outline.Node) string {
	if node.Page != "" {
		return node.Page
	}
	return e.graph.CurrentPage()
}

// buildMessages produces the fixed system instruction followed by one
// user entry carrying the bounded context and the literal block text.
func buildMessages(system, contextText, content string) []llm.Message {
	user := content
	if contextText != "" {
		user = contextText + "\n\n" + content
	}
	return []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

// materializeTasks converts a completed breakdown answer into TODO
// children of the source block and removes the placeholder node.
func (e *Engine) materializeTasks(source, placeholder, text string) {
	tasks := taskLines(text)
	if len(tasks) == 0 {
		logging.CommandDebug("breakdown produced no task lines, keeping result node")
		return
	}

	created := 0
	for _, task := range tasks {
		if _, err := e.graph.Create(outline.CreateTarget{ParentUUID: source}, "TODO "+task); err != nil {
			logging.Get(logging.CategoryCommand).Warn("breakdown: create subtask failed: %v", err)
			continue
		}
		created++
	}
	if created == 0 {
		return
	}
	if err := e.graph.Remove(placeholder); err != nil {
		logging.Get(logging.CategoryCommand).Warn("breakdown: remove placeholder failed: %v", err)
	}
	logging.Command("breakdown: materialized %d subtasks under %s", created, source)
}

// taskLines splits model output into task texts, stripping list markers,
// numbering and any TODO prefix the model already added.
func taskLines(text string) []string {
	var tasks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*+ \t")
		// "1." / "2)" style numbering
		if i := strings.IndexFunc(line, func(r rune) bool { return r < '0' || r > '9' }); i > 0 {
			if line[i] == '.' || line[i] == ')' {
				line = strings.TrimSpace(line[i+1:])
			}
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "TODO "))
		if line == "" {
			continue
		}
		tasks = append(tasks, line)
	}
	return tasks
}
