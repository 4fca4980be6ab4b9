package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadaliao/logseq-reflect-sub001/internal/config"
	"github.com/kadaliao/logseq-reflect-sub001/internal/llm"
	"github.com/kadaliao/logseq-reflect-sub001/internal/outline"
	"github.com/kadaliao/logseq-reflect-sub001/internal/response"
)

// scriptedClient replays canned fragments or a canned completion and
// records the last request it saw.
type scriptedClient struct {
	mu            sync.Mutex
	fragments     []string
	streamErr     error
	completeText  string
	completeErr   error
	lastReq       llm.ChatRequest
	streamCalls   int
	completeCalls int
}

func (c *scriptedClient) Stream(ctx context.Context, req llm.ChatRequest) (<-chan string, <-chan error) {
	c.mu.Lock()
	c.lastReq = req
	c.streamCalls++
	c.mu.Unlock()

	fc := make(chan string, len(c.fragments)+1)
	ec := make(chan error, 1)
	for _, f := range c.fragments {
		fc <- f
	}
	if c.streamErr != nil {
		ec <- c.streamErr
	}
	close(fc)
	close(ec)
	return fc, ec
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.ChatRequest) (string, error) {
	c.mu.Lock()
	c.lastReq = req
	c.completeCalls++
	c.mu.Unlock()
	return c.completeText, c.completeErr
}

func (c *scriptedClient) request() llm.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReq
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Render.DebounceMs = 5
	return cfg
}

func newEngine(t *testing.T, client Client) (*Engine, *outline.MemoryGraph) {
	t.Helper()
	g := outline.NewMemoryGraph()
	return New(g, client, testConfig()), g
}

func TestAskRendersStreamedAnswer(t *testing.T) {
	client := &scriptedClient{fragments: []string{"Recursion ", "is self-reference."}}
	e, g := newEngine(t, client)

	src, err := g.Create(outline.CreateTarget{Page: "notes"}, "Explain recursion")
	require.NoError(t, err)
	g.SetCurrent("notes", src)
	before := len(g.PageTree("notes"))

	status, err := e.Ask(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, response.Completed, status)

	roots := g.PageTree("notes")
	require.Len(t, roots, before+1, "exactly one node appended to the page")
	assert.Equal(t, "Recursion is self-reference.", roots[len(roots)-1].Content)

	req := client.request()
	assert.GreaterOrEqual(t, len(req.Messages), 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Contains(t, req.Messages[1].Content, "Explain recursion")
	assert.True(t, req.Stream)
}

func TestAskPlaceholderUnderSourceParent(t *testing.T) {
	client := &scriptedClient{fragments: []string{"answer"}}
	e, g := newEngine(t, client)

	parent, err := g.Create(outline.CreateTarget{Page: "notes"}, "topic")
	require.NoError(t, err)
	src, err := g.Create(outline.CreateTarget{ParentUUID: parent}, "what is this?")
	require.NoError(t, err)
	g.SetCurrent("notes", src)

	status, err := e.Ask(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, response.Completed, status)

	p, ok := g.Node(parent)
	require.True(t, ok)
	require.Len(t, p.Children, 2, "answer created as sibling of the source")
	n, ok := g.Node(p.Children[1])
	require.True(t, ok)
	assert.Equal(t, "answer", n.Content)
}

func TestSummarizeMidStreamFailure(t *testing.T) {
	client := &scriptedClient{
		fragments: []string{"Start of summary"},
		streamErr: errors.New("stream error: connection reset"),
	}
	e, g := newEngine(t, client)

	src, err := g.Create(outline.CreateTarget{Page: "journal"}, "long day of notes")
	require.NoError(t, err)
	g.SetCurrent("journal", src)

	status, err := e.Summarize(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, response.Failed, status)

	roots := g.PageTree("journal")
	dest := roots[len(roots)-1]
	assert.Contains(t, dest.Content, "Error")
	assert.Contains(t, dest.Content, "connection reset")
}

func TestFlashcardsAppendsCardTag(t *testing.T) {
	client := &scriptedClient{fragments: []string{"What is Go? :: A language"}}
	e, g := newEngine(t, client)

	src, err := g.Create(outline.CreateTarget{Page: "study"}, "Go basics")
	require.NoError(t, err)
	g.SetCurrent("study", src)

	status, err := e.Flashcards(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, response.Completed, status)

	roots := g.PageTree("study")
	dest := roots[len(roots)-1]
	assert.True(t, strings.HasSuffix(dest.Content, " #card"), "got %q", dest.Content)
	assert.Contains(t, dest.Content, "What is Go? :: A language")
}

func TestBreakdownMaterializesSubtasks(t *testing.T) {
	client := &scriptedClient{fragments: []string{"- invite friends\n- buy a cake\n3) order pizza\n"}}
	e, g := newEngine(t, client)

	src, err := g.Create(outline.CreateTarget{Page: "plans"}, "Plan the party")
	require.NoError(t, err)
	g.SetCurrent("plans", src)

	status, err := e.Breakdown(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, response.Completed, status)

	n, ok := g.Node(src)
	require.True(t, ok)
	require.Len(t, n.Children, 3)

	var got []string
	for _, id := range n.Children {
		c, ok := g.Node(id)
		require.True(t, ok)
		got = append(got, c.Content)
	}
	assert.Equal(t, []string{"TODO invite friends", "TODO buy a cake", "TODO order pizza"}, got)

	// Placeholder removed once the children landed.
	for _, root := range g.PageTree("plans") {
		assert.NotEqual(t, Placeholder, root.Content)
		assert.NotContains(t, root.Content, "Error")
	}
	assert.Len(t, g.PageTree("plans"), 1)
}

func TestBreakdownEmptyAnswerKeepsResultNode(t *testing.T) {
	client := &scriptedClient{fragments: []string{"   \n  \n"}}
	e, g := newEngine(t, client)

	src, err := g.Create(outline.CreateTarget{Page: "plans"}, "Do the thing")
	require.NoError(t, err)
	g.SetCurrent("plans", src)

	status, err := e.Breakdown(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, response.Completed, status)

	n, ok := g.Node(src)
	require.True(t, ok)
	assert.Empty(t, n.Children)
	assert.Len(t, g.PageTree("plans"), 2)
}

func TestNonStreamingUsesComplete(t *testing.T) {
	client := &scriptedClient{completeText: "full answer"}
	e, g := newEngine(t, client)

	src, err := g.Create(outline.CreateTarget{Page: "notes"}, "question here")
	require.NoError(t, err)
	require.NoError(t, g.SetProperty(src, "reflect-stream", "false"))
	g.SetCurrent("notes", src)

	status, err := e.Ask(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, response.Completed, status)
	assert.Equal(t, 1, client.completeCalls)
	assert.Equal(t, 0, client.streamCalls)
	assert.False(t, client.request().Stream)

	roots := g.PageTree("notes")
	assert.Equal(t, "full answer", roots[len(roots)-1].Content)
}

func TestUseContextOffSendsBareQuestion(t *testing.T) {
	client := &scriptedClient{fragments: []string{"ok"}}
	e, g := newEngine(t, client)

	_, err := g.Create(outline.CreateTarget{Page: "notes"}, "unrelated sibling content")
	require.NoError(t, err)
	src, err := g.Create(outline.CreateTarget{Page: "notes"}, "just the question")
	require.NoError(t, err)
	require.NoError(t, g.SetProperty(src, "reflect-use-context", "false"))
	g.SetCurrent("notes", src)

	status, err := e.Ask(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, response.Completed, status)

	req := client.request()
	assert.Equal(t, "just the question", req.Messages[1].Content)
	assert.NotContains(t, req.Messages[1].Content, "unrelated sibling")
}

func TestResolvedModelFlowsIntoRequest(t *testing.T) {
	client := &scriptedClient{fragments: []string{"ok"}}
	e, g := newEngine(t, client)

	parent, err := g.Create(outline.CreateTarget{Page: "notes"}, "topic")
	require.NoError(t, err)
	require.NoError(t, g.SetProperty(parent, "reflect-model", "mistral"))
	src, err := g.Create(outline.CreateTarget{ParentUUID: parent}, "question")
	require.NoError(t, err)
	g.SetCurrent("notes", src)

	_, err = e.Ask(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "mistral", client.request().Model)
}

func TestApplyConfigRefreshesResolvedDefaults(t *testing.T) {
	client := &scriptedClient{fragments: []string{"ok"}}
	e, g := newEngine(t, client)

	src, err := g.Create(outline.CreateTarget{Page: "notes"}, "question")
	require.NoError(t, err)
	g.SetCurrent("notes", src)

	_, err = e.Ask(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "llama3", client.request().Model)

	// A config reload swaps the defaults and purges the resolver cache,
	// so the same block resolves against the new model.
	fresh := testConfig()
	fresh.Request.Model = "qwen2"
	e.ApplyConfig(fresh)

	_, err = e.Ask(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "qwen2", client.request().Model)
}

func TestUnknownBlockFails(t *testing.T) {
	client := &scriptedClient{}
	e, _ := newEngine(t, client)

	_, err := e.Ask(context.Background(), "no-such-uuid")
	require.Error(t, err)
	assert.Equal(t, 0, client.streamCalls)
}

func TestCancelWithoutActiveIsNoOp(t *testing.T) {
	e, _ := newEngine(t, &scriptedClient{})
	e.Cancel()
}

func TestTaskLines(t *testing.T) {
	got := taskLines("- one\n* two\n+ three\n1. four\n2) five\nTODO six\n\n  \nseven")
	assert.Equal(t, []string{"one", "two", "three", "four", "five", "six", "seven"}, got)
}

func TestElapsedStaysSane(t *testing.T) {
	client := &scriptedClient{fragments: []string{"x"}}
	e, g := newEngine(t, client)

	src, err := g.Create(outline.CreateTarget{Page: "notes"}, "q")
	require.NoError(t, err)
	g.SetCurrent("notes", src)

	start := time.Now()
	_, err = e.Ask(context.Background(), src)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
