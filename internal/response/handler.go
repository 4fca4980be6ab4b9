// Package response owns the lifecycle of one in-flight model request:
// it accumulates streamed fragments, throttles outline writes, and
// finalizes the destination node on completion, failure, or cancellation.
package response

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadaliao/logseq-reflect-sub001/internal/logging"
	"github.com/kadaliao/logseq-reflect-sub001/internal/outline"
)

// Status is the handler state. Completed, Failed and Cancelled are
// terminal; no transition or content mutation happens past them.
type Status int

const (
	Pending Status = iota
	Streaming
	Completed
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

const (
	// ErrorPrefix marks the destination node after a failure.
	ErrorPrefix = "⚠️ Error: "
	// CancelledMarker replaces the destination content after cancellation.
	CancelledMarker = "(cancelled)"

	defaultInterval = 150 * time.Millisecond
)

// Handler renders one request into a destination node. Fragments update
// the in-memory buffer immediately; the node itself is rewritten by a
// writer goroutine on a minimum delay, so rapid fragments coalesce into
// few outline writes. The terminal write is unconditional and exact.
type Handler struct {
	ID uuid.UUID

	writer   outline.Writer
	target   string
	log      *logging.RequestLogger
	interval time.Duration
	suffix   string
	cancel   context.CancelFunc

	mu            sync.Mutex
	status        Status
	buf           strings.Builder
	errMsg        string
	cancelRequest bool
	startedAt     time.Time
	finishedAt    time.Time
}

// Option configures a handler at construction.
type Option func(*Handler)

// WithInterval overrides the minimum delay between streaming writes.
func WithInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithSuffix appends a fixed string to the completed content, such as a
// "#card" tag.
func WithSuffix(s string) Option {
	return func(h *Handler) { h.suffix = s }
}

// WithCancel wires the handle that aborts the underlying stream read
// when Cancel is called.
func WithCancel(cancel context.CancelFunc) Option {
	return func(h *Handler) { h.cancel = cancel }
}

// New creates a handler in the pending state targeting an existing
// destination node.
func New(w outline.Writer, target string, opts ...Option) *Handler {
	h := &Handler{
		ID:        uuid.New(),
		writer:    w,
		target:    target,
		interval:  defaultInterval,
		status:    Pending,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logging.WithRequestID(logging.CategoryResponse, h.ID.String())
	return h
}

// Status returns the current state.
func (h *Handler) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Accumulated returns the text received so far. It survives failure and
// cancellation even though the rendered node shows a marker instead.
func (h *Handler) Accumulated() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf.String()
}

// ErrMessage returns the failure message, empty unless status is Failed.
func (h *Handler) ErrMessage() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errMsg
}

// Elapsed returns the wall time from creation to finalization, or to
// now while the handler is still live.
func (h *Handler) Elapsed() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finishedAt.IsZero() {
		return time.Since(h.startedAt)
	}
	return h.finishedAt.Sub(h.startedAt)
}

// Cancel requests cancellation. It aborts the in-flight stream read and
// forces the cancelled transition exactly once; repeat calls and calls
// after a terminal state are no-ops.
func (h *Handler) Cancel() {
	h.mu.Lock()
	if h.status.Terminal() || h.cancelRequest {
		h.mu.Unlock()
		return
	}
	h.cancelRequest = true
	cancel := h.cancel
	h.mu.Unlock()

	h.log.Info("cancel requested")
	if cancel != nil {
		cancel()
	}
}

// Run consumes the fragment and error channels until both close, then
// finalizes the destination node and returns the terminal status. The
// cancellation marker write is ordered after any in-flight throttled
// write because the writer goroutine drains before the final write.
func (h *Handler) Run(ctx context.Context, fragments <-chan string, errs <-chan error) Status {
	wake := make(chan struct{}, 1)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(wake, done)
	}()

	var streamErr error
	for fragments != nil || errs != nil {
		select {
		case frag, ok := <-fragments:
			if !ok {
				fragments = nil
				continue
			}
			if frag == "" {
				continue
			}
			if h.append(frag) {
				select {
				case wake <- struct{}{}:
				default:
				}
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && streamErr == nil {
				streamErr = err
			}
		}
	}

	close(done)
	wg.Wait()
	return h.finalize(streamErr)
}

// append records a fragment and moves pending to streaming on the first
// non-empty one. Fragments after a terminal state are dropped.
func (h *Handler) append(frag string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Terminal() {
		return false
	}
	if h.status == Pending {
		h.status = Streaming
		h.log.Debug("pending -> streaming")
	}
	h.buf.WriteString(frag)
	return true
}

// writeLoop is the writer half of the pair: a wake signal arms a delay,
// and when it fires the current buffer snapshot is written. Fragments
// arriving inside the delay coalesce into that one write.
func (h *Handler) writeLoop(wake <-chan struct{}, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-wake:
			select {
			case <-done:
				return
			case <-time.After(h.interval):
				h.writeSnapshot()
			}
		}
	}
}

func (h *Handler) writeSnapshot() {
	h.mu.Lock()
	if h.status != Streaming {
		h.mu.Unlock()
		return
	}
	text := h.buf.String()
	h.mu.Unlock()

	if err := h.writer.SetContent(h.target, text); err != nil {
		h.log.Warn("streaming write failed: %v", err)
		h.noteWriteFailure(err)
	}
}

// noteWriteFailure moves a non-terminal handler to failed when the
// outline rejects a write.
func (h *Handler) noteWriteFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Terminal() {
		return
	}
	h.status = Failed
	h.errMsg = err.Error()
}

func (h *Handler) finalize(streamErr error) Status {
	h.mu.Lock()
	if !h.status.Terminal() {
		switch {
		case h.cancelRequest || errors.Is(streamErr, context.Canceled):
			h.status = Cancelled
		case streamErr != nil:
			h.status = Failed
			h.errMsg = streamErr.Error()
		default:
			h.status = Completed
		}
	}
	h.finishedAt = time.Now()
	status := h.status
	text := h.buf.String()
	errMsg := h.errMsg
	h.mu.Unlock()

	var final string
	switch status {
	case Completed:
		final = text + h.suffix
	case Failed:
		final = ErrorPrefix + errMsg
	case Cancelled:
		final = CancelledMarker
	}
	if err := h.writer.SetContent(h.target, final); err != nil {
		h.log.Error("final write failed: %v", err)
	}

	h.log.Info("%s after %v, %d bytes", status, h.finishedAt.Sub(h.startedAt).Round(time.Millisecond), len(text))
	return status
}
