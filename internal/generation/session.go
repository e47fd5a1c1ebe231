package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/courseforge-backend/internal/outline"
	"github.com/yungbote/courseforge-backend/internal/pkg/logger"
	"github.com/yungbote/courseforge-backend/internal/stream"
	"github.com/yungbote/courseforge-backend/internal/transport"
)

// SessionState tracks the session lifecycle:
// idle -> streaming -> {completed | failed | superseded}.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateSuperseded
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

type PublicationKind int

const (
	// PublicationPartial is a live-preview update derived from the buffer so far.
	PublicationPartial PublicationKind = iota
	// PublicationFinal is the authoritative outline from the done packet.
	PublicationFinal
	// PublicationFailed is the single terminal error after all budgets are
	// spent. It travels the same channel as success so consumers have one
	// code path.
	PublicationFailed
)

// Publication is one update from a session. Consumers must match SessionID
// against the session they currently recognize as live and drop the rest;
// a superseded session's last in-flight publication can race the successor's
// first one at the transport layer.
type Publication struct {
	SessionID uuid.UUID
	Slot      Slot
	Kind      PublicationKind
	Outline   outline.Outline
	// Raw is the text the outline was derived from (the accumulated buffer,
	// or the done packet's raw blob). The edit flow sends it back as
	// originalOutline.
	Raw     string
	Message string
}

// genericFailureMessage deliberately leaks no transport detail.
const genericFailureMessage = "We couldn't generate your outline. Please try again."

// Session drives one logical preview or edit operation: it opens the stream,
// feeds packets through the parser, and publishes incremental then final
// outlines. Whole-session restarts (with growing delay) are its own failure
// budget, separate from the transport-level retry inside the client.
type Session struct {
	ID   uuid.UUID
	Slot Slot

	params          Params
	originalOutline string

	client         *Client
	log            *logger.Logger
	maxRestarts    int
	restartBackoff time.Duration

	ctx        context.Context
	cancel     context.CancelFunc
	cancelOnce sync.Once
	state      atomic.Int32
}

func newSession(parent context.Context, slot Slot, p Params, originalOutline string, client *Client, log *logger.Logger, maxRestarts int, restartBackoff time.Duration) *Session {
	ctx, cancel := context.WithCancel(parent)
	if maxRestarts < 0 {
		maxRestarts = 0
	}
	if restartBackoff <= 0 {
		restartBackoff = 500 * time.Millisecond
	}
	s := &Session{
		ID:              uuid.New(),
		Slot:            slot,
		params:          p,
		originalOutline: originalOutline,
		client:          client,
		maxRestarts:     maxRestarts,
		restartBackoff:  restartBackoff,
		ctx:             ctx,
		cancel:          cancel,
	}
	s.log = log.With("service", "GenerationSession", "sessionID", s.ID.String(), "slot", string(slot))
	return s
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) Params() Params { return s.params }

// Cancel supersedes the session. It is idempotent and safe to call at any
// point, including after completion; the underlying request is aborted
// best-effort via context cancellation.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		s.state.CompareAndSwap(int32(StateIdle), int32(StateSuperseded))
		s.state.CompareAndSwap(int32(StateStreaming), int32(StateSuperseded))
		s.cancel()
	})
}

var errSuperseded = errors.New("session superseded")

// permanentError wraps failures that must not consume the restart budget
// (client errors from the backend).
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Run drives the session to a terminal state, delivering updates through
// publish. It blocks; callers run it on its own goroutine. A superseded
// session stops publishing and emits nothing further.
func (s *Session) Run(publish func(Publication)) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateStreaming)) {
		return
	}

	for attempt := 0; ; attempt++ {
		err := s.streamOnce(publish)
		if err == nil {
			s.state.CompareAndSwap(int32(StateStreaming), int32(StateCompleted))
			return
		}
		if errors.Is(err, errSuperseded) || s.ctx.Err() != nil {
			s.state.CompareAndSwap(int32(StateStreaming), int32(StateSuperseded))
			s.log.Debug("session superseded")
			return
		}

		var perm *permanentError
		if errors.As(err, &perm) || attempt >= s.maxRestarts {
			s.state.CompareAndSwap(int32(StateStreaming), int32(StateFailed))
			s.log.Warn("session failed", "attempt", attempt, "error", err)
			s.publishIfLive(publish, Publication{
				SessionID: s.ID,
				Slot:      s.Slot,
				Kind:      PublicationFailed,
				Message:   genericFailureMessage,
			})
			return
		}

		// Session-level restart: the user keeps seeing the loading state, not
		// an intermediate error.
		delay := time.Duration(attempt+1) * s.restartBackoff
		s.log.Debug("session restarting", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-s.ctx.Done():
			s.state.CompareAndSwap(int32(StateStreaming), int32(StateSuperseded))
			return
		case <-time.After(delay):
		}
	}
}

// streamOnce opens one stream and consumes it to its terminal packet. It
// returns nil on a done packet, errSuperseded on cancellation, a
// *permanentError on client failures, and a plain error for transient ones.
func (s *Session) streamOnce(publish func(Publication)) error {
	reader, closer, err := s.client.OpenStream(s.ctx, s.Slot, s.params, s.originalOutline)
	if err != nil {
		if s.ctx.Err() != nil {
			return errSuperseded
		}
		var httpErr *transport.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			return &permanentError{err: err}
		}
		return fmt.Errorf("open stream: %w", err)
	}
	defer closer.Close()

	var buf strings.Builder

	for {
		pkt, err := reader.Next()
		if err == io.EOF {
			// Stream dropped (or empty) without a done packet.
			return errors.New("stream ended before done packet")
		}
		if err != nil {
			if s.ctx.Err() != nil {
				return errSuperseded
			}
			return fmt.Errorf("read stream: %w", err)
		}

		switch pkt.Type {
		case stream.TypeDelta:
			buf.WriteString(pkt.Text)
			o := outline.Parse(buf.String())
			if !s.publishIfLive(publish, Publication{
				SessionID: s.ID,
				Slot:      s.Slot,
				Kind:      PublicationPartial,
				Outline:   o,
				Raw:       buf.String(),
			}) {
				return errSuperseded
			}

		case stream.TypeDone:
			final, raw := s.resolveFinal(pkt, buf.String())
			if !s.publishIfLive(publish, Publication{
				SessionID: s.ID,
				Slot:      s.Slot,
				Kind:      PublicationFinal,
				Outline:   final,
				Raw:       raw,
			}) {
				return errSuperseded
			}
			return nil

		case stream.TypeError:
			msg := strings.TrimSpace(pkt.Message)
			if msg == "" {
				msg = "generation error"
			}
			return fmt.Errorf("stream error packet: %s", msg)

		default:
			// Unknown packet types are ignored for forward compatibility.
		}
	}
}

// resolveFinal picks the authoritative outline source: server-finalized
// modules, then the server's raw blob, then the locally accumulated buffer.
func (s *Session) resolveFinal(pkt stream.Packet, buffered string) (outline.Outline, string) {
	if len(pkt.Modules) > 0 {
		return outline.Normalize(pkt.Modules), pkt.Raw
	}
	if strings.TrimSpace(pkt.Raw) != "" {
		return outline.Parse(pkt.Raw), pkt.Raw
	}
	return outline.Parse(buffered), buffered
}

// publishIfLive checks cancellation immediately before handing off a
// publication, so a superseded session cannot emit after its token fires.
func (s *Session) publishIfLive(publish func(Publication), pub Publication) bool {
	if s.ctx.Err() != nil {
		return false
	}
	if publish != nil {
		publish(pub)
	}
	return true
}
