package generation

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/courseforge-backend/internal/outline"
	"github.com/yungbote/courseforge-backend/internal/pkg/logger"
)

func runSession(t *testing.T, s *Session) {
	t.Helper()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		s.Run(nil)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not terminate")
	}
}

func TestSessionStreamsToCompletion(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return ndjsonResponse(
			deltaLine(t, "## Module 1: Basics\n- Mean\n"),
			deltaLine(t, "- Median\n"),
			doneLine(t, "## Module 1: Basics\n- Mean\n- Median\n", nil),
		), nil
	})

	s := newSession(context.Background(), SlotPreview, baseParams(), "", client, logger.NewNop(), 0, time.Millisecond)

	var pubs []Publication
	fin := make(chan struct{})
	go func() {
		defer close(fin)
		s.Run(func(p Publication) { pubs = append(pubs, p) })
	}()
	select {
	case <-fin:
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not terminate")
	}

	if s.State() != StateCompleted {
		t.Fatalf("state=%v", s.State())
	}
	if len(pubs) != 3 {
		t.Fatalf("publications=%d", len(pubs))
	}
	if pubs[0].Kind != PublicationPartial || pubs[1].Kind != PublicationPartial {
		t.Fatalf("first two publications must be partial")
	}
	final := pubs[2]
	if final.Kind != PublicationFinal {
		t.Fatalf("final kind=%v", final.Kind)
	}
	if len(final.Outline.Modules) != 1 {
		t.Fatalf("modules=%d", len(final.Outline.Modules))
	}
	m := final.Outline.Modules[0]
	if m.ID != "mod1" || m.Title != "Basics" {
		t.Fatalf("module=%+v", m)
	}
	if len(m.Lessons) != 2 || m.Lessons[0] != "Mean" || m.Lessons[1] != "Median" {
		t.Fatalf("lessons=%v", m.Lessons)
	}
}

func TestSessionPartialsGrowMonotonically(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return ndjsonResponse(
			deltaLine(t, "## Basics\n- Me"),
			deltaLine(t, "an\n- Median\n"),
			doneLine(t, "## Basics\n- Mean\n- Median\n", nil),
		), nil
	})

	s := newSession(context.Background(), SlotPreview, baseParams(), "", client, logger.NewNop(), 0, time.Millisecond)

	var partials []Publication
	fin := make(chan struct{})
	go func() {
		defer close(fin)
		s.Run(func(p Publication) {
			if p.Kind == PublicationPartial {
				partials = append(partials, p)
			}
		})
	}()
	<-fin

	if len(partials) != 2 {
		t.Fatalf("partials=%d", len(partials))
	}
	// Mid-token prefix: "Me" is still the lesson's first line until the next
	// delta completes it.
	if got := partials[0].Outline.Modules[0].Lessons[0]; got != "Me" {
		t.Fatalf("partial lesson=%q", got)
	}
	if got := partials[1].Outline.Modules[0].Lessons[0]; got != "Mean" {
		t.Fatalf("partial lesson=%q", got)
	}
}

func TestSessionRestartBudget(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return ndjsonResponse(`{"type":"error","message":"upstream overloaded"}`), nil
	})

	s := newSession(context.Background(), SlotPreview, baseParams(), "", client, logger.NewNop(), 2, time.Millisecond)

	var failures []Publication
	fin := make(chan struct{})
	go func() {
		defer close(fin)
		s.Run(func(p Publication) {
			if p.Kind == PublicationFailed {
				failures = append(failures, p)
			}
		})
	}()
	select {
	case <-fin:
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not terminate")
	}

	// Initial attempt plus two restarts.
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("stream opens=%d", got)
	}
	if s.State() != StateFailed {
		t.Fatalf("state=%v", s.State())
	}
	if len(failures) != 1 {
		t.Fatalf("failure publications=%d (restarts must stay silent)", len(failures))
	}
	if failures[0].Message != genericFailureMessage {
		t.Fatalf("message=%q", failures[0].Message)
	}
}

func TestSessionDroppedStreamRestarts(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// Deltas but no terminal packet: connection dropped mid-stream.
			return ndjsonResponse(deltaLine(t, "## Basics\n")), nil
		}
		return ndjsonResponse(doneLine(t, "## Basics\n- Mean\n", nil)), nil
	})

	s := newSession(context.Background(), SlotPreview, baseParams(), "", client, logger.NewNop(), 2, time.Millisecond)

	var final *Publication
	fin := make(chan struct{})
	go func() {
		defer close(fin)
		s.Run(func(p Publication) {
			if p.Kind == PublicationFinal {
				final = &p
			}
		})
	}()
	<-fin

	if s.State() != StateCompleted {
		t.Fatalf("state=%v", s.State())
	}
	if final == nil {
		t.Fatalf("no final publication")
	}
	// The restart resets the buffer: no duplicated text from the dead stream.
	if got := final.Outline.Modules[0].Lessons[0]; got != "Mean" {
		t.Fatalf("lesson=%q", got)
	}
}

func TestSessionClientErrorFailsImmediately(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return textResponse(http.StatusBadRequest, `{"error":"invalid params"}`), nil
	})

	s := newSession(context.Background(), SlotPreview, baseParams(), "", client, logger.NewNop(), 5, time.Millisecond)
	var failed int
	fin := make(chan struct{})
	go func() {
		defer close(fin)
		s.Run(func(p Publication) {
			if p.Kind == PublicationFailed {
				failed++
			}
		})
	}()
	<-fin

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls=%d (client errors must not consume the restart budget)", got)
	}
	if s.State() != StateFailed || failed != 1 {
		t.Fatalf("state=%v failed=%d", s.State(), failed)
	}
}

func TestSessionCancelIsIdempotentAndSilent(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		<-release
		return ndjsonResponse(doneLine(t, "## Basics\n- Mean\n", nil)), nil
	})

	s := newSession(context.Background(), SlotPreview, baseParams(), "", client, logger.NewNop(), 0, time.Millisecond)

	var pubs int32
	fin := make(chan struct{})
	go func() {
		defer close(fin)
		s.Run(func(Publication) { atomic.AddInt32(&pubs, 1) })
	}()

	s.Cancel()
	s.Cancel()
	close(release)

	select {
	case <-fin:
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not terminate")
	}
	if s.State() != StateSuperseded {
		t.Fatalf("state=%v", s.State())
	}
	if got := atomic.LoadInt32(&pubs); got != 0 {
		t.Fatalf("publications=%d (superseded sessions must stay silent)", got)
	}
}

func TestSessionCancelAfterCompletionKeepsState(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return ndjsonResponse(doneLine(t, "## Basics\n- Mean\n", nil)), nil
	})

	s := newSession(context.Background(), SlotPreview, baseParams(), "", client, logger.NewNop(), 0, time.Millisecond)
	runSession(t, s)
	if s.State() != StateCompleted {
		t.Fatalf("state=%v", s.State())
	}

	s.Cancel()
	if s.State() != StateCompleted {
		t.Fatalf("cancel after completion must not change state, got %v", s.State())
	}
}

func TestSessionDoneModulesWinOverRaw(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return ndjsonResponse(doneLine(t,
			"## Stale\n- Old\n",
			[]outline.Module{{Title: "Fresh", Lessons: []string{"New"}}},
		)), nil
	})

	s := newSession(context.Background(), SlotPreview, baseParams(), "", client, logger.NewNop(), 0, time.Millisecond)
	var final Publication
	fin := make(chan struct{})
	go func() {
		defer close(fin)
		s.Run(func(p Publication) {
			if p.Kind == PublicationFinal {
				final = p
			}
		})
	}()
	<-fin

	if len(final.Outline.Modules) != 1 || final.Outline.Modules[0].Title != "Fresh" {
		t.Fatalf("outline=%+v (structured modules must win over raw)", final.Outline)
	}
}
