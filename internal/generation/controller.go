package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/courseforge-backend/internal/outline"
	"github.com/yungbote/courseforge-backend/internal/pkg/logger"
)

var (
	ErrBusy           = errors.New("finalize in progress")
	ErrNoOutline      = errors.New("no outline to finalize")
	ErrModuleNotFound = errors.New("module not found")
	ErrLessonIndex    = errors.New("lesson index out of range")
)

// Draft is the server-side snapshot of an in-progress outline, keyed by chat
// session so a reconnecting client resumes where it left off.
type Draft struct {
	Outline     outline.Outline `json:"outline"`
	Raw         string          `json:"raw"`
	Dirty       bool            `json:"dirty"`
	Fingerprint Fingerprint     `json:"fingerprint"`
}

// DraftStore persists drafts between requests. Implementations must be safe
// for concurrent use.
type DraftStore interface {
	SaveDraft(ctx context.Context, key string, d Draft) error
	LoadDraft(ctx context.Context, key string) (Draft, bool, error)
	DeleteDraft(ctx context.Context, key string) error
}

// CourseRecorder persists the course created by a successful finalize.
type CourseRecorder interface {
	RecordFinalized(ctx context.Context, courseID string, o outline.Outline, p Params) error
}

// Controller owns one outline view: the current parameters, the displayed
// outline, and the live generation sessions. It decides when a parameter
// change is allowed to regenerate, keeps user edits from being clobbered,
// and serializes everything through one mutex.
type Controller struct {
	ID uuid.UUID

	client *Client
	log    *logger.Logger

	maxRestarts    int
	restartBackoff time.Duration

	// publish forwards accepted publications downstream (the SSE layer).
	// Called outside the lock.
	publish func(Publication)

	drafts  DraftStore
	courses CourseRecorder

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	sessions    map[Slot]*Session
	params      Params
	fingerprint Fingerprint
	dirty       bool
	busy        bool
	outline     outline.Outline
	raw         string
}

type ControllerOptions struct {
	Client  *Client
	Logger  *logger.Logger
	Publish func(Publication)

	// MaxRestarts and RestartBackoff bound session-level restarts.
	MaxRestarts    int
	RestartBackoff time.Duration

	Drafts  DraftStore
	Courses CourseRecorder
}

func NewController(parent context.Context, p Params, opts ControllerOptions) (*Controller, error) {
	if opts.Client == nil {
		return nil, errors.New("client required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger required")
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	c := &Controller{
		ID:             uuid.New(),
		client:         opts.Client,
		maxRestarts:    opts.MaxRestarts,
		restartBackoff: opts.RestartBackoff,
		publish:        opts.Publish,
		drafts:         opts.Drafts,
		courses:        opts.Courses,
		ctx:            ctx,
		cancel:         cancel,
		sessions:       make(map[Slot]*Session),
		params:         p,
		outline:        outline.Outline{Modules: []outline.Module{}},
	}
	c.log = opts.Logger.With("service", "OutlineController", "controllerID", c.ID.String())
	return c, nil
}

// draftKey prefers the chat session so drafts survive controller churn.
func (c *Controller) draftKey() string {
	if c.params.ChatSessionID != "" {
		return c.params.ChatSessionID
	}
	return c.ID.String()
}

// RestoreDraft loads a previously saved draft, if any, and adopts it as the
// current view. Called once before the first generation.
func (c *Controller) RestoreDraft(ctx context.Context) (bool, error) {
	if c.drafts == nil {
		return false, nil
	}
	c.mu.Lock()
	key := c.draftKey()
	c.mu.Unlock()

	d, ok, err := c.drafts.LoadDraft(ctx, key)
	if err != nil || !ok {
		return false, err
	}

	c.mu.Lock()
	c.outline = d.Outline.Clone()
	c.raw = d.Raw
	c.dirty = d.Dirty
	c.fingerprint = d.Fingerprint
	c.mu.Unlock()
	return true, nil
}

// Generate starts generation for the slot unconditionally (the initial run,
// or an explicit manual trigger). It respects only the busy flag.
func (c *Controller) Generate(slot Slot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	c.startLocked(slot, "")
	return nil
}

// ParamsChanged adopts the new parameter tuple and regenerates only when the
// change is classified auto-regenerate. Manual-only changes (prompt, pasted
// text) wait for an explicit Regenerate.
func (c *Controller) ParamsChanged(p Params) {
	c.mu.Lock()
	trigger := ClassifyChange(c.params, p)
	c.params = p
	started := false
	if trigger == TriggerAuto {
		started = c.evaluateLocked()
	}
	c.mu.Unlock()
	if !started && trigger != TriggerNone {
		c.log.Debug("parameter change deferred", "trigger", trigger)
	}
}

// Regenerate is the explicit user action: it discards edit protection and
// fingerprint suppression and always starts a fresh preview, unless a
// finalize is in flight.
func (c *Controller) Regenerate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	c.dirty = false
	c.fingerprint = ForcedFingerprint
	if !c.evaluateLocked() {
		return errors.New("regenerate suppressed unexpectedly")
	}
	return nil
}

// evaluateLocked applies the suppression chain and starts a preview session
// when regeneration is warranted. Order matters: busy wins over everything,
// an unchanged tuple is a no-op, and user edits block auto regeneration.
func (c *Controller) evaluateLocked() bool {
	if c.busy {
		return false
	}
	if c.params.Fingerprint() == c.fingerprint {
		return false
	}
	if c.dirty {
		return false
	}
	c.startLocked(SlotPreview, "")
	return true
}

// RequestEdit streams an instruction-driven rewrite of the current outline.
// It bypasses fingerprint and dirty checks: edits always run, on their own
// slot, against whatever is currently displayed.
func (c *Controller) RequestEdit(instruction string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	p := c.params
	p.Prompt = instruction
	c.startSessionLocked(SlotEdit, p, c.raw)
	return nil
}

func (c *Controller) startLocked(slot Slot, originalOutline string) {
	c.startSessionLocked(slot, c.params, originalOutline)
}

// startSessionLocked supersedes any live session on the slot and launches a
// new one. The old session's context fires before the new session is
// installed, so its queued publications fail the liveness check.
func (c *Controller) startSessionLocked(slot Slot, p Params, originalOutline string) {
	if live := c.sessions[slot]; live != nil {
		live.Cancel()
	}
	s := newSession(c.ctx, slot, p, originalOutline, c.client, c.log, c.maxRestarts, c.restartBackoff)
	c.sessions[slot] = s
	go s.Run(c.onPublication)
}

// onPublication is every session's sink. Publications from sessions no
// longer installed on their slot are dropped; the rest update the view and
// flow downstream.
func (c *Controller) onPublication(pub Publication) {
	c.mu.Lock()
	live := c.sessions[pub.Slot]
	if live == nil || live.ID != pub.SessionID {
		c.mu.Unlock()
		return
	}

	switch pub.Kind {
	case PublicationPartial:
		c.outline = pub.Outline
		c.raw = pub.Raw
	case PublicationFinal:
		c.outline = pub.Outline
		c.raw = pub.Raw
		c.fingerprint = c.params.Fingerprint()
		c.dirty = false
		c.saveDraftLocked()
	case PublicationFailed:
		// View keeps whatever was last displayed.
	}
	downstream := c.publish
	c.mu.Unlock()

	if downstream != nil {
		downstream(pub)
	}
}

// saveDraftLocked persists the view asynchronously; draft storage is
// best-effort and never blocks the stream.
func (c *Controller) saveDraftLocked() {
	if c.drafts == nil {
		return
	}
	d := Draft{
		Outline:     c.outline.Clone(),
		Raw:         c.raw,
		Dirty:       c.dirty,
		Fingerprint: c.fingerprint,
	}
	key := c.draftKey()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.drafts.SaveDraft(ctx, key, d); err != nil {
			c.log.Warn("draft save failed", "key", key, "error", err)
		}
	}()
}

// --- user edits -------------------------------------------------------------
//
// Each mutation marks the view dirty before touching it, so a racing
// auto-regeneration check can never observe an edited-but-clean outline.

func (c *Controller) SetModuleTitle(moduleID, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.findModuleLocked(moduleID)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, moduleID)
	}
	c.dirty = true
	m.Title = title
	c.rerenderLocked()
	return nil
}

func (c *Controller) SetLesson(moduleID string, index int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.findModuleLocked(moduleID)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, moduleID)
	}
	if index < 0 || index >= len(m.Lessons) {
		return fmt.Errorf("%w: %d", ErrLessonIndex, index)
	}
	c.dirty = true
	m.Lessons[index] = text
	c.rerenderLocked()
	return nil
}

func (c *Controller) InsertLesson(moduleID string, index int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.findModuleLocked(moduleID)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, moduleID)
	}
	if index < 0 || index > len(m.Lessons) {
		return fmt.Errorf("%w: %d", ErrLessonIndex, index)
	}
	c.dirty = true
	m.Lessons = append(m.Lessons, "")
	copy(m.Lessons[index+1:], m.Lessons[index:])
	m.Lessons[index] = text
	c.rerenderLocked()
	return nil
}

func (c *Controller) RemoveLesson(moduleID string, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.findModuleLocked(moduleID)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, moduleID)
	}
	if index < 0 || index >= len(m.Lessons) {
		return fmt.Errorf("%w: %d", ErrLessonIndex, index)
	}
	c.dirty = true
	m.Lessons = append(m.Lessons[:index], m.Lessons[index+1:]...)
	c.rerenderLocked()
	return nil
}

func (c *Controller) AddModule(title string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = true
	mods := append(c.outline.Modules, outline.Module{Title: title})
	c.outline = outline.Normalize(mods)
	c.rerenderLocked()
	if n := len(c.outline.Modules); n > 0 {
		return c.outline.Modules[n-1].ID
	}
	// The new title was the reserved sentinel and got filtered out.
	return ""
}

func (c *Controller) findModuleLocked(moduleID string) *outline.Module {
	for i := range c.outline.Modules {
		if c.outline.Modules[i].ID == moduleID {
			return &c.outline.Modules[i]
		}
	}
	return nil
}

func (c *Controller) rerenderLocked() {
	c.raw = c.outline.Render()
	c.saveDraftLocked()
}

// --- finalize ---------------------------------------------------------------

// Finalize submits the displayed outline and records the created course.
// While it runs, the busy flag suppresses every other operation, so the
// outline cannot change underneath the submission.
func (c *Controller) Finalize(ctx context.Context) (FinalizeResult, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return FinalizeResult{}, ErrBusy
	}
	if len(c.outline.Modules) == 0 {
		c.mu.Unlock()
		return FinalizeResult{}, ErrNoOutline
	}
	c.busy = true
	o := c.outline.Clone()
	p := c.params
	key := c.draftKey()
	c.mu.Unlock()

	res, err := c.client.Finalize(ctx, o, p)

	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()

	if err != nil {
		return FinalizeResult{}, err
	}
	if c.courses != nil {
		if rerr := c.courses.RecordFinalized(ctx, res.ID, o, p); rerr != nil {
			return FinalizeResult{}, fmt.Errorf("record finalized course: %w", rerr)
		}
	}
	if c.drafts != nil {
		if derr := c.drafts.DeleteDraft(ctx, key); derr != nil {
			c.log.Warn("draft cleanup failed", "key", key, "error", derr)
		}
	}
	return res, nil
}

// --- snapshot / shutdown ----------------------------------------------------

type SlotState struct {
	SessionID uuid.UUID    `json:"sessionId"`
	State     SessionState `json:"state"`
}

type ViewSnapshot struct {
	Outline     outline.Outline    `json:"outline"`
	Raw         string             `json:"raw"`
	Dirty       bool               `json:"dirty"`
	Busy        bool               `json:"busy"`
	Fingerprint Fingerprint        `json:"fingerprint"`
	Params      Params             `json:"params"`
	Slots       map[Slot]SlotState `json:"slots"`
}

func (c *Controller) Snapshot() ViewSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	slots := make(map[Slot]SlotState, len(c.sessions))
	for slot, s := range c.sessions {
		slots[slot] = SlotState{SessionID: s.ID, State: s.State()}
	}
	return ViewSnapshot{
		Outline:     c.outline.Clone(),
		Raw:         c.raw,
		Dirty:       c.dirty,
		Busy:        c.busy,
		Fingerprint: c.fingerprint,
		Params:      c.params,
		Slots:       slots,
	}
}

// Close supersedes all live sessions. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	for _, s := range c.sessions {
		s.Cancel()
	}
	c.mu.Unlock()
	c.cancel()
}
