package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/courseforge-backend/internal/config"
	"github.com/yungbote/courseforge-backend/internal/generation"
	"github.com/yungbote/courseforge-backend/internal/pkg/logger"
	"github.com/yungbote/courseforge-backend/internal/sse"
)

var ErrSessionNotFound = errors.New("outline session not found")

// OutlineEventPayload is what subscribers receive for every publication.
type OutlineEventPayload struct {
	SessionID string           `json:"sessionId"`
	Slot      generation.Slot  `json:"slot"`
	Outline   any              `json:"outline,omitempty"`
	Raw       string           `json:"raw,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// OutlineService owns the live outline controllers, one per session, and
// bridges their publications onto the SSE hub.
type OutlineService interface {
	Create(ctx context.Context, p generation.Params) (uuid.UUID, generation.ViewSnapshot, error)
	Get(id uuid.UUID) (generation.ViewSnapshot, error)
	UpdateParams(id uuid.UUID, p generation.Params) (generation.ViewSnapshot, error)
	Regenerate(id uuid.UUID) error
	Instruct(id uuid.UUID, instruction string) error

	SetModuleTitle(id uuid.UUID, moduleID, title string) error
	SetLesson(id uuid.UUID, moduleID string, index int, text string) error
	InsertLesson(id uuid.UUID, moduleID string, index int, text string) error
	RemoveLesson(id uuid.UUID, moduleID string, index int) error
	AddModule(id uuid.UUID, title string) (string, error)

	Finalize(ctx context.Context, id uuid.UUID) (generation.FinalizeResult, error)
	Close(id uuid.UUID) error

	// Channel is the SSE channel carrying the session's events.
	Channel(id uuid.UUID) string
}

type outlineService struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*generation.Controller

	client  *generation.Client
	hub     *sse.SSEHub
	drafts  generation.DraftStore
	courses generation.CourseRecorder
	scfg    config.SessionConfig
	log     *logger.Logger
}

func NewOutlineService(client *generation.Client, hub *sse.SSEHub, drafts generation.DraftStore, courses generation.CourseRecorder, scfg config.SessionConfig, log *logger.Logger) OutlineService {
	return &outlineService{
		sessions: make(map[uuid.UUID]*generation.Controller),
		client:   client,
		hub:      hub,
		drafts:   drafts,
		courses:  courses,
		scfg:     scfg,
		log:      log.With("service", "OutlineService"),
	}
}

func (s *outlineService) Channel(id uuid.UUID) string {
	return fmt.Sprintf("outline:%s", id)
}

func (s *outlineService) Create(ctx context.Context, p generation.Params) (uuid.UUID, generation.ViewSnapshot, error) {
	var ctrl *generation.Controller
	ctrl, err := generation.NewController(context.Background(), p, generation.ControllerOptions{
		Client:         s.client,
		Logger:         s.log,
		MaxRestarts:    s.scfg.MaxRestarts,
		RestartBackoff: s.scfg.RestartBackoff.Duration,
		Drafts:         s.drafts,
		Courses:        s.courses,
		Publish:        func(pub generation.Publication) { s.broadcast(ctrl, pub) },
	})
	if err != nil {
		return uuid.Nil, generation.ViewSnapshot{}, err
	}

	s.mu.Lock()
	s.sessions[ctrl.ID] = ctrl
	s.mu.Unlock()

	restored, err := ctrl.RestoreDraft(ctx)
	if err != nil {
		s.log.Warn("draft restore failed", "sessionID", ctrl.ID, "error", err)
	}
	if !restored {
		if err := ctrl.Generate(generation.SlotPreview); err != nil {
			s.log.Warn("initial generation failed to start", "sessionID", ctrl.ID, "error", err)
		}
	}

	return ctrl.ID, ctrl.Snapshot(), nil
}

func (s *outlineService) broadcast(ctrl *generation.Controller, pub generation.Publication) {
	event := sse.SSEEventOutlinePartial
	switch pub.Kind {
	case generation.PublicationFinal:
		event = sse.SSEEventOutlineFinal
	case generation.PublicationFailed:
		event = sse.SSEEventOutlineFailed
	}
	payload := OutlineEventPayload{
		SessionID: ctrl.ID.String(),
		Slot:      pub.Slot,
		Raw:       pub.Raw,
		Message:   pub.Message,
	}
	if pub.Kind != generation.PublicationFailed {
		payload.Outline = pub.Outline
	}
	s.hub.Broadcast(sse.SSEMessage{
		Channel: s.Channel(ctrl.ID),
		Event:   event,
		Data:    payload,
	})
}

func (s *outlineService) get(id uuid.UUID) (*generation.Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctrl, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ctrl, nil
}

func (s *outlineService) Get(id uuid.UUID) (generation.ViewSnapshot, error) {
	ctrl, err := s.get(id)
	if err != nil {
		return generation.ViewSnapshot{}, err
	}
	return ctrl.Snapshot(), nil
}

func (s *outlineService) UpdateParams(id uuid.UUID, p generation.Params) (generation.ViewSnapshot, error) {
	ctrl, err := s.get(id)
	if err != nil {
		return generation.ViewSnapshot{}, err
	}
	ctrl.ParamsChanged(p)
	return ctrl.Snapshot(), nil
}

func (s *outlineService) Regenerate(id uuid.UUID) error {
	ctrl, err := s.get(id)
	if err != nil {
		return err
	}
	return ctrl.Regenerate()
}

func (s *outlineService) Instruct(id uuid.UUID, instruction string) error {
	ctrl, err := s.get(id)
	if err != nil {
		return err
	}
	return ctrl.RequestEdit(instruction)
}

func (s *outlineService) SetModuleTitle(id uuid.UUID, moduleID, title string) error {
	ctrl, err := s.get(id)
	if err != nil {
		return err
	}
	return ctrl.SetModuleTitle(moduleID, title)
}

func (s *outlineService) SetLesson(id uuid.UUID, moduleID string, index int, text string) error {
	ctrl, err := s.get(id)
	if err != nil {
		return err
	}
	return ctrl.SetLesson(moduleID, index, text)
}

func (s *outlineService) InsertLesson(id uuid.UUID, moduleID string, index int, text string) error {
	ctrl, err := s.get(id)
	if err != nil {
		return err
	}
	return ctrl.InsertLesson(moduleID, index, text)
}

func (s *outlineService) RemoveLesson(id uuid.UUID, moduleID string, index int) error {
	ctrl, err := s.get(id)
	if err != nil {
		return err
	}
	return ctrl.RemoveLesson(moduleID, index)
}

func (s *outlineService) AddModule(id uuid.UUID, title string) (string, error) {
	ctrl, err := s.get(id)
	if err != nil {
		return "", err
	}
	return ctrl.AddModule(title), nil
}

func (s *outlineService) Finalize(ctx context.Context, id uuid.UUID) (generation.FinalizeResult, error) {
	ctrl, err := s.get(id)
	if err != nil {
		return generation.FinalizeResult{}, err
	}
	res, err := ctrl.Finalize(ctx)
	if err != nil {
		return generation.FinalizeResult{}, err
	}
	s.hub.Broadcast(sse.SSEMessage{
		Channel: s.Channel(id),
		Event:   sse.SSEEventCourseFinalized,
		Data:    map[string]any{"sessionId": id.String(), "courseId": res.ID},
	})
	return res, nil
}

func (s *outlineService) Close(id uuid.UUID) error {
	s.mu.Lock()
	ctrl, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	ctrl.Close()
	return nil
}
