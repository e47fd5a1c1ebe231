package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/courseforge-backend/internal/generation"
	"github.com/yungbote/courseforge-backend/internal/services"
	"github.com/yungbote/courseforge-backend/internal/sse"
)

type OutlineHandler struct {
	svc services.OutlineService
	hub *sse.SSEHub
}

func NewOutlineHandler(svc services.OutlineService, hub *sse.SSEHub) *OutlineHandler {
	return &OutlineHandler{svc: svc, hub: hub}
}

// POST /v1/outline/sessions
func (h *OutlineHandler) CreateSession(c *gin.Context) {
	var params generation.Params
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id, snapshot, err := h.svc.Create(c.Request.Context(), params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessionId": id.String(), "snapshot": snapshot})
}

// GET /v1/outline/sessions/:id
func (h *OutlineHandler) GetSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	snapshot, err := h.svc.Get(id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": snapshot})
}

// GET /v1/outline/sessions/:id/events
func (h *OutlineHandler) Events(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	snapshot, err := h.svc.Get(id)
	if err != nil {
		h.renderError(c, err)
		return
	}

	client := h.hub.NewSSEClient()
	h.hub.AddChannel(client, h.svc.Channel(id))
	defer h.hub.CloseClient(client)

	// Seed the stream with the current view so late subscribers don't wait
	// for the next publication.
	client.Outbound <- sse.SSEMessage{
		Channel: h.svc.Channel(id),
		Event:   sse.SSEEventOutlinePartial,
		Data:    gin.H{"sessionId": id.String(), "snapshot": snapshot},
	}

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}

// POST /v1/outline/sessions/:id/parameters
func (h *OutlineHandler) UpdateParams(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var params generation.Params
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	snapshot, err := h.svc.UpdateParams(id, params)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": snapshot})
}

// POST /v1/outline/sessions/:id/regenerate
func (h *OutlineHandler) Regenerate(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	if err := h.svc.Regenerate(id); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "regenerating"})
}

type editRequest struct {
	Op          string `json:"op" binding:"required"`
	ModuleID    string `json:"moduleId"`
	Index       int    `json:"index"`
	Text        string `json:"text"`
	Title       string `json:"title"`
	Instruction string `json:"instruction"`
}

// POST /v1/outline/sessions/:id/edits
//
// Structural edits (set_module_title, set_lesson, insert_lesson,
// remove_lesson, add_module) apply synchronously; the "instruct" op streams
// an AI rewrite through the session's event channel.
func (h *OutlineHandler) Edit(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	switch req.Op {
	case "set_module_title":
		if err := h.svc.SetModuleTitle(id, req.ModuleID, req.Title); err != nil {
			h.renderError(c, err)
			return
		}
	case "set_lesson":
		if err := h.svc.SetLesson(id, req.ModuleID, req.Index, req.Text); err != nil {
			h.renderError(c, err)
			return
		}
	case "insert_lesson":
		if err := h.svc.InsertLesson(id, req.ModuleID, req.Index, req.Text); err != nil {
			h.renderError(c, err)
			return
		}
	case "remove_lesson":
		if err := h.svc.RemoveLesson(id, req.ModuleID, req.Index); err != nil {
			h.renderError(c, err)
			return
		}
	case "add_module":
		moduleID, err := h.svc.AddModule(id, req.Title)
		if err != nil {
			h.renderError(c, err)
			return
		}
		snapshot, err := h.svc.Get(id)
		if err != nil {
			h.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"moduleId": moduleID, "snapshot": snapshot})
		return
	case "instruct":
		if req.Instruction == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "instruction required"})
			return
		}
		if err := h.svc.Instruct(id, req.Instruction); err != nil {
			h.renderError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "editing"})
		return
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown edit op"})
		return
	}

	snapshot, err := h.svc.Get(id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": snapshot})
}

// POST /v1/outline/sessions/:id/finalize
func (h *OutlineHandler) Finalize(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	res, err := h.svc.Finalize(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courseId": res.ID})
}

// DELETE /v1/outline/sessions/:id
func (h *OutlineHandler) CloseSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	if err := h.svc.Close(id); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func (h *OutlineHandler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *OutlineHandler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, generation.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, generation.ErrNoOutline),
		errors.Is(err, generation.ErrModuleNotFound),
		errors.Is(err, generation.ErrLessonIndex):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
