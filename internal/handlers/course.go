package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/courseforge-backend/internal/store"
)

type CourseHandler struct {
	courses store.CourseRepo
}

func NewCourseHandler(courses store.CourseRepo) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// GET /v1/courses/:sourceId
func (h *CourseHandler) GetCourse(c *gin.Context) {
	sourceID := c.Param("sourceId")
	course, err := h.courses.GetBySourceID(c.Request.Context(), nil, sourceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"course": course})
}

// GET /v1/courses?chatSessionId=...
func (h *CourseHandler) ListCourses(c *gin.Context) {
	chatSessionID := c.Query("chatSessionId")
	if chatSessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chatSessionId required"})
		return
	}
	courses, err := h.courses.ListByChatSession(c.Request.Context(), nil, chatSessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}
