package store

import (
	"context"
	"encoding/json"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/courseforge-backend/internal/generation"
	"github.com/yungbote/courseforge-backend/internal/outline"
	"github.com/yungbote/courseforge-backend/internal/pkg/logger"
)

type CourseRepo interface {
	// RecordFinalized persists the finalized outline as a course with its
	// modules and lessons, plus an audit run, in one transaction.
	RecordFinalized(ctx context.Context, courseID string, o outline.Outline, p generation.Params) error

	GetBySourceID(ctx context.Context, tx *gorm.DB, sourceID string) (*Course, error)
	ListByChatSession(ctx context.Context, tx *gorm.DB, chatSessionID string) ([]*Course, error)
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func (r *courseRepo) RecordFinalized(ctx context.Context, courseID string, o outline.Outline, p generation.Params) error {
	paramsJSON, err := json.Marshal(p)
	if err != nil {
		return err
	}

	title := strings.TrimSpace(p.Prompt)
	if title == "" {
		title = "Untitled course"
	}

	course := &Course{
		SourceID:      courseID,
		ChatSessionID: p.ChatSessionID,
		Title:         title,
		Language:      p.Language,
		Metadata:      paramsJSON,
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(course).Error; err != nil {
			return err
		}
		for mi, m := range o.Modules {
			mod := &CourseModule{
				CourseID: course.ID,
				Position: mi,
				Title:    m.Title,
			}
			if err := tx.Create(mod).Error; err != nil {
				return err
			}
			for li, lesson := range m.Lessons {
				lessonTitle, detail := splitLesson(lesson)
				if err := tx.Create(&CourseLesson{
					ModuleID: mod.ID,
					Position: li,
					Title:    lessonTitle,
					Detail:   detail,
				}).Error; err != nil {
					return err
				}
			}
		}

		run := &OutlineGenerationRun{
			CourseID:      &course.ID,
			ChatSessionID: p.ChatSessionID,
			Fingerprint:   string(p.Fingerprint()),
			Status:        "finalized",
			Raw:           o.Render(),
			Params:        paramsJSON,
		}
		return tx.Create(run).Error
	})
}

// splitLesson separates the lesson's first line from its indented detail
// lines, which are stored verbatim.
func splitLesson(lesson string) (title, detail string) {
	if i := strings.IndexByte(lesson, '\n'); i >= 0 {
		return lesson[:i], lesson[i+1:]
	}
	return lesson, ""
}

func (r *courseRepo) GetBySourceID(ctx context.Context, tx *gorm.DB, sourceID string) (*Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var course Course
	err := transaction.WithContext(ctx).
		Preload("Modules", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Modules.Lessons", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("source_id = ?", sourceID).
		First(&course).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *courseRepo) ListByChatSession(ctx context.Context, tx *gorm.DB, chatSessionID string) ([]*Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var courses []*Course
	if chatSessionID == "" {
		return courses, nil
	}
	err := transaction.WithContext(ctx).
		Where("chat_session_id = ?", chatSessionID).
		Order("created_at DESC").
		Find(&courses).Error
	if err != nil {
		return nil, err
	}
	return courses, nil
}

var _ generation.CourseRecorder = (*courseRepo)(nil)
