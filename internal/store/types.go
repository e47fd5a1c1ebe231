package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Course is the persisted record of a finalized outline. SourceID is the
// identifier the generation backend assigned at finalize time.
type Course struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SourceID      string         `gorm:"column:source_id;not null;uniqueIndex" json:"source_id"`
	ChatSessionID string         `gorm:"column:chat_session_id;index" json:"chat_session_id,omitempty"`
	Title         string         `gorm:"column:title;not null" json:"title"`
	Language      string         `gorm:"column:language" json:"language"`
	Metadata      datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	Modules       []CourseModule `gorm:"constraint:OnDelete:CASCADE;foreignKey:CourseID;references:ID" json:"modules,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Course) TableName() string { return "course" }

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type CourseModule struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	Position  int            `gorm:"column:position;not null" json:"position"`
	Title     string         `gorm:"column:title;not null" json:"title"`
	Lessons   []CourseLesson `gorm:"constraint:OnDelete:CASCADE;foreignKey:ModuleID;references:ID" json:"lessons,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (CourseModule) TableName() string { return "course_module" }

func (m *CourseModule) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// CourseLesson keeps the lesson's first line as the title and any indented
// continuation lines verbatim in Detail.
type CourseLesson struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ModuleID  uuid.UUID `gorm:"type:uuid;not null;index" json:"module_id"`
	Position  int       `gorm:"column:position;not null" json:"position"`
	Title     string    `gorm:"column:title;not null" json:"title"`
	Detail    string    `gorm:"column:detail" json:"detail,omitempty"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (CourseLesson) TableName() string { return "course_lesson" }

func (l *CourseLesson) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// OutlineGenerationRun is the audit trail of finalizes: which parameter tuple
// and raw outline text produced which course.
type OutlineGenerationRun struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID      *uuid.UUID     `gorm:"type:uuid;index" json:"course_id,omitempty"`
	ChatSessionID string         `gorm:"column:chat_session_id;index" json:"chat_session_id,omitempty"`
	Fingerprint   string         `gorm:"column:fingerprint" json:"fingerprint"`
	Status        string         `gorm:"column:status;not null" json:"status"`
	Raw           string         `gorm:"column:raw;type:text" json:"raw"`
	Params        datatypes.JSON `gorm:"column:params;type:jsonb" json:"params"`
	CreatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (OutlineGenerationRun) TableName() string { return "outline_generation_run" }

func (r *OutlineGenerationRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
