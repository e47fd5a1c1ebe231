package generation

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
)

// Slot is a logical regeneration target. Each slot carries at most one live
// session at a time.
type Slot string

const (
	SlotPreview Slot = "preview"
	SlotEdit    Slot = "edit"
)

// Params is the generation parameter tuple sent to the backend. At most one
// source-context family (files / text / knowledge base / connectors) is active
// per request; that exclusivity is the caller's contract and is not validated
// here.
type Params struct {
	Prompt           string `json:"prompt"`
	Modules          int    `json:"modules"`
	LessonsPerModule string `json:"lessonsPerModule"`
	Language         string `json:"language"`
	ChatSessionID    string `json:"chatSessionId,omitempty"`

	FromFiles bool     `json:"fromFiles,omitempty"`
	FolderIDs []string `json:"folderIds,omitempty"`
	FileIDs   []string `json:"fileIds,omitempty"`

	FromText bool   `json:"fromText,omitempty"`
	TextMode string `json:"textMode,omitempty"`
	UserText string `json:"userText,omitempty"`

	FromKnowledgeBase bool `json:"fromKnowledgeBase,omitempty"`

	FromConnectors   bool     `json:"fromConnectors,omitempty"`
	ConnectorIDs     []string `json:"connectorIds,omitempty"`
	ConnectorSources []string `json:"connectorSources,omitempty"`
}

// Fingerprint identifies the parameter tuple that produced the displayed
// outline. Comparing fingerprints detects no-op regenerations.
type Fingerprint string

// ForcedFingerprint is the sentinel an explicit Regenerate resets to. No real
// tuple hashes to it, so re-evaluation never suppresses the forced run.
const ForcedFingerprint Fingerprint = "!forced"

func (p Params) Fingerprint() Fingerprint {
	parts := []string{
		p.Prompt,
		strconv.Itoa(p.Modules),
		p.LessonsPerModule,
		p.Language,
		strconv.FormatBool(p.FromFiles),
		strings.Join(p.FolderIDs, ","),
		strings.Join(p.FileIDs, ","),
		strconv.FormatBool(p.FromText),
		p.TextMode,
		p.UserText,
		strconv.FormatBool(p.FromKnowledgeBase),
		strconv.FormatBool(p.FromConnectors),
		strings.Join(p.ConnectorIDs, ","),
		strings.Join(p.ConnectorSources, ","),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Trigger classifies what kind of regeneration a parameter change is allowed
// to cause.
type Trigger int

const (
	// TriggerNone: nothing regeneration-relevant changed.
	TriggerNone Trigger = iota
	// TriggerManual: only manual-regenerate-only parameters changed; the user
	// must explicitly ask before a new generation starts.
	TriggerManual
	// TriggerAuto: an auto-regenerate parameter changed.
	TriggerAuto
)

// ClassifyChange applies the per-parameter regeneration policy:
//
//	auto-regenerate:  Modules, LessonsPerModule, Language, FromFiles,
//	                  FolderIDs, FileIDs, FromText, TextMode,
//	                  FromKnowledgeBase, FromConnectors, ConnectorIDs,
//	                  ConnectorSources
//	manual-only:      Prompt, UserText
//
// ChatSessionID is a continuity token, not a generation input, and never
// triggers anything.
func ClassifyChange(old, next Params) Trigger {
	switch {
	case old.Modules != next.Modules,
		old.LessonsPerModule != next.LessonsPerModule,
		old.Language != next.Language,
		old.FromFiles != next.FromFiles,
		!slices.Equal(old.FolderIDs, next.FolderIDs),
		!slices.Equal(old.FileIDs, next.FileIDs),
		old.FromText != next.FromText,
		old.TextMode != next.TextMode,
		old.FromKnowledgeBase != next.FromKnowledgeBase,
		old.FromConnectors != next.FromConnectors,
		!slices.Equal(old.ConnectorIDs, next.ConnectorIDs),
		!slices.Equal(old.ConnectorSources, next.ConnectorSources):
		return TriggerAuto
	case old.Prompt != next.Prompt, old.UserText != next.UserText:
		return TriggerManual
	default:
		return TriggerNone
	}
}
