package outline

import (
	"fmt"
	"strings"
)

// SentinelTitle is the reserved module title the backend emits while it has
// not produced a real module yet. Modules carrying it are never shown.
const SentinelTitle = "outline"

// DefaultModuleTitle is used for headings with no usable text and for the
// synthetic module opened when list items arrive before any heading.
const DefaultModuleTitle = "Module"

// Module is one ordered section of an outline. Lessons are opaque multi-line
// text blocks: line 0 is the title line, later lines are detail lines kept
// verbatim (indentation included).
type Module struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Lessons []string `json:"lessons"`
}

// Outline is the structured artifact under synthesis. Module order is display
// and delivery order.
type Outline struct {
	Modules []Module `json:"modules"`
}

// Normalize drops sentinel-titled modules and assigns ordinal IDs (mod1..modN).
// IDs are stable only within one normalization pass.
func Normalize(mods []Module) Outline {
	out := make([]Module, 0, len(mods))
	for _, m := range mods {
		if strings.EqualFold(strings.TrimSpace(m.Title), SentinelTitle) {
			continue
		}
		out = append(out, m)
	}
	for i := range out {
		out[i].ID = fmt.Sprintf("mod%d", i+1)
		if out[i].Lessons == nil {
			out[i].Lessons = []string{}
		}
	}
	return Outline{Modules: out}
}

// Clone returns a deep copy, so a view model can be mutated without aliasing
// a published outline.
func (o Outline) Clone() Outline {
	mods := make([]Module, len(o.Modules))
	for i, m := range o.Modules {
		lessons := make([]string, len(m.Lessons))
		copy(lessons, m.Lessons)
		mods[i] = Module{ID: m.ID, Title: m.Title, Lessons: lessons}
	}
	return Outline{Modules: mods}
}

// Render serializes the outline back to the human markdown shape the stream
// uses: `## Title` headings and `- ` list items, detail lines verbatim. The
// output re-parses to the same structure.
func (o Outline) Render() string {
	var b strings.Builder
	for i, m := range o.Modules {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## ")
		b.WriteString(m.Title)
		b.WriteString("\n")
		for _, lesson := range m.Lessons {
			lines := strings.Split(lesson, "\n")
			b.WriteString("- ")
			b.WriteString(lines[0])
			b.WriteString("\n")
			for _, detail := range lines[1:] {
				b.WriteString(detail)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}
