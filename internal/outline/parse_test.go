package outline

import (
	"strings"
	"testing"
)

func TestParseBasic(t *testing.T) {
	text := strings.Join([]string{
		"## Module 1: Basics",
		"- **Mean**",
		"- **Median**",
		"## Module 2: Inference",
		"- **Hypothesis testing**",
	}, "\n")

	o := Parse(text)
	if len(o.Modules) != 2 {
		t.Fatalf("modules=%d", len(o.Modules))
	}
	if o.Modules[0].Title != "Basics" || o.Modules[1].Title != "Inference" {
		t.Fatalf("titles=%q,%q", o.Modules[0].Title, o.Modules[1].Title)
	}
	if o.Modules[0].ID != "mod1" || o.Modules[1].ID != "mod2" {
		t.Fatalf("ids=%q,%q", o.Modules[0].ID, o.Modules[1].ID)
	}
	if len(o.Modules[0].Lessons) != 2 || o.Modules[0].Lessons[0] != "Mean" || o.Modules[0].Lessons[1] != "Median" {
		t.Fatalf("lessons=%v", o.Modules[0].Lessons)
	}
	if len(o.Modules[1].Lessons) != 1 || o.Modules[1].Lessons[0] != "Hypothesis testing" {
		t.Fatalf("lessons=%v", o.Modules[1].Lessons)
	}
}

func TestParseHeadingTitleAfterLastColon(t *testing.T) {
	o := Parse("## Part 1: Module 2: Advanced Topics\n- Intro\n")
	if len(o.Modules) != 1 {
		t.Fatalf("modules=%d", len(o.Modules))
	}
	if o.Modules[0].Title != "Advanced Topics" {
		t.Fatalf("title=%q", o.Modules[0].Title)
	}
}

func TestParseEmptyHeadingDefaultsToModule(t *testing.T) {
	o := Parse("## \n- Intro\n")
	if len(o.Modules) != 1 || o.Modules[0].Title != "Module" {
		t.Fatalf("modules=%+v", o.Modules)
	}

	o = Parse("## Module 3:\n- Intro\n")
	if len(o.Modules) != 1 || o.Modules[0].Title != "Module" {
		t.Fatalf("modules=%+v", o.Modules)
	}
}

func TestParseDeferredModuleCreation(t *testing.T) {
	o := Parse("- **First steps**\n")
	if len(o.Modules) != 1 {
		t.Fatalf("modules=%d", len(o.Modules))
	}
	m := o.Modules[0]
	if m.Title != "Module" {
		t.Fatalf("title=%q", m.Title)
	}
	if len(m.Lessons) != 1 || m.Lessons[0] != "First steps" {
		t.Fatalf("lessons=%v", m.Lessons)
	}
}

func TestParseNoModuleForBareHeadinglessText(t *testing.T) {
	// No list item yet: no module should exist, even transiently.
	o := Parse("Here is your course outline so far")
	if len(o.Modules) != 0 {
		t.Fatalf("modules=%d", len(o.Modules))
	}
}

func TestParseSentinelFiltered(t *testing.T) {
	for _, title := range []string{"Outline", "outline", "OUTLINE", "  outline  "} {
		o := Parse("## " + title + "\n- Orphan lesson\n## Real\n- Kept\n")
		if len(o.Modules) != 1 {
			t.Fatalf("title=%q modules=%d", title, len(o.Modules))
		}
		if o.Modules[0].Title != "Real" {
			t.Fatalf("title=%q kept=%q", title, o.Modules[0].Title)
		}
		if o.Modules[0].ID != "mod1" {
			t.Fatalf("id=%q", o.Modules[0].ID)
		}
	}
}

func TestParseDetailLinesPreservedVerbatim(t *testing.T) {
	text := strings.Join([]string{
		"## Basics",
		"- **Mean**",
		"  - **Goal**: averages",
		"\t- **Time**: 10m",
		"- Median",
	}, "\n")

	o := Parse(text)
	if len(o.Modules) != 1 || len(o.Modules[0].Lessons) != 2 {
		t.Fatalf("outline=%+v", o)
	}
	want := "Mean\n  - **Goal**: averages\n\t- **Time**: 10m"
	if o.Modules[0].Lessons[0] != want {
		t.Fatalf("lesson=%q", o.Modules[0].Lessons[0])
	}
}

func TestParseListMarkerVariants(t *testing.T) {
	o := Parse("## M\n- dash\n* star\n1. one\n12. twelve\n")
	lessons := o.Modules[0].Lessons
	if len(lessons) != 4 {
		t.Fatalf("lessons=%v", lessons)
	}
	want := []string{"dash", "star", "one", "twelve"}
	for i, w := range want {
		if lessons[i] != w {
			t.Fatalf("lesson[%d]=%q want %q", i, lessons[i], w)
		}
	}
}

func TestParseEmptyListItemKept(t *testing.T) {
	o := Parse("## M\n- \n- Second\n")
	lessons := o.Modules[0].Lessons
	if len(lessons) != 2 {
		t.Fatalf("lessons=%v", lessons)
	}
	if lessons[0] != "" {
		t.Fatalf("lesson[0]=%q", lessons[0])
	}
}

func TestParseCRLFAndBlankLines(t *testing.T) {
	o := Parse("## A\r\n\r\n- one\r\n\r\n- two\r\n")
	if len(o.Modules) != 1 || len(o.Modules[0].Lessons) != 2 {
		t.Fatalf("outline=%+v", o)
	}
}

// Monotonic growth: everything complete in a line-boundary prefix stays intact
// in any extension of it.
func TestParseIdempotentPrefix(t *testing.T) {
	full := strings.Join([]string{
		"## Module 1: Basics",
		"- **Mean**",
		"  - detail",
		"- **Median**",
		"## Module 2: Inference",
		"- **Hypothesis testing**",
		"",
	}, "\n")

	lines := strings.SplitAfter(full, "\n")
	prev := Parse("")
	acc := ""
	for _, l := range lines {
		acc += l
		cur := Parse(acc)
		// Completed modules (all but the in-progress last one) must persist.
		done := len(prev.Modules) - 1
		for i := 0; i < done; i++ {
			if cur.Modules[i].Title != prev.Modules[i].Title {
				t.Fatalf("module %d retracted: %q -> %q", i, prev.Modules[i].Title, cur.Modules[i].Title)
			}
			for j, lesson := range prev.Modules[i].Lessons {
				if cur.Modules[i].Lessons[j] != lesson {
					t.Fatalf("lesson %d/%d retracted", i, j)
				}
			}
		}
		prev = cur
	}
}

func TestRenderRoundTrip(t *testing.T) {
	text := strings.Join([]string{
		"## Basics",
		"- Mean",
		"  - **Goal**: averages",
		"- ",
		"## Inference",
		"- Hypothesis testing",
	}, "\n")

	first := Parse(text)
	second := Parse(first.Render())
	if len(second.Modules) != len(first.Modules) {
		t.Fatalf("modules %d != %d", len(second.Modules), len(first.Modules))
	}
	for i := range first.Modules {
		if second.Modules[i].Title != first.Modules[i].Title {
			t.Fatalf("title mismatch at %d", i)
		}
		if len(second.Modules[i].Lessons) != len(first.Modules[i].Lessons) {
			t.Fatalf("lesson count mismatch at %d: %v vs %v", i, second.Modules[i].Lessons, first.Modules[i].Lessons)
		}
		for j := range first.Modules[i].Lessons {
			if second.Modules[i].Lessons[j] != first.Modules[i].Lessons[j] {
				t.Fatalf("lesson %d/%d mismatch: %q vs %q", i, j, second.Modules[i].Lessons[j], first.Modules[i].Lessons[j])
			}
		}
	}
}

func TestNormalizeServerModules(t *testing.T) {
	o := Normalize([]Module{
		{Title: "Outline", Lessons: []string{"x"}},
		{Title: "Kept"},
	})
	if len(o.Modules) != 1 || o.Modules[0].Title != "Kept" || o.Modules[0].ID != "mod1" {
		t.Fatalf("outline=%+v", o)
	}
	if o.Modules[0].Lessons == nil {
		t.Fatalf("lessons should be non-nil")
	}
}
