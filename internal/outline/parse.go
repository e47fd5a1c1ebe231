package outline

import (
	"strings"
	"unicode"
)

// Parse turns accumulated stream text into an outline. It is pure and safe to
// re-run on every delta: parsing a longer string that extends the same prefix
// only grows the result, it never contradicts structure already produced for
// the prefix.
func Parse(text string) Outline {
	var (
		mods       []Module
		lessonBuf  []string
		lessonOpen bool
	)

	flushLesson := func() {
		if !lessonOpen {
			return
		}
		if len(mods) > 0 {
			cur := &mods[len(mods)-1]
			cur.Lessons = append(cur.Lessons, strings.Join(lessonBuf, "\n"))
		}
		lessonBuf = nil
		lessonOpen = false
	}

	for _, raw := range splitLines(text) {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "## ") {
			flushLesson()
			mods = append(mods, Module{Title: headingTitle(trimmed[len("## "):])})
			continue
		}

		if indentWidth(raw) == 0 {
			if rest, ok := stripListMarker(raw); ok {
				flushLesson()
				// Module creation is deferred until the first list item so a
				// heading-less stream prefix never shows an empty module.
				if len(mods) == 0 {
					mods = append(mods, Module{Title: DefaultModuleTitle})
				}
				lessonBuf = []string{stripBoldWrapper(strings.TrimSpace(rest))}
				lessonOpen = true
				continue
			}
			// Plain zero-indent text: continuation of the open lesson, if any.
			if lessonOpen {
				lessonBuf = append(lessonBuf, raw)
			}
			continue
		}

		// Indented: detail line, kept verbatim.
		if lessonOpen {
			lessonBuf = append(lessonBuf, raw)
		}
	}
	flushLesson()

	return Normalize(mods)
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// headingTitle extracts the module title from the text after `## `. When the
// heading carries a label prefix ("Module 2: Basics"), only the text after the
// last colon is the title.
func headingTitle(s string) string {
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultModuleTitle
	}
	return s
}

func indentWidth(s string) int {
	n := 0
	for _, r := range s {
		if r == ' ' || r == '\t' {
			n++
			continue
		}
		break
	}
	return n
}

// stripListMarker recognizes top-level list items: `- `, `* `, or an ordinal
// like `3.`. It returns the text after the marker.
func stripListMarker(s string) (string, bool) {
	if strings.HasPrefix(s, "- ") {
		return s[2:], true
	}
	if strings.HasPrefix(s, "* ") {
		return s[2:], true
	}
	i := 0
	for i < len(s) && unicode.IsDigit(rune(s[i])) {
		i++
	}
	if i > 0 && i < len(s) && s[i] == '.' {
		return s[i+1:], true
	}
	return "", false
}

// stripBoldWrapper removes a `**...**` wrapper only when it spans the whole
// visible title.
func stripBoldWrapper(s string) string {
	if len(s) >= 4 && strings.HasPrefix(s, "**") && strings.HasSuffix(s, "**") {
		return s[2 : len(s)-2]
	}
	return s
}
