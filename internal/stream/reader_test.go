package stream

import (
	"io"
	"strings"
	"testing"
)

// chunkedReader returns the configured chunks one Read at a time.
type chunkedReader struct {
	chunks []string
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n < len(c.chunks[0]) {
		c.chunks[0] = c.chunks[0][n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func readAll(t *testing.T, r *Reader) []Packet {
	t.Helper()
	var out []Packet
	for {
		p, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, p)
	}
}

func TestReaderBasic(t *testing.T) {
	body := `{"type":"delta","text":"## A\n"}` + "\n" +
		`{"type":"done","raw":"## A\n"}` + "\n"
	got := readAll(t, NewReader(strings.NewReader(body)))
	if len(got) != 2 {
		t.Fatalf("packets=%d", len(got))
	}
	if got[0].Type != TypeDelta || got[0].Text != "## A\n" {
		t.Fatalf("p0=%+v", got[0])
	}
	if got[1].Type != TypeDone || got[1].Raw != "## A\n" {
		t.Fatalf("p1=%+v", got[1])
	}
}

func TestReaderSplitAcrossChunks(t *testing.T) {
	line := `{"type":"delta","text":"hello world"}` + "\n"
	// Split the single line at an arbitrary byte offset.
	for cut := 1; cut < len(line)-1; cut += 7 {
		r := NewReader(&chunkedReader{chunks: []string{line[:cut], line[cut:]}})
		got := readAll(t, r)
		if len(got) != 1 {
			t.Fatalf("cut=%d packets=%d", cut, len(got))
		}
		if got[0].Type != TypeDelta || got[0].Text != "hello world" {
			t.Fatalf("cut=%d packet=%+v", cut, got[0])
		}
	}
}

func TestReaderTrailingFragmentParsed(t *testing.T) {
	// No trailing newline: the final fragment still yields a packet.
	body := `{"type":"delta","text":"a"}` + "\n" + `{"type":"done"}`
	got := readAll(t, NewReader(strings.NewReader(body)))
	if len(got) != 2 || got[1].Type != TypeDone {
		t.Fatalf("packets=%+v", got)
	}
}

func TestReaderTruncatedTailSwallowed(t *testing.T) {
	body := `{"type":"delta","text":"a"}` + "\n" + `{"type":"do`
	got := readAll(t, NewReader(strings.NewReader(body)))
	if len(got) != 1 || got[0].Type != TypeDelta {
		t.Fatalf("packets=%+v", got)
	}
}

func TestReaderLenientSkipsMalformedLines(t *testing.T) {
	body := `{"type":"delta","text":"a"}` + "\n" +
		`{not json}` + "\n" +
		`{"type":"delta","text":"b"}` + "\n"
	got := readAll(t, NewReader(strings.NewReader(body)))
	if len(got) != 2 || got[0].Text != "a" || got[1].Text != "b" {
		t.Fatalf("packets=%+v", got)
	}
}

func TestReaderStrictFailsOnMalformedLine(t *testing.T) {
	body := `{not json}` + "\n"
	r := NewReader(strings.NewReader(body), WithStrict())
	if _, err := r.Next(); err == nil || err == io.EOF {
		t.Fatalf("err=%v", err)
	}
}

func TestReaderUnknownTypeIgnoredNotFatal(t *testing.T) {
	body := `{"type":"heartbeat"}` + "\n" + `{"type":"delta","text":"x"}` + "\n"
	got := readAll(t, NewReader(strings.NewReader(body)))
	if len(got) != 2 {
		t.Fatalf("packets=%+v", got)
	}
	if got[0].Type != TypeUnknown || got[1].Type != TypeDelta {
		t.Fatalf("packets=%+v", got)
	}
}

func TestReaderDoneWithModules(t *testing.T) {
	body := `{"type":"done","modules":[{"title":"Basics","lessons":["Mean"]}]}` + "\n"
	got := readAll(t, NewReader(strings.NewReader(body)))
	if len(got) != 1 || got[0].Type != TypeDone {
		t.Fatalf("packets=%+v", got)
	}
	if len(got[0].Modules) != 1 || got[0].Modules[0].Title != "Basics" {
		t.Fatalf("modules=%+v", got[0].Modules)
	}
}

func TestReaderBlankLinesSkipped(t *testing.T) {
	body := "\n\r\n" + `{"type":"delta","text":"a"}` + "\n\n"
	got := readAll(t, NewReader(strings.NewReader(body)))
	if len(got) != 1 {
		t.Fatalf("packets=%+v", got)
	}
}
