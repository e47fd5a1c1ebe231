package stream

import (
	"bytes"
	"fmt"
	"io"
)

// Reader consumes a newline-delimited JSON byte stream and yields one Packet
// per complete line. Line boundaries are not assumed to align with chunk
// boundaries: the trailing partial line of each read is carried over to the
// next. A Reader is not restartable; a new stream needs a new Reader.
type Reader struct {
	src    io.Reader
	carry  []byte
	chunk  []byte
	queue  []Packet
	strict bool
	eof    bool
	err    error
}

type Option func(*Reader)

// WithStrict makes malformed complete lines fail the read loop instead of
// being skipped. The default is lenient: one corrupted line must not sacrifice
// an otherwise-successful generation.
func WithStrict() Option {
	return func(r *Reader) { r.strict = true }
}

func NewReader(src io.Reader, opts ...Option) *Reader {
	r := &Reader{
		src:   src,
		chunk: make([]byte, 4096),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Next returns the next packet, or io.EOF once the stream is exhausted.
// Packets arrive strictly in stream order.
func (r *Reader) Next() (Packet, error) {
	for {
		if len(r.queue) > 0 {
			p := r.queue[0]
			r.queue = r.queue[1:]
			return p, nil
		}
		if r.err != nil {
			return Packet{}, r.err
		}
		if r.eof {
			return Packet{}, io.EOF
		}
		r.fill()
	}
}

func (r *Reader) fill() {
	n, err := r.src.Read(r.chunk)
	if n > 0 {
		r.carry = append(r.carry, r.chunk[:n]...)
		r.drainLines()
	}
	if err == nil {
		return
	}
	if err == io.EOF {
		r.eof = true
		r.flushTail()
		return
	}
	r.err = err
}

// drainLines decodes every complete line in the carry buffer and keeps the
// final (possibly partial) fragment.
func (r *Reader) drainLines() {
	for {
		idx := bytes.IndexByte(r.carry, '\n')
		if idx < 0 {
			return
		}
		line := bytes.TrimRight(r.carry[:idx], "\r")
		r.carry = r.carry[idx+1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		p, err := decodePacket(line)
		if err != nil {
			if r.strict {
				r.err = fmt.Errorf("decode stream line: %w", err)
				return
			}
			continue
		}
		r.queue = append(r.queue, p)
	}
}

// flushTail handles the trailing fragment at stream end. A truncated stream
// must not crash the consumer, so a fragment that fails to parse is dropped
// even in strict mode.
func (r *Reader) flushTail() {
	tail := bytes.TrimSpace(bytes.TrimRight(r.carry, "\r"))
	r.carry = nil
	if len(tail) == 0 {
		return
	}
	if p, err := decodePacket(tail); err == nil {
		r.queue = append(r.queue, p)
	}
}
