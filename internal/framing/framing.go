// Package framing encodes argument lists as NUL-delimited runs closed by an empty run.
package framing

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultMaxFrameBytes bounds one encoded argument list.
const DefaultMaxFrameBytes = 1 << 20

var (
	// ErrEmbeddedNUL is returned when an argument cannot be represented on the wire.
	ErrEmbeddedNUL = errors.New("framing: argument contains NUL byte")
	// ErrEmptyArgument is returned for "" since an empty run terminates the list.
	ErrEmptyArgument = errors.New("framing: empty argument")
	// ErrFrameTooLarge is returned when buffered bytes exceed the decoder limit.
	ErrFrameTooLarge = errors.New("framing: frame too large")
	// ErrUnterminated is returned when the stream ends before the closing empty run.
	ErrUnterminated = errors.New("framing: stream ended before terminator")
)

// Encode renders args as `arg NUL ... NUL`. An empty list encodes to a single NUL.
func Encode(args []string) ([]byte, error) {
	size := 1
	for i, arg := range args {
		if arg == "" {
			return nil, fmt.Errorf("argument %d: %w", i, ErrEmptyArgument)
		}
		if strings.IndexByte(arg, 0) >= 0 {
			return nil, fmt.Errorf("argument %d: %w", i, ErrEmbeddedNUL)
		}
		size += len(arg) + 1
	}

	out := make([]byte, 0, size)
	for _, arg := range args {
		out = append(out, arg...)
		out = append(out, 0)
	}
	return append(out, 0), nil
}

// Decoder accumulates chunks until a complete argument list has been seen.
type Decoder struct {
	max  int
	size int
	run  []byte
	args []string
	done bool
}

// NewDecoder returns a decoder bounded to maxBytes buffered bytes (<=0 means DefaultMaxFrameBytes).
func NewDecoder(maxBytes int) *Decoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	return &Decoder{max: maxBytes}
}

// Feed consumes chunk and reports how many bytes were used and whether the list is complete.
// Bytes after the terminator are left unconsumed.
func (d *Decoder) Feed(chunk []byte) (int, bool, error) {
	if d.done {
		return 0, true, nil
	}

	for i, b := range chunk {
		d.size++
		if d.size > d.max {
			return i, false, ErrFrameTooLarge
		}
		if b != 0 {
			d.run = append(d.run, b)
			continue
		}
		if len(d.run) == 0 {
			d.done = true
			return i + 1, true, nil
		}
		d.args = append(d.args, string(d.run))
		d.run = d.run[:0]
	}
	return len(chunk), false, nil
}

// Args returns the decoded list once Feed has reported completion.
func (d *Decoder) Args() []string {
	if !d.done {
		return nil
	}
	if d.args == nil {
		return []string{}
	}
	return d.args
}

// Buffered reports how many bytes have been consumed so far.
func (d *Decoder) Buffered() int {
	return d.size
}

// Reset clears all buffered state.
func (d *Decoder) Reset() {
	d.size = 0
	d.run = nil
	d.args = nil
	d.done = false
}

// Decode reads one argument list from r.
func Decode(r io.Reader) ([]string, error) {
	return decodeLimit(r, DefaultMaxFrameBytes)
}

// decodeLimit reads a byte at a time so nothing past the terminator is
// consumed from r.
func decodeLimit(r io.Reader, maxBytes int) ([]string, error) {
	dec := NewDecoder(maxBytes)
	var one [1]byte
	for {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrUnterminated
			}
			return nil, err
		}
		_, done, err := dec.Feed(one[:])
		if err != nil {
			return nil, err
		}
		if done {
			return dec.Args(), nil
		}
	}
}
