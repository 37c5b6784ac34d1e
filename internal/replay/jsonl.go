// ABOUTME: Line-delimited JSON frame reader and writer
// ABOUTME: Blank lines are ignored; bad lines surface as ErrMalformedFrame with their line number

package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineSize bounds a single frame line.
const maxLineSize = 4 << 20

// JSONLReader reads one frame per line.
type JSONLReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewJSONLReader wraps r.
func NewJSONLReader(r io.Reader) *JSONLReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	return &JSONLReader{scanner: sc}
}

// Next returns the next frame, io.EOF at the end of input, or an error
// wrapping ErrMalformedFrame for a line that is not a frame.
func (j *JSONLReader) Next(_ context.Context) (Frame, error) {
	for j.scanner.Scan() {
		j.line++
		line := bytes.TrimSpace(j.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			return Frame{}, fmt.Errorf("%w: line %d: %w", ErrMalformedFrame, j.line, err)
		}
		if f.Event == "" {
			return Frame{}, fmt.Errorf("%w: line %d: missing event", ErrMalformedFrame, j.line)
		}
		return f, nil
	}
	if err := j.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

// WriteJSONL writes frames one per line.
func WriteJSONL(w io.Writer, frames ...Frame) error {
	enc := json.NewEncoder(w)
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("encoding frame: %w", err)
		}
	}
	return nil
}

// SliceReader replays frames held in memory.
type SliceReader struct {
	frames []Frame
}

// NewSliceReader returns a reader over frames.
func NewSliceReader(frames ...Frame) *SliceReader {
	return &SliceReader{frames: frames}
}

// Next returns the next frame or io.EOF.
func (s *SliceReader) Next(_ context.Context) (Frame, error) {
	if len(s.frames) == 0 {
		return Frame{}, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}
