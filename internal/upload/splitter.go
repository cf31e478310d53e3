package upload

import (
	"errors"
	"io"
)

// splitter cuts a reader into numbered parts of partSize bytes. The last part
// may be shorter; a zero-length part is never produced.
type splitter struct {
	r        io.Reader
	partSize int64
	next     int32
	done     bool
}

func newSplitter(r io.Reader, partSize int64) *splitter {
	return &splitter{r: r, partSize: partSize, next: 1}
}

// Next returns the next part and its 1-based number, or io.EOF once the
// source is exhausted.
func (s *splitter) Next() (int32, []byte, error) {
	if s.done {
		return 0, nil, io.EOF
	}

	buf := make([]byte, s.partSize)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case errors.Is(err, io.EOF):
		s.done = true
		return 0, nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
	case err != nil:
		s.done = true
		return 0, nil, err
	}

	if s.next > MaxParts {
		s.done = true
		return 0, nil, ErrTooManyParts
	}

	number := s.next
	s.next++
	return number, buf[:n], nil
}

// Count is the number of parts emitted so far.
func (s *splitter) Count() int32 {
	return s.next - 1
}
