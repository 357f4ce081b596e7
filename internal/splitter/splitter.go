// Package splitter segments an unbounded byte stream on a multi-byte
// separator. Segments are produced lazily, one per call to Next, so a
// network stream can be consumed frame by frame while it is still arriving.
package splitter

import (
	"bufio"
	"errors"
	"io"

	"github.com/ggeimport/ggeimport/internal/errs"
)

// Kind tags a segment with its position relative to the separators around it.
type Kind int

const (
	// Prefix is the first segment, terminated by the first separator match.
	Prefix Kind = iota
	// FullMatch is a segment bounded by separators on both sides.
	FullMatch
	// Suffix is the final segment, terminated by end of stream.
	Suffix
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case Prefix:
		return "prefix"
	case FullMatch:
		return "full_match"
	case Suffix:
		return "suffix"
	default:
		return "unknown"
	}
}

// Segment is one piece of the input stream with the separator removed.
type Segment struct {
	Kind Kind
	Data []byte
}

// Splitter reads segments from a stream. It is single-use: once the Suffix
// has been returned every further call to Next fails with errs.ErrExhausted.
type Splitter struct {
	r   *bufio.Reader
	sep []byte

	// border[i] is the length of the longest proper prefix of sep[:i+1]
	// that is also a suffix of it.
	border []int

	// pending is the length of the separator prefix matched by the most
	// recently read bytes. Those bytes are sep[:pending] and are not yet
	// part of cur.
	pending int
	cur     []byte

	started bool
	done    bool
	count   int
}

// New creates a Splitter reading from r. If r is not already buffered it is
// wrapped in a bufio.Reader. The separator is copied.
func New(r io.Reader, sep []byte) (*Splitter, error) {
	if len(sep) == 0 {
		return nil, errs.ErrEmptySeparator
	}

	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	s := &Splitter{
		r:   br,
		sep: append([]byte(nil), sep...),
	}
	s.border = borders(s.sep)
	return s, nil
}

// borders computes the prefix function of sep.
func borders(sep []byte) []int {
	b := make([]int, len(sep))
	k := 0
	for i := 1; i < len(sep); i++ {
		for k > 0 && sep[i] != sep[k] {
			k = b[k-1]
		}
		if sep[i] == sep[k] {
			k++
		}
		b[i] = k
	}
	return b
}

// Separator returns a copy of the separator.
func (s *Splitter) Separator() []byte {
	return append([]byte(nil), s.sep...)
}

// Count returns the number of segments emitted so far.
func (s *Splitter) Count() int {
	return s.count
}

// Exhausted reports whether the Suffix has been emitted.
func (s *Splitter) Exhausted() bool {
	return s.done
}

// Next returns the next segment.
//
// Read errors other than io.EOF are returned as transport errors. Bytes read
// before the failure stay buffered in the splitter, so after a read timeout
// the caller may call Next again and the segment continues where it stopped.
func (s *Splitter) Next() (Segment, error) {
	if s.done {
		return Segment{}, errs.New(errs.KindExhausted, "splitter.next", errs.ErrExhausted)
	}

	for {
		if s.pending == 0 {
			// Nothing pending: skip ahead to the next candidate start byte.
			chunk, err := s.r.ReadSlice(s.sep[0])
			if err == nil {
				s.cur = append(s.cur, chunk[:len(chunk)-1]...)
				if s.feed(s.sep[0]) {
					return s.take(), nil
				}
				continue
			}
			s.cur = append(s.cur, chunk...)
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}
			return s.stop(err)
		}

		b, err := s.r.ReadByte()
		if err != nil {
			return s.stop(err)
		}
		if s.feed(b) {
			return s.take(), nil
		}
	}
}

// feed advances the matcher by one byte and reports whether the separator
// has just been completed. When a partial match breaks, the bytes that can
// no longer begin a match are moved into cur in their original order; the
// longest tail that still prefixes the separator stays pending.
func (s *Splitter) feed(b byte) bool {
	for s.pending > 0 && s.sep[s.pending] != b {
		keep := s.border[s.pending-1]
		s.cur = append(s.cur, s.sep[:s.pending-keep]...)
		s.pending = keep
	}

	if s.sep[s.pending] != b {
		s.cur = append(s.cur, b)
		return false
	}

	s.pending++
	if s.pending == len(s.sep) {
		s.pending = 0
		return true
	}
	return false
}

// take emits the accumulated bytes as a separator-terminated segment.
func (s *Splitter) take() Segment {
	kind := FullMatch
	if !s.started {
		kind = Prefix
		s.started = true
	}
	return s.emit(kind)
}

func (s *Splitter) emit(kind Kind) Segment {
	data := s.cur
	if data == nil {
		data = []byte{}
	}
	s.cur = nil
	s.count++
	return Segment{Kind: kind, Data: data}
}

// stop handles a read error. End of stream flushes everything, including an
// unfinished separator match, as the Suffix.
func (s *Splitter) stop(err error) (Segment, error) {
	if errors.Is(err, io.EOF) {
		s.cur = append(s.cur, s.sep[:s.pending]...)
		s.pending = 0
		s.done = true
		return s.emit(Suffix), nil
	}
	return Segment{}, errs.Transport("splitter.next", err)
}
