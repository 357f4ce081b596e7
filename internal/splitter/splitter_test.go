package splitter

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"math/rand"
	"os"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggeimport/ggeimport/internal/errs"
)

// collect drains a splitter and returns every segment.
func collect(t *testing.T, s *Splitter) []Segment {
	t.Helper()
	var out []Segment
	for !s.Exhausted() {
		seg, err := s.Next()
		require.NoError(t, err)
		out = append(out, seg)
	}
	return out
}

func data(segs []Segment) [][]byte {
	out := make([][]byte, len(segs))
	for i, seg := range segs {
		out[i] = seg.Data
	}
	return out
}

func TestSplitWithPrefix(t *testing.T) {
	input := []byte{
		0xAA, 0xAB,
		0x00, 0x00, 0x01, 0x02, 0x03,
		0x00, 0x00, 0x04, 0x05, 0x06,
		0x00, 0x00, 0x07, 0x08,
	}

	s, err := New(bytes.NewReader(input), []byte{0x00, 0x00})
	require.NoError(t, err)

	segs := collect(t, s)
	require.Len(t, segs, 4)

	assert.Equal(t, Segment{Kind: Prefix, Data: []byte{0xAA, 0xAB}}, segs[0])
	assert.Equal(t, Segment{Kind: FullMatch, Data: []byte{0x01, 0x02, 0x03}}, segs[1])
	assert.Equal(t, Segment{Kind: FullMatch, Data: []byte{0x04, 0x05, 0x06}}, segs[2])
	assert.Equal(t, Segment{Kind: Suffix, Data: []byte{0x07, 0x08}}, segs[3])
	assert.Equal(t, 4, s.Count())
}

func TestSplitWithoutPrefix(t *testing.T) {
	input := []byte{
		0x00, 0x00, 0x01, 0x02, 0x03,
		0x00, 0x00, 0x04, 0x05, 0x06,
		0x00, 0x00, 0x07, 0x08,
	}

	s, err := New(bytes.NewReader(input), []byte{0x00, 0x00})
	require.NoError(t, err)

	segs := collect(t, s)
	require.Len(t, segs, 4)
	assert.Equal(t, Prefix, segs[0].Kind)
	assert.Empty(t, segs[0].Data)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, segs[1].Data)
	assert.Equal(t, []byte{0x04, 0x05, 0x06}, segs[2].Data)
	assert.Equal(t, []byte{0x07, 0x08}, segs[3].Data)
}

// A lone leading separator byte after a completed match must stay in the
// next segment.
func TestSplitBrokenMatchRepeatedLeadingByte(t *testing.T) {
	input := []byte{
		0x00, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
		0x00, 0x00, 0x00, 0x04, 0x05, 0x06,
		0x00, 0x00, 0x07, 0x08,
	}

	s, err := New(bytes.NewReader(input), []byte{0x00, 0x00})
	require.NoError(t, err)

	assert.Equal(t, [][]byte{
		{},
		{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07},
		{0x00, 0x04, 0x05, 0x06},
		{0x07, 0x08},
	}, data(collect(t, s)))
}

func TestSplitBrokenMatchThreeByteSeparator(t *testing.T) {
	input := []byte{
		0x01, 0x02, 0x03, 0x02, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06,
		0x01, 0x02, 0x03, 0x08,
	}

	s, err := New(bytes.NewReader(input), []byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	assert.Equal(t, [][]byte{
		{},
		{0x02, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07},
		{0x04, 0x05, 0x06},
		{0x08},
	}, data(collect(t, s)))
}

func TestSplitPartialMatchRestartsInsideWindow(t *testing.T) {
	// "aab" must still be found after the broken "aa" attempt.
	s, err := New(bytes.NewReader([]byte("xaaaby")), []byte("aab"))
	require.NoError(t, err)

	assert.Equal(t, [][]byte{[]byte("xa"), []byte("y")}, data(collect(t, s)))
}

func TestSplitUnfinishedMatchAtEOF(t *testing.T) {
	s, err := New(bytes.NewReader([]byte("abc\x00")), []byte{0x00, 0x00})
	require.NoError(t, err)

	segs := collect(t, s)
	require.Len(t, segs, 1)
	assert.Equal(t, Suffix, segs[0].Kind)
	assert.Equal(t, []byte("abc\x00"), segs[0].Data)
}

func TestSplitEndsOnSeparator(t *testing.T) {
	s, err := New(bytes.NewReader([]byte("one\x00two\x00")), []byte{0x00})
	require.NoError(t, err)

	segs := collect(t, s)
	require.Len(t, segs, 3)
	assert.Equal(t, Prefix, segs[0].Kind)
	assert.Equal(t, FullMatch, segs[1].Kind)
	assert.Equal(t, Suffix, segs[2].Kind)
	assert.Empty(t, segs[2].Data)
}

func TestSplitEmptyInput(t *testing.T) {
	s, err := New(bytes.NewReader(nil), []byte{0x00})
	require.NoError(t, err)

	seg, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, Suffix, seg.Kind)
	assert.Empty(t, seg.Data)
}

func TestSplitExhausted(t *testing.T) {
	s, err := New(bytes.NewReader([]byte("a")), []byte{0x00})
	require.NoError(t, err)

	_, err = s.Next()
	require.NoError(t, err)

	_, err = s.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrExhausted)
	assert.True(t, errs.IsKind(err, errs.KindExhausted))
}

func TestNewRejectsEmptySeparator(t *testing.T) {
	_, err := New(bytes.NewReader(nil), nil)
	assert.ErrorIs(t, err, errs.ErrEmptySeparator)
}

func TestSeparatorIsCopied(t *testing.T) {
	sep := []byte{0x00}
	s, err := New(bytes.NewReader([]byte("a\x00b")), sep)
	require.NoError(t, err)

	sep[0] = 'b'
	assert.Equal(t, []byte{0x00}, s.Separator())
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, data(collect(t, s)))
}

// flakyReader fails with a deadline error once after the given offset.
type flakyReader struct {
	data    []byte
	pos     int
	failAt  int
	tripped bool
}

func (r *flakyReader) Read(p []byte) (int, error) {
	if r.pos == r.failAt && !r.tripped {
		r.tripped = true
		return 0, os.ErrDeadlineExceeded
	}
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := len(r.data)
	if r.pos < r.failAt && end > r.failAt {
		end = r.failAt
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}

func TestSplitResumesAfterTimeout(t *testing.T) {
	input := []byte("first\x00sec\x00ond\x00\x00third")
	r := &flakyReader{data: input, failAt: 10}

	s, err := New(r, []byte{0x00, 0x00})
	require.NoError(t, err)

	_, err = s.Next()
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
	assert.True(t, errs.IsKind(err, errs.KindTransport))
	assert.False(t, s.Exhausted())

	assert.Equal(t, [][]byte{
		[]byte("first\x00sec\x00ond"),
		[]byte("third"),
	}, data(collect(t, s)))
}

func TestSplitReadError(t *testing.T) {
	boom := errors.New("connection reset")
	s, err := New(iotest.ErrReader(boom), []byte{0x00})
	require.NoError(t, err)

	_, err = s.Next()
	assert.ErrorIs(t, err, boom)
	assert.True(t, errs.IsKind(err, errs.KindTransport))
}

// Segments must equal a left-to-right non-overlapping split for every input,
// whatever the read chunking is.
func TestSplitMatchesReferenceSplit(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	separators := [][]byte{
		{0x00},
		{0x00, 0x00},
		{0x01, 0x02, 0x03},
		{0x01, 0x01, 0x02},
		{0x01, 0x02, 0x01, 0x02, 0x03},
		[]byte("%xt%"),
	}

	for _, sep := range separators {
		for i := 0; i < 300; i++ {
			input := make([]byte, rng.Intn(120))
			for j := range input {
				// Small alphabet so separators and near-misses are common.
				input[j] = byte(rng.Intn(4))
				if sep[0] == '%' && rng.Intn(3) == 0 {
					input[j] = "%xt"[rng.Intn(3)]
				}
			}

			readers := map[string]io.Reader{
				"whole":    bytes.NewReader(input),
				"one_byte": iotest.OneByteReader(bytes.NewReader(input)),
				"small":    bufio.NewReaderSize(iotest.HalfReader(bytes.NewReader(input)), 16),
			}

			for name, r := range readers {
				s, err := New(r, sep)
				require.NoError(t, err)

				segs := collect(t, s)
				want := bytes.Split(input, sep)
				got := data(segs)

				require.Equal(t, want, got, "reader=%s sep=%x input=%x", name, sep, input)
				assert.Equal(t, input, bytes.Join(got, sep))

				terminated := 0
				for _, seg := range segs[:len(segs)-1] {
					terminated++
					assert.NotEqual(t, Suffix, seg.Kind)
				}
				assert.Equal(t, Suffix, segs[len(segs)-1].Kind)
				assert.Equal(t, bytes.Count(input, sep), terminated)
			}
		}
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "prefix", Prefix.String())
	assert.Equal(t, "full_match", FullMatch.String())
	assert.Equal(t, "suffix", Suffix.String())
}
