// Package chunker splits section text into bounded, overlapping chunks
// that prefer natural boundaries.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the default maximum number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of characters shared by
// consecutive chunks.
const DefaultChunkOverlap = 200

// defaultSeparators lists split boundaries from coarsest to finest:
// paragraph, line, sentence, word. The empty separator cuts between
// characters and is always tried last.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter is a recursive character splitter. Sizes are counted in
// characters (runes), not bytes.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize sets the maximum chunk size in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// WithSeparators replaces the boundary list. A final "" separator is
// appended when missing so that any text can be split.
func WithSeparators(seps ...string) Option {
	return func(s *Splitter) {
		if len(seps) == 0 {
			return
		}
		out := append([]string(nil), seps...)
		if out[len(out)-1] != "" {
			out = append(out, "")
		}
		s.separators = out
	}
}

// New creates a Splitter with the given options.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: defaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	return s
}

// ChunkSize returns the configured maximum chunk size.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split breaks text into chunks of at most ChunkSize characters. Text that
// already fits is returned as a single chunk. Every non-whitespace
// character of the input appears in at least one chunk, and chunks made
// only of whitespace are dropped.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if runeLen(text) <= s.chunkSize {
		return []string{text}
	}

	atoms := s.atomize(text, s.separators)
	return s.merge(atoms)
}

// atomize recursively splits text into pieces that each fit in a chunk.
// Concatenating the returned pieces reproduces text exactly.
func (s *Splitter) atomize(text string, seps []string) []string {
	if runeLen(text) <= s.chunkSize {
		return []string{text}
	}

	sep, rest := pickSeparator(text, seps)
	if sep == "" {
		return splitRunes(text)
	}

	var atoms []string
	for _, piece := range splitKeep(text, sep) {
		if runeLen(piece) <= s.chunkSize {
			atoms = append(atoms, piece)
			continue
		}
		atoms = append(atoms, s.atomize(piece, rest)...)
	}
	return atoms
}

// merge packs atoms greedily into chunks, carrying up to overlap trailing
// characters of each chunk into the next one.
func (s *Splitter) merge(atoms []string) []string {
	var (
		chunks []string
		window []string
		lens   []int
		total  int
	)

	emit := func() {
		if len(window) == 0 {
			return
		}
		chunk := strings.Join(window, "")
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
	}

	for _, a := range atoms {
		n := runeLen(a)
		if total+n > s.chunkSize && len(window) > 0 {
			emit()
			for len(window) > 0 && (total > s.overlap || total+n > s.chunkSize) {
				total -= lens[0]
				window = window[1:]
				lens = lens[1:]
			}
		}
		window = append(window, a)
		lens = append(lens, n)
		total += n
	}
	emit()
	return chunks
}

// pickSeparator returns the first separator present in text and the
// finer separators that follow it.
func pickSeparator(text string, seps []string) (string, []string) {
	for i, sep := range seps {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, seps[i+1:]
		}
	}
	return "", nil
}

// splitKeep splits text after each occurrence of sep, keeping the separator
// attached to the preceding piece.
func splitKeep(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitRunes(text string) []string {
	out := make([]string, 0, len(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
