package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func words(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "word%03d ", i)
	}
	return sb.String()
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s := New()
	text := strings.Repeat("a", 500)
	got := s.Split(text)
	if len(got) != 1 || got[0] != text {
		t.Fatalf("got %d chunks, want the input as a single chunk", len(got))
	}
}

func TestSplit_Empty(t *testing.T) {
	if got := New().Split(""); len(got) != 0 {
		t.Errorf("Split(\"\") = %v, want none", got)
	}
	if got := New().Split("  \n\n "); len(got) != 0 {
		t.Errorf("Split(whitespace) = %v, want none", got)
	}
}

func TestSplit_LongTextBoundsAndCoverage(t *testing.T) {
	text := strings.Repeat("x", 2500)
	s := New()
	got := s.Split(text)
	if len(got) < 3 {
		t.Fatalf("got %d chunks, want >= 3", len(got))
	}
	covered := 0
	for i, c := range got {
		n := utf8.RuneCountInString(c)
		if n == 0 {
			t.Errorf("chunk %d is empty", i)
		}
		if n > DefaultChunkSize {
			t.Errorf("chunk %d has %d chars, want <= %d", i, n, DefaultChunkSize)
		}
		covered += n
	}
	// Overlap means the chunks together hold at least the whole input.
	if covered < len(text) {
		t.Errorf("chunks cover %d chars, want >= %d", covered, len(text))
	}
	if !strings.HasPrefix(text, got[0]) || !strings.HasSuffix(text, got[len(got)-1]) {
		t.Error("first and last chunk must anchor the start and end of the input")
	}
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	p1 := strings.Repeat("a", 60)
	p2 := strings.Repeat("b", 60)
	text := p1 + "\n\n" + p2
	got := New(WithChunkSize(100), WithOverlap(10)).Split(text)
	if len(got) != 2 {
		t.Fatalf("got %d chunks: %q", len(got), got)
	}
	if got[0] != p1+"\n\n" || got[1] != p2 {
		t.Errorf("chunks = %q", got)
	}
}

func TestSplit_WordBoundariesWithOverlap(t *testing.T) {
	text := words(40)
	s := New(WithChunkSize(50), WithOverlap(10))
	got := s.Split(text)
	if len(got) < 2 {
		t.Fatalf("got %d chunks, want several", len(got))
	}
	for i := 0; i < 40; i++ {
		w := fmt.Sprintf("word%03d", i)
		found := false
		for _, c := range got {
			if strings.Contains(c, w) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s missing from every chunk", w)
		}
	}
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		if utf8.RuneCountInString(cur) > 50 {
			t.Errorf("chunk %d too long: %q", i, cur)
		}
		// Each carried-over word is a suffix of the previous chunk.
		tail := prev[len(prev)-8:]
		if !strings.HasPrefix(cur, tail) {
			t.Errorf("chunk %d = %q does not start with overlap %q", i, cur, tail)
		}
	}
}

func TestSplit_MultibyteCountsRunes(t *testing.T) {
	text := strings.Repeat("é", 150)
	got := New(WithChunkSize(100), WithOverlap(20)).Split(text)
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	for _, c := range got {
		if !utf8.ValidString(c) {
			t.Fatalf("chunk %q is not valid UTF-8", c)
		}
		if n := utf8.RuneCountInString(c); n > 100 {
			t.Errorf("chunk has %d runes", n)
		}
	}
}

func TestNew_ClampsOverlap(t *testing.T) {
	s := New(WithChunkSize(100), WithOverlap(100))
	if s.Overlap() != 25 {
		t.Errorf("Overlap() = %d, want 25", s.Overlap())
	}
}
