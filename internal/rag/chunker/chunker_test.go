package chunker

import (
	"strings"
	"testing"

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
)

func mustSplitter(t *testing.T, size, overlap int) *WindowSplitter {
	t.Helper()
	s, err := NewWindowSplitter(Config{ChunkSize: size, ChunkOverlap: overlap})
	if err != nil {
		t.Fatalf("NewWindowSplitter: %v", err)
	}
	return s
}

func TestSplitOffsets(t *testing.T) {
	// 250 chars with size 100 / overlap 20 must produce windows
	// [0,100), [80,180), [160,250).
	s := mustSplitter(t, 100, 20)
	text := strings.Repeat("a", 250)

	chunks, err := s.Split(text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	want := [][2]int{{0, 100}, {80, 180}, {160, 250}}
	for i, c := range chunks {
		if c.StartOffset != want[i][0] || c.EndOffset != want[i][1] {
			t.Errorf("chunk %d: offsets [%d,%d), want [%d,%d)", i, c.StartOffset, c.EndOffset, want[i][0], want[i][1])
		}
		if c.Index != i {
			t.Errorf("chunk %d: index %d", i, c.Index)
		}
		if len([]rune(c.Content)) != c.EndOffset-c.StartOffset {
			t.Errorf("chunk %d: content length %d does not match offsets", i, len(c.Content))
		}
	}
}

func TestSplitEmptyText(t *testing.T) {
	s := mustSplitter(t, 100, 20)
	chunks, err := s.Split("")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected zero chunks for empty text, got %d", len(chunks))
	}
}

func TestSplitShortText(t *testing.T) {
	s := mustSplitter(t, 100, 20)
	chunks, err := s.Split("short")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "short" || chunks[0].StartOffset != 0 || chunks[0].EndOffset != 5 {
		t.Fatalf("unexpected chunk: %+v", chunks[0])
	}
}

func TestSplitChunkCountFormula(t *testing.T) {
	// count = ceil((L - overlap) / (size - overlap)) for L > 0.
	cases := []struct {
		length, size, overlap int
	}{
		{250, 100, 20},
		{100, 100, 20},
		{101, 100, 20},
		{180, 100, 20},
		{1, 100, 20},
		{999, 100, 0},
		{5000, 1000, 200},
		{4000, 1000, 200},
	}
	for _, tc := range cases {
		s := mustSplitter(t, tc.size, tc.overlap)
		chunks, err := s.Split(strings.Repeat("x", tc.length))
		if err != nil {
			t.Fatalf("Split(L=%d): %v", tc.length, err)
		}
		step := tc.size - tc.overlap
		want := (tc.length - tc.overlap + step - 1) / step
		if want < 1 {
			want = 1
		}
		if len(chunks) != want {
			t.Errorf("L=%d size=%d overlap=%d: got %d chunks, want %d", tc.length, tc.size, tc.overlap, len(chunks), want)
		}
	}
}

func TestSplitReconstruction(t *testing.T) {
	// Concatenating chunks with the overlap prefix removed must
	// reproduce the source exactly.
	s := mustSplitter(t, 64, 16)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)

	chunks, err := s.Split(text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	var sb strings.Builder
	for i, c := range chunks {
		content := []rune(c.Content)
		if i > 0 {
			content = content[16:]
		}
		sb.WriteString(string(content))
	}
	if sb.String() != text {
		t.Fatal("reconstructed text differs from source")
	}
}

func TestSplitMultibyteOffsets(t *testing.T) {
	s := mustSplitter(t, 4, 1)
	chunks, err := s.Split("héllø wörld")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	total := []rune("héllø wörld")
	last := chunks[len(chunks)-1]
	if last.EndOffset != len(total) {
		t.Fatalf("final offset %d, want rune length %d", last.EndOffset, len(total))
	}
}

func TestInvalidOverlap(t *testing.T) {
	if _, err := NewWindowSplitter(Config{ChunkSize: 100, ChunkOverlap: 100}); !ragerr.Is(err, ragerr.KindValidation) {
		t.Fatalf("expected validation error for overlap == size, got %v", err)
	}
	if _, err := NewWindowSplitter(Config{ChunkSize: 100, ChunkOverlap: 150}); !ragerr.Is(err, ragerr.KindValidation) {
		t.Fatalf("expected validation error for overlap > size, got %v", err)
	}
	if _, err := NewWindowSplitter(Config{ChunkSize: 0, ChunkOverlap: 10}); !ragerr.Is(err, ragerr.KindValidation) {
		t.Fatalf("expected validation error for zero size, got %v", err)
	}
}

func TestDefaultsApplied(t *testing.T) {
	s, err := NewWindowSplitter(Config{})
	if err != nil {
		t.Fatalf("NewWindowSplitter: %v", err)
	}
	if s.config.ChunkSize != 1000 || s.config.ChunkOverlap != 200 {
		t.Fatalf("defaults not applied: %+v", s.config)
	}
}
