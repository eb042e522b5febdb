// Package chunker splits document text into overlapping windows
// suitable for embedding and retrieval.
package chunker

import (
	"github.com/toolkit-rag/engine/internal/rag/ragerr"
)

// Splitter defines the interface for text chunking strategies.
type Splitter interface {
	// Split cuts text into an ordered sequence of chunks with source
	// offsets. The same input and configuration always produce the
	// same boundaries.
	Split(text string) ([]Chunk, error)

	// Name returns the splitter name for logging and debugging.
	Name() string
}

// Chunk is a piece of text with its position in the source.
// Offsets are character (rune) positions, end exclusive.
type Chunk struct {
	Index       int
	Content     string
	StartOffset int
	EndOffset   int
}

// Config contains common configuration for splitters.
type Config struct {
	// ChunkSize is the window size in characters. Default: 1000.
	ChunkSize int `yaml:"chunk_size"`

	// ChunkOverlap is the number of characters shared between
	// consecutive windows. Must be smaller than ChunkSize. Default: 200.
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// DefaultConfig returns the default chunking configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Validate checks the size/overlap relation shared by all splitters.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return ragerr.New(ragerr.KindValidation, "chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return ragerr.New(ragerr.KindValidation, "chunk_overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return ragerr.New(ragerr.KindValidation, "chunk_overlap %d must be smaller than chunk_size %d", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// WindowSplitter cuts text into fixed-size windows that overlap by a
// configured number of characters. Window N starts at
// N*(size-overlap), so boundaries depend only on the input length and
// the configuration.
type WindowSplitter struct {
	config Config
}

// NewWindowSplitter creates a window splitter with the given config.
// Zero-valued fields fall back to defaults.
func NewWindowSplitter(cfg Config) (*WindowSplitter, error) {
	if cfg.ChunkSize == 0 && cfg.ChunkOverlap == 0 {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &WindowSplitter{config: cfg}, nil
}

// Name returns the splitter name.
func (s *WindowSplitter) Name() string {
	return "window"
}

// Split cuts text into overlapping windows. Empty text yields zero
// chunks; text shorter than the window yields exactly one chunk; the
// final chunk may be shorter than the window.
func (s *WindowSplitter) Split(text string) ([]Chunk, error) {
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	size := s.config.ChunkSize
	step := size - s.config.ChunkOverlap

	var chunks []Chunk
	for start := 0; ; start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Index:       len(chunks),
			Content:     string(runes[start:end]),
			StartOffset: start,
			EndOffset:   end,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
