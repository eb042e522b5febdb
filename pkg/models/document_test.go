package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSearchMode_Valid(t *testing.T) {
	tests := []struct {
		mode SearchMode
		want bool
	}{
		{SearchModeSemantic, true},
		{SearchModeKeyword, true},
		{SearchModeHybrid, true},
		{SearchMode(""), false},
		{SearchMode("fuzzy"), false},
	}
	for _, tt := range tests {
		if got := tt.mode.Valid(); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestSearchFilters_Empty(t *testing.T) {
	if !(SearchFilters{}).Empty() {
		t.Error("zero filters should be empty")
	}
	if (SearchFilters{FileIDs: []string{"a"}}).Empty() {
		t.Error("file id filter should not be empty")
	}
	if (SearchFilters{Languages: []string{"go"}}).Empty() {
		t.Error("language filter should not be empty")
	}
}

func TestDocument_JSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	doc := Document{
		ProjectID:  "proj-a",
		FileID:     "readme",
		Name:       "README.md",
		Size:       2048,
		FileType:   "documentation",
		Language:   "en",
		Metadata:   map[string]string{"team": "infra"},
		ChunkCount: 3,
		CreatedAt:  now,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Document
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ProjectID != doc.ProjectID || decoded.FileID != doc.FileID {
		t.Errorf("identity lost: %+v", decoded)
	}
	if decoded.Metadata["team"] != "infra" {
		t.Errorf("metadata lost: %v", decoded.Metadata)
	}
	if !decoded.CreatedAt.Equal(now) {
		t.Errorf("created at = %v, want %v", decoded.CreatedAt, now)
	}
}

func TestChunk_EmbeddingNotSerialized(t *testing.T) {
	chunk := Chunk{
		ID:        "c1",
		ProjectID: "proj-a",
		FileID:    "readme",
		Content:   "hello",
		Embedding: []float32{1, 2, 3},
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["Embedding"]; ok {
		t.Error("embedding should not appear in JSON")
	}
	if _, ok := raw["embedding"]; ok {
		t.Error("embedding should not appear in JSON")
	}
}
