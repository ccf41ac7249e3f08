package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/rcliao/recall/internal/model"
)

func TestPackContext(t *testing.T) {
	chunks := []model.ContextChunk{
		{Content: "Alex lives in Lisbon.", SourceName: "note", Similarity: 0.9},
		{Content: strings.Repeat("long passage ", 40), SourceName: "report.md", ChunkIndex: 3, Similarity: 0.8},
		{Content: "Alex has a dog.", Similarity: 0.7},
	}

	pc := packContext("where does alex live", chunks, 100)
	if len(pc.Chunks) != 2 {
		t.Fatalf("expected 2 packed chunks, got %d", len(pc.Chunks))
	}
	if pc.Dropped != 1 {
		t.Errorf("expected 1 dropped chunk, got %d", pc.Dropped)
	}
	if pc.Chunks[1].Content != "Alex has a dog." {
		t.Errorf("expected the smaller later chunk to be kept, got %q", pc.Chunks[1].Content)
	}
	if pc.Used != len(pc.Text) || pc.Used > 100 {
		t.Errorf("used %d, text %d, budget 100", pc.Used, len(pc.Text))
	}
	if !strings.HasPrefix(pc.Text, "[note #0]\nAlex lives in Lisbon.\n\n") {
		t.Errorf("unexpected text: %q", pc.Text)
	}
	if !strings.Contains(pc.Text, "[memory #0]") {
		t.Errorf("expected unnamed chunk to render as memory: %q", pc.Text)
	}
}

func TestPackContext_NoBudget(t *testing.T) {
	chunks := []model.ContextChunk{{Content: "a"}, {Content: "b"}}
	pc := packContext("q", chunks, 0)
	if len(pc.Chunks) != 2 || pc.Dropped != 0 {
		t.Errorf("expected everything kept without a budget, got %d kept %d dropped", len(pc.Chunks), pc.Dropped)
	}

	empty := packContext("q", nil, 100)
	if empty.Chunks == nil || empty.Text != "" {
		t.Errorf("expected empty non-nil result, got %+v", empty)
	}
}

func TestDecodeMemories(t *testing.T) {
	jsonData := []byte(`[{"id":"01A","source_name":"note","content":"hello","created_at":"2026-01-02T03:04:05Z"}]`)
	yamlData := []byte("- id: 01B\n  source_name: doc\n  content: world\n  created_at: 2026-01-02T03:04:05Z\n")

	tests := []struct {
		name   string
		data   []byte
		file   string
		wantID string
	}{
		{"json stdin", jsonData, "", "01A"},
		{"json file", jsonData, "backup.json", "01A"},
		{"yaml stdin", yamlData, "", "01B"},
		{"yaml file", yamlData, "backup.yml", "01B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeMemories(tt.data, tt.file)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != 1 || got[0].ID != tt.wantID {
				t.Fatalf("unexpected memories: %+v", got)
			}
			if !got[0].CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
				t.Errorf("created_at not parsed: %v", got[0].CreatedAt)
			}
		})
	}

	if _, err := decodeMemories([]byte("{not json"), "x.json"); err == nil {
		t.Error("expected error for malformed json")
	}
}

func TestWriteValue(t *testing.T) {
	mem := model.Memory{ID: "01A", Content: "hello"}

	var buf bytes.Buffer
	if err := writeValue(&buf, "json", mem); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"id": "01A"`) {
		t.Errorf("unexpected json: %s", buf.String())
	}

	buf.Reset()
	if err := writeValue(&buf, "yaml", mem); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "id: 01A") {
		t.Errorf("unexpected yaml: %s", buf.String())
	}

	if err := writeValue(&buf, "xml", mem); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteChunksText(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	writeChunksText(&buf, []model.ContextChunk{
		{Content: "line one\nline two", SourceName: "notes.md", ChunkIndex: 2, Similarity: 0.8123},
	})
	want := "[1] 0.812 notes.md #2\n    line one\n    line two\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	writeChunksText(&buf, nil)
	if buf.String() != "no relevant context\n" {
		t.Errorf("unexpected empty rendering: %q", buf.String())
	}
}

func TestPreview(t *testing.T) {
	if got := preview("a  b\n c", 10); got != "a b c" {
		t.Errorf("got %q", got)
	}
	if got := preview("abcdef", 3); got != "abc..." {
		t.Errorf("got %q", got)
	}
}
