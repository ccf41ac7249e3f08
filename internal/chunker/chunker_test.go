package chunker

import (
	"strings"
	"testing"
)

func TestChunk_EmptyInput(t *testing.T) {
	if result := Chunk("", DefaultOptions()); result != nil {
		t.Errorf("expected nil, got %v", result)
	}
	if result := Chunk("  \n\n\t ", DefaultOptions()); result != nil {
		t.Errorf("expected nil for whitespace, got %v", result)
	}
}

func TestChunk_ShortContent(t *testing.T) {
	text := "My name is Alex."
	result := Chunk(text, Options{MaxSize: 800, OverlapSize: 100, MinSize: 40})
	if len(result) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(result))
	}
	if result[0] != text {
		t.Errorf("expected %q, got %q", text, result[0])
	}
}

func TestChunk_RespectsMaxSize(t *testing.T) {
	opts := Options{MaxSize: 300, OverlapSize: 60, MinSize: 20}
	var paras []string
	for i := 0; i < 12; i++ {
		paras = append(paras, strings.Repeat("This sentence fills a paragraph. ", 3+i%4))
	}
	text := strings.Join(paras, "\n\n")

	result := Chunk(text, opts)
	if len(result) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(result))
	}
	for i, c := range result {
		if len(c) > opts.MaxSize {
			t.Errorf("chunk %d has %d bytes, max %d", i, len(c), opts.MaxSize)
		}
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}

func TestChunk_OversizedSentenceIsOwnChunk(t *testing.T) {
	opts := Options{MaxSize: 100, OverlapSize: 20, MinSize: 10}
	long := strings.Repeat("word ", 40) + "end."
	text := "Short intro sentence here. " + long + " Closing remark is here."

	result := Chunk(text, opts)
	found := false
	for _, c := range result {
		if c == strings.TrimSpace(long) {
			found = true
			continue
		}
		if len(c) > opts.MaxSize {
			t.Errorf("non-atomic chunk exceeds max: %d bytes", len(c))
		}
	}
	if !found {
		t.Errorf("expected the oversized sentence as its own chunk, got %q", result)
	}
}

func TestChunk_OverlapContinuity(t *testing.T) {
	opts := Options{MaxSize: 200, OverlapSize: 60, MinSize: 10}
	var sentences []string
	for i := 0; i < 30; i++ {
		sentences = append(sentences, "Sentence number "+strings.Repeat("x", i%5+1)+" talks about things.")
	}
	text := strings.Join(sentences, " ")

	result := Chunk(text, opts)
	if len(result) < 3 {
		t.Fatalf("expected several chunks, got %d", len(result))
	}
	for i := 0; i+1 < len(result); i++ {
		prev, next := result[i], result[i+1]
		ok := false
		for n := 1; n <= opts.OverlapSize && n <= len(prev); n++ {
			if strings.HasPrefix(next, prev[len(prev)-n:]) {
				ok = true
				break
			}
		}
		if !ok {
			t.Errorf("chunk %d does not start with a suffix of chunk %d:\n%q\n%q", i+1, i, prev, next)
		}
	}
}

func TestChunk_ParagraphSplit(t *testing.T) {
	para := strings.Repeat("This is a sentence. ", 15) // ~300 chars each
	text := para + "\n\n" + para + "\n\n" + para

	result := Chunk(text, Options{MaxSize: 500, OverlapSize: 50, MinSize: 40})
	if len(result) < 2 {
		t.Fatalf("expected at least 2 chunks from paragraph splits, got %d", len(result))
	}
}

func TestChunk_DropsShortFragmentsInMultiChunkDocs(t *testing.T) {
	opts := Options{MaxSize: 100, OverlapSize: 0, MinSize: 40}
	text := strings.Repeat("A fairly long opening sentence that fills space. ", 2) +
		"\n\nOk.\n\n" +
		strings.Repeat("Another long sentence that carries real content. ", 2)

	result := Chunk(text, opts)
	for _, c := range result {
		if len(c) < opts.MinSize {
			t.Errorf("expected fragments under %d bytes to be dropped, got %q", opts.MinSize, c)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"Pi is 3.14 exactly. Yes.", []string{"Pi is 3.14 exactly.", "Yes."}},
		{"Wait... what?! Ok", []string{"Wait...", "what?!", "Ok"}},
		{"no terminator", []string{"no terminator"}},
	}
	for _, tt := range tests {
		got := splitSentences(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("splitSentences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOverlapTail(t *testing.T) {
	s := "First sentence here. Second sentence here. Third one."
	tail := overlapTail(s, 30)
	if !strings.HasSuffix(s, tail) {
		t.Fatalf("tail %q is not a suffix", tail)
	}
	if len(tail) > 30 {
		t.Errorf("tail longer than window: %d", len(tail))
	}
	if tail != "Third one." {
		t.Errorf("expected tail to start at sentence boundary, got %q", tail)
	}
	if got := overlapTail("Intro words. One. Two. End", 15); got != "End" {
		t.Errorf("expected tail after the nearest sentence boundary, got %q", got)
	}
	if got := overlapTail(s, 0); got != "" {
		t.Errorf("expected empty tail for zero overlap, got %q", got)
	}
}
