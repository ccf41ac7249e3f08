// Package chunker splits document text into overlapping chunks sized for embedding.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxSize     = 800
	DefaultOverlapSize = 100
	DefaultMinSize     = 40
)

// Options configures chunking behavior.
type Options struct {
	// MaxSize bounds every chunk except a single sentence that is longer on its own.
	MaxSize int
	// OverlapSize is how much trailing text of a chunk seeds the next one.
	OverlapSize int
	// MinSize drops low-value fragments when a document yields more than one chunk.
	MinSize int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		MaxSize:     DefaultMaxSize,
		OverlapSize: DefaultOverlapSize,
		MinSize:     DefaultMinSize,
	}
}

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// Chunk splits text into chunks. Short text (<= MaxSize) returns a single chunk,
// however small, so pasted one-line memories stay retrievable.
func Chunk(text string, opts Options) []string {
	if opts.MaxSize <= 0 {
		opts = DefaultOptions()
	}
	if opts.OverlapSize < 0 {
		opts.OverlapSize = 0
	}
	if opts.OverlapSize >= opts.MaxSize {
		opts.OverlapSize = opts.MaxSize / 4
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= opts.MaxSize {
		return []string{text}
	}

	paragraphs := splitParagraphs(text)
	acc := &accumulator{opts: opts}
	if len(paragraphs) <= 1 {
		// No blank lines at all: sentence splitting over the whole text.
		for _, s := range splitSentences(text) {
			acc.add(s, " ")
		}
	} else {
		for _, p := range paragraphs {
			if len(p) <= opts.MaxSize {
				acc.add(p, "\n\n")
				continue
			}
			for i, s := range splitSentences(p) {
				sep := " "
				if i == 0 {
					sep = "\n\n"
				}
				acc.add(s, sep)
			}
		}
	}

	return dropShort(acc.finish(), opts.MinSize)
}

// splitParagraphs splits on blank lines and discards empty paragraphs.
func splitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// splitSentences breaks text after '.', '!' or '?' runs that are followed by
// whitespace or the end of the text.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if !isTerminator(text[i]) {
			continue
		}
		j := i + 1
		for j < len(text) && isTerminator(text[j]) {
			j++
		}
		if j < len(text) && !isSpace(text[j]) {
			i = j - 1
			continue
		}
		if s := strings.TrimSpace(text[start:j]); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminator(b byte) bool { return b == '.' || b == '!' || b == '?' }

func isSpace(b byte) bool { return b == ' ' || b == '\n' || b == '\t' || b == '\r' }

// accumulator collects pieces into a running buffer and flushes it as a chunk
// when the next piece would not fit.
type accumulator struct {
	opts   Options
	buf    string
	chunks []string
	// seeded is true while buf holds only overlap carried from the previous chunk.
	seeded bool
}

func (a *accumulator) add(piece, sep string) {
	if len(piece) > a.opts.MaxSize {
		// An oversized sentence is atomic and becomes its own chunk.
		a.flush()
		a.emit(piece)
		return
	}
	if a.buf == "" {
		a.buf, a.seeded = piece, false
		return
	}
	if len(a.buf)+len(sep)+len(piece) <= a.opts.MaxSize {
		a.buf, a.seeded = a.buf+sep+piece, false
		return
	}
	if a.seeded {
		// The overlap and the piece do not fit together; the piece wins.
		a.buf, a.seeded = piece, false
		return
	}
	a.flush()
	a.add(piece, sep)
}

// flush emits the buffer unless it only holds carried-over overlap.
func (a *accumulator) flush() {
	if a.seeded || strings.TrimSpace(a.buf) == "" {
		a.buf, a.seeded = "", false
		return
	}
	a.emit(a.buf)
}

func (a *accumulator) emit(text string) {
	t := strings.TrimSpace(text)
	if t == "" {
		return
	}
	a.chunks = append(a.chunks, t)
	a.buf = overlapTail(t, a.opts.OverlapSize)
	a.seeded = a.buf != ""
}

func (a *accumulator) finish() []string {
	if !a.seeded {
		if t := strings.TrimSpace(a.buf); t != "" {
			a.chunks = append(a.chunks, t)
		}
	}
	a.buf, a.seeded = "", false
	return a.chunks
}

// overlapTail returns at most n trailing bytes of s, starting after the last
// sentence boundary inside the window, otherwise at a word boundary.
func overlapTail(s string, n int) string {
	if n <= 0 || s == "" {
		return ""
	}
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	window := s[start:]

	if i := strings.LastIndex(window, ". "); i >= 0 {
		if t := strings.TrimSpace(window[i+2:]); t != "" {
			return t
		}
	}
	if i := strings.IndexAny(window, " \n\t"); i >= 0 {
		if t := strings.TrimSpace(window[i+1:]); t != "" {
			return t
		}
	}
	return strings.TrimSpace(window)
}

// dropShort removes fragments below minSize, unless the document produced a
// single chunk.
func dropShort(chunks []string, minSize int) []string {
	if len(chunks) <= 1 || minSize <= 0 {
		return chunks
	}
	kept := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if len(strings.TrimSpace(c)) >= minSize {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return chunks[:1]
	}
	return kept
}
