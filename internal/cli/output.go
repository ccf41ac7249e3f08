package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/recall/internal/model"
)

// printValue writes v to stdout in the selected format. Text falls back to
// JSON for values without a text rendering.
func printValue(v any) {
	if err := writeValue(os.Stdout, formatFlag, v); err != nil {
		exitErr("output", err)
	}
}

func writeValue(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json", "text", "":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	default:
		return fmt.Errorf("unknown format %q (json, yaml or text)", format)
	}
}

// writeChunksText renders search results for a terminal.
func writeChunksText(w io.Writer, chunks []model.ContextChunk) {
	if len(chunks) == 0 {
		fmt.Fprintln(w, color.New(color.Faint).Sprint("no relevant context"))
		return
	}
	score := color.New(color.FgGreen, color.Bold).SprintFunc()
	source := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	for i, c := range chunks {
		name := c.SourceName
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "%s %s %s\n", score(fmt.Sprintf("[%d] %.3f", i+1, c.Similarity)), source(name), faint(fmt.Sprintf("#%d", c.ChunkIndex)))
		fmt.Fprintln(w, indent(c.Content, "    "))
		if i < len(chunks)-1 {
			fmt.Fprintln(w)
		}
	}
}

func writeMemoriesText(w io.Writer, memories []model.Memory) {
	id := color.New(color.FgYellow).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()
	for _, m := range memories {
		fmt.Fprintf(w, "%s %s %s\n", id(m.ID), m.SourceName, faint(m.CreatedAt.Format("2006-01-02 15:04")))
		fmt.Fprintln(w, indent(preview(m.Content, 160), "    "))
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// readContent takes content from args or, when none are given, from piped stdin.
func readContent(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, _ := os.Stdin.Stat()
	if stat != nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	return "", nil
}
