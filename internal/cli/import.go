package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/recall/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import global memories",
		Long: "Import memories from JSON or YAML (file or stdin), in the format produced by " +
			"export. Existing ids are skipped. Imported memories are embedded unless --no-embed is set.",
		Args: cobra.MaximumNArgs(1),
		Run:  runImport,
	}

	cmd.Flags().Bool("no-embed", false, "Store memories without embedding them; run reembed later")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	noEmbed, _ := cmd.Flags().GetBool("no-embed")

	var (
		data []byte
		err  error
		name string
	)
	if len(args) == 1 {
		name = args[0]
		data, err = os.ReadFile(name)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read input", err)
	}

	memories, err := decodeMemories(data, name)
	if err != nil {
		exitErr("parse", err)
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("setup", err)
	}
	defer a.Close()

	ids, err := a.store.Import(cmd.Context(), memories)
	if err != nil {
		exitErr("import", err)
	}

	embedded := 0
	if !noEmbed && len(ids) > 0 {
		if err := a.ready(cmd.Context()); err != nil {
			a.log.Warn("imported without embeddings; run reembed", zap.Error(err))
		} else if embedded, err = a.engine.ReembedMemories(cmd.Context(), ids...); err != nil {
			exitErr("embed imported", err)
		}
	}

	printValue(map[string]any{"ok": true, "imported": len(ids), "embedded": embedded})
}

// decodeMemories accepts the JSON or YAML export format. YAML is chosen by
// file extension, or by content when reading stdin.
func decodeMemories(data []byte, name string) ([]model.Memory, error) {
	var memories []model.Memory
	ext := strings.ToLower(filepath.Ext(name))
	trimmed := bytes.TrimSpace(data)
	if ext == ".yaml" || ext == ".yml" || (ext != ".json" && len(trimmed) > 0 && trimmed[0] != '[') {
		if err := yaml.Unmarshal(data, &memories); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		return memories, nil
	}
	if err := json.Unmarshal(data, &memories); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return memories, nil
}
