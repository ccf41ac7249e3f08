package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [content]",
		Short: "Store a global memory",
		Long: "Chunk, embed and persist a note in global memory. Content can be a positional arg " +
			"or piped via stdin. Global memory is searchable from every conversation.",
		Run: runRemember,
	}

	cmd.Flags().StringP("source", "s", "", "Source name (default: note)")

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	if source == "" {
		source = "note"
	}

	content, err := readContent(args)
	if err != nil {
		exitErr("remember", err)
	}
	if strings.TrimSpace(content) == "" {
		exitErr("remember", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("setup", err)
	}
	defer a.Close()

	if err := a.ready(cmd.Context()); err != nil {
		exitErr("remember", err)
	}

	id, err := a.engine.Remember(cmd.Context(), content, source)
	if err != nil {
		exitErr("remember", err)
	}

	mem, err := a.store.GetMemory(cmd.Context(), id)
	if err != nil {
		exitErr("remember", err)
	}
	printValue(mem)
}
