package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reembed",
		Short: "Re-embed global memory with the current model",
		Long: "Re-chunk and re-embed every stored memory with the configured embedding model. " +
			"Run after changing embedding.model; chunks from other models are not searchable.",
		Run: runReembed,
	}

	RootCmd.AddCommand(cmd)
}

func runReembed(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("setup", err)
	}
	defer a.Close()

	if err := a.ready(cmd.Context()); err != nil {
		exitErr("reembed", err)
	}

	n, err := a.engine.Reembed(cmd.Context())
	if err != nil {
		exitErr("reembed", err)
	}

	printValue(map[string]any{
		"ok":         true,
		"reembedded": n,
		"model":      a.cfg.Embedding.Model,
	})
}
