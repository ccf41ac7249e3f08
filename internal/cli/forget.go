package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "forget <id>...",
		Short: "Delete global memories",
		Long:  "Delete global memories and their stored chunks by id.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runForget,
	}

	RootCmd.AddCommand(cmd)
}

func runForget(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("setup", err)
	}
	defer a.Close()

	// Forget works on storage alone; the engine does not need an embedder for it.
	for _, id := range args {
		if err := a.engine.Forget(cmd.Context(), id); err != nil {
			exitErr("forget", err)
		}
	}

	printValue(map[string]any{"ok": true, "deleted": args})
}
