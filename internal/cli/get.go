package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a global memory",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	mgr, err := loadConfig(cmd.Context())
	if err != nil {
		exitErr("config", err)
	}

	s, err := openStore(mgr.Get())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mem, err := s.GetMemory(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}

	printValue(mem)
}
