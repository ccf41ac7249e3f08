package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export global memories",
		Long: "Export global memories as JSON, or YAML with --format yaml. Embeddings are not " +
			"exported; import re-embeds with the current model.",
		Run: runExport,
	}

	cmd.Flags().StringP("source", "s", "", "Filter by source name")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")

	mgr, err := loadConfig(cmd.Context())
	if err != nil {
		exitErr("config", err)
	}

	s, err := openStore(mgr.Get())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	memories, err := s.ExportAll(cmd.Context(), source)
	if err != nil {
		exitErr("export", err)
	}
	if memories == nil {
		memories = []model.Memory{}
	}

	printValue(memories)
}
