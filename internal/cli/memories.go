package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:     "memories",
		Aliases: []string{"list", "ls"},
		Short:   "List global memories",
		Run:     runMemories,
	}

	cmd.Flags().StringP("source", "s", "", "Filter by source name")
	cmd.Flags().String("contains", "", "Filter by content substring")
	cmd.Flags().IntP("limit", "l", 50, "Max results")

	RootCmd.AddCommand(cmd)
}

func runMemories(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	contains, _ := cmd.Flags().GetString("contains")
	limit, _ := cmd.Flags().GetInt("limit")

	mgr, err := loadConfig(cmd.Context())
	if err != nil {
		exitErr("config", err)
	}

	s, err := openStore(mgr.Get())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	memories, err := s.List(cmd.Context(), store.ListParams{
		Source:   source,
		Contains: contains,
		Limit:    limit,
	})
	if err != nil {
		exitErr("list", err)
	}
	if memories == nil {
		memories = []model.Memory{}
	}

	if formatFlag == "text" {
		writeMemoriesText(os.Stdout, memories)
		return
	}
	printValue(memories)
}
