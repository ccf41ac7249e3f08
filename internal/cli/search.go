package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/retrieval"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Retrieve relevant context",
		Long: "Embed the query and return the most relevant chunks. Without --chat the global " +
			"memory is searched. With --chat, files given by --attach are indexed into that " +
			"conversation first, and global memory is merged in when cross-chat memory is on.",
		Args: cobra.MinimumNArgs(1),
		Run:  runSearch,
	}

	cmd.Flags().String("chat", "", "Conversation id to search")
	cmd.Flags().StringSliceP("attach", "a", nil, "Files to index into the conversation before searching")
	cmd.Flags().IntP("max", "m", 0, "Max results (default: retrieval.max_results)")
	cmd.Flags().BoolP("relaxed", "r", false, "Fall back to lexical overlap when nothing passes the similarity policy")
	cmd.Flags().Bool("cross-chat", true, "Merge global memory into conversation searches")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	chat, _ := cmd.Flags().GetString("chat")
	attach, _ := cmd.Flags().GetStringSlice("attach")
	maxResults, _ := cmd.Flags().GetInt("max")
	relaxed, _ := cmd.Flags().GetBool("relaxed")
	query := strings.Join(args, " ")

	if len(attach) > 0 && chat == "" {
		chat = "cli"
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("setup", err)
	}
	defer a.Close()

	if cmd.Flags().Changed("cross-chat") {
		on, _ := cmd.Flags().GetBool("cross-chat")
		a.mgr.Preferences().SetCrossChatMemory(on)
	}
	if maxResults <= 0 {
		maxResults = a.cfg.Retrieval.MaxResults
	}

	if err := a.ready(cmd.Context()); err != nil {
		exitErr("search", err)
	}

	collectionID := model.GlobalCollectionID
	if chat != "" {
		collectionID = chat
		n := a.engine.ReplicateGlobalChunksToChat(chat)
		a.log.Debug("global memory replicated", zap.String("chat", chat), zap.Int("chunks", n))
		for _, path := range attach {
			if err := attachFile(cmd.Context(), a, chat, path); err != nil {
				exitErr("attach", err)
			}
		}
	}

	results := a.engine.Search(cmd.Context(), collectionID, query, retrieval.SearchOptions{
		MaxResults: maxResults,
		Relaxed:    relaxed,
	})
	if results == nil {
		results = []model.ContextChunk{}
	}

	if formatFlag == "text" {
		writeChunksText(os.Stdout, results)
		return
	}
	printValue(results)
}

func attachFile(ctx context.Context, a *app, chat, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	if !a.engine.AddDocument(ctx, chat, string(b), name, model.MetaUploaded) {
		return fmt.Errorf("%s: nothing could be indexed", name)
	}
	return nil
}
