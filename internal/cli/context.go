package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/retrieval"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Assemble retrieved context for a prompt",
		Long: "Search global memory (or a conversation with --chat) and greedily pack the " +
			"results, best first, into a character budget as a prompt-ready block.",
		Args: cobra.MinimumNArgs(1),
		Run:  runContext,
	}

	cmd.Flags().String("chat", "", "Conversation id to search")
	cmd.Flags().IntP("budget", "b", 4000, "Max characters of context")
	cmd.Flags().IntP("max", "m", 0, "Max chunks (default: retrieval.max_results)")
	cmd.Flags().BoolP("relaxed", "r", false, "Fall back to lexical overlap when nothing passes the similarity policy")

	RootCmd.AddCommand(cmd)
}

// promptContext is the packed result of a context command.
type promptContext struct {
	Query   string               `json:"query" yaml:"query"`
	Chunks  []model.ContextChunk `json:"chunks" yaml:"chunks"`
	Dropped int                  `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	Used    int                  `json:"used_chars" yaml:"used_chars"`
	Budget  int                  `json:"budget_chars" yaml:"budget_chars"`
	Text    string               `json:"text" yaml:"text"`
}

func runContext(cmd *cobra.Command, args []string) {
	chat, _ := cmd.Flags().GetString("chat")
	budget, _ := cmd.Flags().GetInt("budget")
	maxResults, _ := cmd.Flags().GetInt("max")
	relaxed, _ := cmd.Flags().GetBool("relaxed")
	query := strings.Join(args, " ")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("setup", err)
	}
	defer a.Close()

	if maxResults <= 0 {
		maxResults = a.cfg.Retrieval.MaxResults
	}
	if err := a.ready(cmd.Context()); err != nil {
		exitErr("context", err)
	}

	collectionID := model.GlobalCollectionID
	if chat != "" {
		collectionID = chat
		a.engine.ReplicateGlobalChunksToChat(chat)
	}

	results := a.engine.Search(cmd.Context(), collectionID, query, retrieval.SearchOptions{
		MaxResults: maxResults,
		Relaxed:    relaxed,
	})
	pc := packContext(query, results, budget)

	if formatFlag == "text" {
		fmt.Fprint(os.Stdout, pc.Text)
		return
	}
	printValue(pc)
}

// packContext keeps chunks in rank order while their rendered blocks fit the
// budget. A chunk that does not fit is skipped; a smaller one after it may
// still be kept.
func packContext(query string, chunks []model.ContextChunk, budget int) promptContext {
	pc := promptContext{Query: query, Budget: budget, Chunks: []model.ContextChunk{}}
	var b strings.Builder
	for _, c := range chunks {
		block := renderBlock(c)
		if budget > 0 && pc.Used+len(block) > budget {
			pc.Dropped++
			continue
		}
		b.WriteString(block)
		pc.Used += len(block)
		pc.Chunks = append(pc.Chunks, c)
	}
	pc.Text = b.String()
	return pc
}

func renderBlock(c model.ContextChunk) string {
	name := c.SourceName
	if name == "" {
		name = "memory"
	}
	return fmt.Sprintf("[%s #%d]\n%s\n\n", name, c.ChunkIndex, strings.TrimSpace(c.Content))
}
