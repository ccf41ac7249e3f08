package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/recall/internal/config"
	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/retrieval"
)

const shellHelp = `Type a query to search. Commands:
  :remember <text>   store a global memory
  :forget <id>       delete a global memory
  :chat [id]         search a conversation, or global memory without an id
  :attach <path>     index a file into the current conversation
  :relaxed           toggle the lexical fallback
  :reload            re-read the config file
  :stats             show retrieval state
  :quit              leave
`

func init() {
	cmd := &cobra.Command{
		Use:     "shell",
		Aliases: []string{"repl"},
		Short:   "Interactive retrieval session",
		Long: "Keep one engine open and search it interactively. The config file is watched; " +
			"edits to retrieval switches apply without restarting. Changing the embedding model " +
			"still needs a restart and reembed.",
		Run: runShell,
	}

	cmd.Flags().String("chat", "", "Conversation id to start in")
	cmd.Flags().BoolP("relaxed", "r", false, "Start with the lexical fallback on")
	cmd.Flags().IntP("max", "m", 0, "Max results (default: retrieval.max_results)")

	RootCmd.AddCommand(cmd)
}

func runShell(cmd *cobra.Command, args []string) {
	chat, _ := cmd.Flags().GetString("chat")
	relaxed, _ := cmd.Flags().GetBool("relaxed")
	maxResults, _ := cmd.Flags().GetInt("max")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		exitErr("setup", err)
	}
	defer a.Close()

	// A disabled engine can come back when the config is fixed.
	if err := a.ready(ctx); err != nil {
		a.log.Warn("retrieval not ready", zap.Error(err))
	}

	sh := newShell(a, os.Stdout)
	sh.relaxed = relaxed
	if maxResults > 0 {
		sh.max = maxResults
		sh.maxPinned = true
	}
	if chat != "" {
		sh.enterChat(chat)
	}

	if err := sh.run(ctx, os.Stdin, a.mgr.Watch(ctx)); err != nil {
		exitErr("shell", err)
	}
}

type shell struct {
	app *app
	out io.Writer

	chat      string
	relaxed   bool
	max       int
	maxPinned bool
}

func newShell(a *app, out io.Writer) *shell {
	return &shell{app: a, out: out, max: a.cfg.Retrieval.MaxResults}
}

// run reads commands from in until EOF, :quit or cancellation. Config updates
// are applied between commands.
func (s *shell) run(ctx context.Context, in io.Reader, updates <-chan config.Config) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		scanErr <- sc.Err()
	}()

	s.prompt()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case cfg, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			fmt.Fprintln(s.out)
			s.applyConfig(ctx, cfg)
			s.prompt()
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if s.handle(ctx, line) {
				return nil
			}
			s.prompt()
		}
	}
}

func (s *shell) prompt() {
	name := "global"
	if s.chat != "" {
		name = s.chat
	}
	fmt.Fprint(s.out, color.New(color.Faint).Sprint(name)+"> ")
}

// handle runs one input line and reports whether the session should end.
func (s *shell) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, ":") {
		s.search(ctx, line)
		return false
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	e := s.app.engine

	switch name {
	case "q", "quit", "exit":
		return true
	case "help", "h":
		fmt.Fprint(s.out, shellHelp)
	case "remember":
		if arg == "" {
			s.fail("remember", errors.New("text is required"))
			break
		}
		id, err := e.Remember(ctx, arg, "shell")
		if err != nil {
			s.fail("remember", err)
			break
		}
		fmt.Fprintf(s.out, "remembered %s\n", id)
	case "forget":
		if arg == "" {
			s.fail("forget", errors.New("memory id is required"))
			break
		}
		if err := e.Forget(ctx, arg); err != nil {
			s.fail("forget", err)
			break
		}
		fmt.Fprintf(s.out, "forgot %s\n", arg)
	case "chat":
		if arg == "" {
			s.chat = ""
			fmt.Fprintln(s.out, "searching global memory")
			break
		}
		s.enterChat(arg)
	case "attach":
		if arg == "" {
			s.fail("attach", errors.New("path is required"))
			break
		}
		if s.chat == "" {
			s.enterChat("shell")
		}
		if err := attachFile(ctx, s.app, s.chat, arg); err != nil {
			s.fail("attach", err)
			break
		}
		fmt.Fprintf(s.out, "attached %s to %s (%d chunks)\n", arg, s.chat, e.DocumentCount(s.chat))
	case "relaxed":
		s.relaxed = !s.relaxed
		fmt.Fprintf(s.out, "relaxed %s\n", onOff(s.relaxed))
	case "reload":
		if err := s.app.mgr.Reload(ctx); err != nil {
			s.fail("reload", err)
			break
		}
		s.applyConfig(ctx, *s.app.mgr.Get())
	case "stats":
		if err := writeValue(s.out, "json", e.Stats()); err != nil {
			s.fail("stats", err)
		}
	default:
		fmt.Fprintf(s.out, "unknown command :%s (try :help)\n", name)
	}
	return false
}

func (s *shell) enterChat(id string) {
	s.chat = id
	n := s.app.engine.ReplicateGlobalChunksToChat(id)
	fmt.Fprintf(s.out, "chat %s (%d global chunks)\n", id, n)
}

func (s *shell) search(ctx context.Context, query string) {
	if !s.app.mgr.Preferences().RetrievalEnabled() {
		fmt.Fprintln(s.out, "retrieval is turned off in config")
		return
	}
	if st := s.app.engine.State(); st != retrieval.StateReady {
		fmt.Fprintf(s.out, "retrieval is %s\n", st)
		return
	}
	collectionID := model.GlobalCollectionID
	if s.chat != "" {
		collectionID = s.chat
	}
	writeChunksText(s.out, s.app.engine.Search(ctx, collectionID, query, retrieval.SearchOptions{
		MaxResults: s.max,
		Relaxed:    s.relaxed,
	}))
}

// applyConfig publishes a reloaded config to the engine's preferences. The
// embedding model stays at the one the engine was opened with, since stored
// vectors only match that model.
func (s *shell) applyConfig(ctx context.Context, cfg config.Config) {
	opened := s.app.cfg.Embedding.Model
	if cfg.Embedding.Model != opened {
		fmt.Fprintf(s.out, "embedding model %s applies after a restart and reembed; still using %s\n", cfg.Embedding.Model, opened)
		cfg.Embedding.Model = opened
	}
	s.app.mgr.Preferences().Update(&cfg)

	if !s.maxPinned && cfg.Retrieval.MaxResults > 0 {
		s.max = cfg.Retrieval.MaxResults
	}
	if cfg.Retrieval.Enabled && s.app.engine.State() == retrieval.StateDisabled {
		if err := s.app.ready(ctx); err != nil {
			s.fail("retrieval", err)
		}
	}
	fmt.Fprintf(s.out, "config reloaded: retrieval %s, cross-chat memory %s\n",
		onOff(cfg.Retrieval.Enabled), onOff(cfg.Retrieval.CrossChatMemory))
}

func (s *shell) fail(what string, err error) {
	fmt.Fprintln(s.out, color.New(color.FgRed).Sprintf("error: %s: %v", what, err))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
