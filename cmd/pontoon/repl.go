package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/pontoon-dev/pontoon/proxy"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive REPL with persistent state",
	Long: `Start an interactive REPL (Read-Eval-Print Loop) session.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Tab completion against the interpreter namespace
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Run: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.pontoon_history)")
	replCmd.Flags().Duration("timeout", 30*time.Second, "Per-statement execution timeout")
	rootCmd.AddCommand(replCmd)
}

// replCompleter asks the running interpreter for suggestions at the
// cursor. Only end-of-line cursors are completed; readline calls this
// for mid-line positions too, which we skip.
type replCompleter struct {
	p       proxy.Proxy
	timeout time.Duration
}

func (c *replCompleter) Do(line []rune, pos int) ([][]rune, int) {
	if pos != len(line) {
		return nil, 0
	}
	source := string(line)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	names, err := c.p.CompleteAt(ctx, source)
	if err != nil || len(names) == 0 {
		return nil, 0
	}

	// readline expects the suffix to append, so strip the prefix the
	// user already typed.
	prefix := source
	if i := strings.LastIndexAny(source, " \t({[,;."); i >= 0 {
		prefix = source[i+1:]
	}

	var out [][]rune
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			out = append(out, []rune(name[len(prefix):]))
		}
	}
	return out, len(prefix)
}

func runRepl(cmd *cobra.Command, args []string) {
	historyFile, _ := cmd.Flags().GetString("history")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".pontoon_history")
	}

	factory, cleanup, err := getFactory(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	p, err := proxy.New(getPlacement(cmd), factory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	initCtx, cancel := context.WithTimeout(context.Background(), timeout)
	err = p.Init(initCtx, interpConfig(cmd))
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting interpreter: %v\n", err)
		os.Exit(1)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		AutoComplete:      &replCompleter{p: p, timeout: 2 * time.Second},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	runtime, _ := cmd.Root().PersistentFlags().GetString("runtime")
	fmt.Fprintf(os.Stderr, "pontoon %s REPL (type 'exit' to quit, Ctrl+D to exit)\n", runtime)

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(">>> ")
				}
				continue
			}
			if err == io.EOF {
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			break
		}

		trimmed := strings.TrimSpace(line)
		if !inMultiLine && (trimmed == "exit" || trimmed == "quit") {
			break
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("... ")
			continue
		}

		source := line
		if inMultiLine {
			multiLine.WriteString(line)
			source = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(">>> ")
		}

		if strings.TrimSpace(source) == "" {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		_, _ = p.Execute(ctx, source)
		cancel()
		// Output and errors already reached the configured sinks; the
		// default mode has no result payload to print.
	}
}
