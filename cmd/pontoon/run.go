package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pontoon-dev/pontoon/proxy"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run code (one-shot execution)",
	Long: `Execute a script and print its result.

Code can be provided via:
  - File argument: pontoon run script.js
  - Inline flag: pontoon run -c '1 + 1'
  - Stdin: echo '1 + 1' | pontoon run`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	cmd.Flags().Duration("timeout", 30*time.Second, "Execution timeout")
	cmd.Flags().String("result", "none", "Result shape: value, printed, markup, none")
	cmd.Flags().Bool("no-echo", false, "Do not echo the final statement value")
}

func readSource(cmd *cobra.Command, args []string) string {
	code, _ := cmd.Flags().GetString("code")

	var source string
	switch {
	case code != "":
		source = code
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(1)
		}
		source = string(data)
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
			os.Exit(1)
		}
		source = string(data)
	}

	if source == "" {
		fmt.Fprintln(os.Stderr, "usage: pontoon run -c 'code' | pontoon run file.js | echo 'code' | pontoon run")
		os.Exit(1)
	}
	return source
}

func parseResultMode(cmd *cobra.Command) proxy.ResultMode {
	s, _ := cmd.Flags().GetString("result")
	switch s {
	case "value":
		return proxy.ModeValue
	case "printed":
		return proxy.ModePrinted
	case "markup":
		return proxy.ModeMarkup
	case "none", "":
		return proxy.ModeNone
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown result shape %q\n", s)
		os.Exit(1)
		return proxy.ModeNone
	}
}

func runRun(cmd *cobra.Command, args []string) {
	source := readSource(cmd, args)
	timeout, _ := cmd.Flags().GetDuration("timeout")
	noEcho, _ := cmd.Flags().GetBool("no-echo")
	mode := parseResultMode(cmd)

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

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := p.Init(ctx, interpConfig(cmd)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := p.PreloadModules(ctx, source); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	execOpts := []proxy.ExecOption{proxy.WithResultMode(mode)}
	if noEcho {
		execOpts = append(execOpts, proxy.WithoutEcho())
	}

	result, err := p.Execute(ctx, source, execOpts...)
	if err != nil {
		// Guest errors were already echoed to stderr by the backend.
		os.Exit(1)
	}

	printResult(result)
}

func printResult(result *proxy.ExecuteResult) {
	if result == nil {
		return
	}
	switch result.Mode {
	case proxy.ModeValue:
		data, err := json.Marshal(result.Value)
		if err != nil {
			fmt.Printf("%v\n", result.Value)
			return
		}
		fmt.Printf("%s\n", data)
	case proxy.ModePrinted:
		fmt.Println(result.Printed)
	case proxy.ModeMarkup:
		if result.Markup != nil {
			fmt.Println(result.Markup.Content)
		}
	}
}
