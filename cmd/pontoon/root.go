package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pontoon-dev/pontoon/interp"
	"github.com/pontoon-dev/pontoon/language/javascript"
	"github.com/pontoon-dev/pontoon/language/wasi"
	"github.com/pontoon-dev/pontoon/proxy"
)

var rootCmd = &cobra.Command{
	Use:   "pontoon [file]",
	Short: "Asynchronous command proxy to an embedded scripting interpreter",
	Long: `pontoon - Run scripting code behind a uniform command interface.

Code can run in-process or in an isolated worker context; callers see
the same behavior from both placements. The bundled JavaScript engine
works out of the box; a WASI interpreter binary can be supplied with
--runtime wasi --assets <dir>.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun, // Default to run command behavior
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("runtime", "r", "js", "Interpreter runtime: js, wasi")
	rootCmd.PersistentFlags().String("assets", "", "Runtime assets directory (modules, interpreter binary)")
	rootCmd.PersistentFlags().Bool("isolated", false, "Run the interpreter on an isolated worker context")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable compilation cache (wasi)")

	addRunFlags(rootCmd)
}

// getFactory resolves the --runtime flag to an interpreter factory.
// The returned cleanup releases runtime-wide resources and must run
// after the proxy is closed.
func getFactory(cmd *cobra.Command) (interp.Factory, func() error, error) {
	runtime, _ := cmd.Root().PersistentFlags().GetString("runtime")
	noCache, _ := cmd.Root().PersistentFlags().GetBool("no-cache")

	switch runtime {
	case "js", "javascript":
		return javascript.Factory(), func() error { return nil }, nil
	case "wasi":
		var opts []wasi.RuntimeOption
		if !noCache {
			opts = append(opts, wasi.WithDiskCache())
		}
		rt, err := wasi.NewRuntime(opts...)
		if err != nil {
			return nil, nil, err
		}
		return rt.Factory(), rt.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown runtime %q (expected js or wasi)", runtime)
	}
}

// getPlacement resolves the --isolated flag.
func getPlacement(cmd *cobra.Command) proxy.Placement {
	isolated, _ := cmd.Root().PersistentFlags().GetBool("isolated")
	if isolated {
		return proxy.PlaceIsolated
	}
	return proxy.PlaceInProcess
}

func interpConfig(cmd *cobra.Command) interp.Config {
	assets, _ := cmd.Root().PersistentFlags().GetString("assets")
	return interp.Config{
		RuntimeAssets: assets,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
	}
}
