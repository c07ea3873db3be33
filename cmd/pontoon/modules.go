package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List preloadable modules in the assets directory",
	Long: `List the modules available for preloading.

Modules live under <assets>/modules/ and are resolved by name when a
script imports or requires them.`,
	Run: runModules,
}

func init() {
	rootCmd.AddCommand(modulesCmd)
}

func runModules(cmd *cobra.Command, args []string) {
	assets, _ := cmd.Root().PersistentFlags().GetString("assets")
	if assets == "" {
		fmt.Fprintln(os.Stderr, "Error: --assets is required")
		os.Exit(1)
	}

	dir := filepath.Join(assets, "modules")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "No modules directory at %s\n", dir)
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext != "" {
			name = strings.TrimSuffix(name, ext)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Println(name)
	}
}
