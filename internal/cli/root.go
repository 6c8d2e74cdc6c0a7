package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptc/promptc/internal/logging"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "promptc",
	Short: "Synthesize function bodies from use prompt directives",
	Long: `promptc - prompt-directed code generation

promptc finds functions whose body opens with a "use prompt: ..." string,
asks a generation service to implement them, and splices the results back
into the source before compilation.

The work is split into two passes that share nothing but a cache file:

  promptc generate <files>   network pass; fills .promptc/cache.json
  promptc inject <files>     sandboxed pass; rewrites bodies from the cache

A function whose directive has no cache entry is left untouched and simply
does nothing when called.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Initialize(debugFlag)
	},
}

// Execute runs the root command
func Execute() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(injectCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(symbolsCmd)
	// versionCmd registers itself in version.go
}
