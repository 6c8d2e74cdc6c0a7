package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptc/promptc/internal/cache"
	"github.com/promptc/promptc/internal/config"
	"github.com/promptc/promptc/internal/injector"
	"github.com/promptc/promptc/internal/symtab"
)

var (
	injectWrite     bool
	injectCachePath string
)

var injectCmd = &cobra.Command{
	Use:   "inject <files...>",
	Short: "Run the compile-time pass over source files",
	Long: `Re-scan the given files for directives, look each one up in the cache
artifact, and replace matched function bodies with the generated code,
resolving import collisions against the file's existing bindings.

Makes no network calls; safe to run inside a build sandbox. Cache misses are
non-fatal: the function keeps its directive-only body.

By default the rewritten source goes to stdout; --write rewrites in place.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInject,
}

func init() {
	injectCmd.Flags().BoolVarP(&injectWrite, "write", "w", false, "rewrite files in place")
	injectCmd.Flags().StringVar(&injectCachePath, "cache", "", "cache file path (default .promptc/cache.json)")
}

func runInject(cmd *cobra.Command, args []string) error {
	base := config.BasePath()

	cachePath := injectCachePath
	if cachePath == "" {
		cachePath = config.CachePath(base)
	}
	snap := cache.NewStore(cachePath).Load()

	table, err := symtab.Open(config.SymtabPath(base))
	if err != nil {
		return fmt.Errorf("open symbol table: %w", err)
	}
	defer table.Close()

	inj := injector.New(table, injector.Options{})

	for _, file := range args {
		src, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}

		out, err := inj.InjectFile(cmd.Context(), file, src, snap)
		if err != nil {
			return fmt.Errorf("inject %s: %w", file, err)
		}

		if injectWrite {
			info, err := os.Stat(file)
			if err != nil {
				return err
			}
			if err := os.WriteFile(file, out, info.Mode().Perm()); err != nil {
				return fmt.Errorf("write %s: %w", file, err)
			}
		} else {
			os.Stdout.Write(out)
		}
	}
	return nil
}
