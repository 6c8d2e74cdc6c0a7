package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptc/promptc/internal/cache"
	"github.com/promptc/promptc/internal/config"
	"github.com/promptc/promptc/internal/scanner"
	"github.com/promptc/promptc/pkg/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the generation cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts",
	Run: func(cmd *cobra.Command, args []string) {
		store := cache.NewStore(config.CachePath(config.BasePath()))
		stats := store.Stats()
		fmt.Printf("Cache: %s\n", store.Path())
		fmt.Printf("  Span keys:    %d\n", stats.Spans)
		fmt.Printf("  Entries:      %d\n", stats.Entries)
		fmt.Printf("  Hash entries: %d\n", stats.HashEntries)
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune <files...>",
	Short: "Drop cache entries no live directive matches",
	Long: `Re-scan the given source files and delete every cache entry whose
span key and hash both match no current directive. The cache otherwise only
grows: edited or abandoned prompts leave their stale entries behind until
this command runs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCachePrune,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePruneCmd)
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	live, err := scanDirectives(cmd.Context(), args)
	if err != nil {
		return err
	}

	store := cache.NewStore(config.CachePath(config.BasePath()))
	dropped, err := store.Prune(live)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d stale entries; %d live directives kept\n", dropped, len(live))
	return nil
}

func scanDirectives(ctx context.Context, files []string) ([]types.Directive, error) {
	sc := scanner.New()
	var all []types.Directive
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		directives, err := sc.ScanFile(ctx, file, src)
		if err != nil {
			// Unparseable files contribute no directives.
			continue
		}
		all = append(all, directives...)
	}
	return all, nil
}
