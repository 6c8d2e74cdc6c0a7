package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptc/promptc/internal/cache"
	"github.com/promptc/promptc/internal/config"
	"github.com/promptc/promptc/internal/engine"
	"github.com/promptc/promptc/internal/genclient"
)

var generateEnvFile string

var generateCmd = &cobra.Command{
	Use:   "generate <files...>",
	Short: "Run the generation pass over source files",
	Long: `Scan the given files for "use prompt:" directives, request an
implementation for each directive that has no cache entry yet, and merge the
results into the cache artifact the inject pass reads.

Needs network access and a service API key in PROMPTC_API_KEY (or
OPENAI_API_KEY), optionally loaded from a local env file.

Failed directives leave no cache entry and are retried on the next run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateEnvFile, "env-file", ".env", "env file to load credentials from")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFile(generateEnvFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	base := config.BasePath()
	cfg, err := config.Load(base)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	apiKey := config.APIKey()
	if apiKey == "" {
		return fmt.Errorf("no API key: set %s or %s", config.EnvAPIKey, config.EnvAPIKeyFallback)
	}

	clientCfg := genclient.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model != "" {
		clientCfg.Model = cfg.Model
	}

	store := cache.NewStore(config.CachePath(base))
	eng := engine.New(genclient.New(clientCfg), store, config.RunsDir(base))

	record, err := eng.Run(cmd.Context(), args)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s: %d generated, %d failed, %d directives total\n",
		record.ID, record.Generated, record.Failed, len(record.Outcomes))
	return nil
}
