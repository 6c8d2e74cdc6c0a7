package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptc/promptc/internal/config"
	"github.com/promptc/promptc/internal/symtab"
	"github.com/promptc/promptc/pkg/types"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Maintain the known-exports table used for import resolution",
	Long: `The inject pass resolves identifiers in generated code against a
table of known exports: conventional local name -> (module, exported symbol).
These commands maintain that table. Symbol "default" marks a default export,
"*" a namespace import.`,
}

var symbolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := symtab.Open(config.SymtabPath(config.BasePath()))
		if err != nil {
			return err
		}
		defer table.Close()

		origins, err := table.List()
		if err != nil {
			return err
		}
		for _, o := range origins {
			fmt.Printf("%-24s %s %s\n", o.LocalName, o.Module, o.Symbol)
		}
		fmt.Printf("%d known exports\n", len(origins))
		return nil
	},
}

var symbolsAddCmd = &cobra.Command{
	Use:   "add <module> <symbol> <localName>",
	Short: "Add or replace one known export",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := symtab.Open(config.SymtabPath(config.BasePath()))
		if err != nil {
			return err
		}
		defer table.Close()

		origin := types.SymbolOrigin{Module: args[0], Symbol: args[1], LocalName: args[2]}
		if err := table.Add(origin); err != nil {
			return err
		}
		fmt.Printf("Added %s -> %s#%s\n", origin.LocalName, origin.Module, origin.Symbol)
		return nil
	},
}

var symbolsImportCmd = &cobra.Command{
	Use:   "import <manifest.json>",
	Short: "Ingest a JSON manifest of known exports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := symtab.Open(config.SymtabPath(config.BasePath()))
		if err != nil {
			return err
		}
		defer table.Close()

		n, err := table.ImportManifest(args[0])
		if err != nil {
			return err
		}
		count, _ := table.Count()
		fmt.Printf("Imported %d exports (%d total)\n", n, count)
		return nil
	},
}

func init() {
	symbolsCmd.AddCommand(symbolsListCmd)
	symbolsCmd.AddCommand(symbolsAddCmd)
	symbolsCmd.AddCommand(symbolsImportCmd)
}
