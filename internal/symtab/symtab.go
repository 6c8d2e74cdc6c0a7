// Package symtab maintains the table of known exports the injector resolves
// generated identifiers against. Each row maps a conventional local name to
// its canonical origin: module plus exported symbol.
package symtab

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/promptc/promptc/pkg/types"
)

// Table provides known-export lookups
type Table struct {
	db *sql.DB
}

// Open opens (creating if needed) the symbol table at dbPath and seeds it
// with the stock React/runtime exports when empty.
func Open(dbPath string) (*Table, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	// Add connection parameters for better concurrency
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	t := &Table{db: db}
	if err := t.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	if err := t.seedIfEmpty(); err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

func (t *Table) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS symbols (
		local_name TEXT PRIMARY KEY,
		module     TEXT NOT NULL,
		symbol     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_symbols_module ON symbols(module);
	`
	_, err := t.db.Exec(schema)
	return err
}

// seed rows cover the exports generated UI code reaches for most often.
var seed = []types.SymbolOrigin{
	{Module: "react", Symbol: "default", LocalName: "React"},
	{Module: "react", Symbol: "useState", LocalName: "useState"},
	{Module: "react", Symbol: "useEffect", LocalName: "useEffect"},
	{Module: "react", Symbol: "useRef", LocalName: "useRef"},
	{Module: "react", Symbol: "useMemo", LocalName: "useMemo"},
	{Module: "react", Symbol: "useCallback", LocalName: "useCallback"},
	{Module: "react", Symbol: "useContext", LocalName: "useContext"},
	{Module: "react", Symbol: "useReducer", LocalName: "useReducer"},
	{Module: "react", Symbol: "Fragment", LocalName: "Fragment"},
	{Module: "react", Symbol: "Component", LocalName: "Component"},
	{Module: "react-dom/client", Symbol: "createRoot", LocalName: "createRoot"},
}

func (t *Table) seedIfEmpty() error {
	var count int
	if err := t.db.QueryRow(`SELECT COUNT(*) FROM symbols`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, origin := range seed {
		if err := t.Add(origin); err != nil {
			return err
		}
	}
	return nil
}

// Add inserts or replaces one known export.
func (t *Table) Add(origin types.SymbolOrigin) error {
	_, err := t.db.Exec(
		`INSERT OR REPLACE INTO symbols (local_name, module, symbol) VALUES (?, ?, ?)`,
		origin.LocalName, origin.Module, origin.Symbol,
	)
	return err
}

// Resolve maps a conventional local name to its canonical origin.
func (t *Table) Resolve(localName string) (types.SymbolOrigin, bool, error) {
	var origin types.SymbolOrigin
	err := t.db.QueryRow(
		`SELECT local_name, module, symbol FROM symbols WHERE local_name = ?`,
		localName,
	).Scan(&origin.LocalName, &origin.Module, &origin.Symbol)
	if err == sql.ErrNoRows {
		return types.SymbolOrigin{}, false, nil
	}
	if err != nil {
		return types.SymbolOrigin{}, false, err
	}
	return origin, true, nil
}

// List returns every known export ordered by module then symbol.
func (t *Table) List() ([]types.SymbolOrigin, error) {
	rows, err := t.db.Query(`SELECT local_name, module, symbol FROM symbols`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var origins []types.SymbolOrigin
	for rows.Next() {
		var o types.SymbolOrigin
		if err := rows.Scan(&o.LocalName, &o.Module, &o.Symbol); err != nil {
			return nil, err
		}
		origins = append(origins, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(origins, func(i, j int) bool {
		if origins[i].Module != origins[j].Module {
			return origins[i].Module < origins[j].Module
		}
		return origins[i].Symbol < origins[j].Symbol
	})
	return origins, nil
}

// Count returns the number of known exports.
func (t *Table) Count() (int, error) {
	var count int
	err := t.db.QueryRow(`SELECT COUNT(*) FROM symbols`).Scan(&count)
	return count, err
}

// ImportManifest ingests a JSON array of symbol origins from path. Returns
// the number of rows written.
func (t *Table) ImportManifest(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var origins []types.SymbolOrigin
	if err := json.Unmarshal(data, &origins); err != nil {
		return 0, fmt.Errorf("malformed symbol manifest: %w", err)
	}
	for i, o := range origins {
		if o.LocalName == "" || o.Module == "" || o.Symbol == "" {
			return 0, fmt.Errorf("symbol manifest entry %d: localName, module and symbol are all required", i)
		}
		if err := t.Add(o); err != nil {
			return 0, err
		}
	}
	return len(origins), nil
}

// Close releases the underlying database.
func (t *Table) Close() error {
	return t.db.Close()
}
