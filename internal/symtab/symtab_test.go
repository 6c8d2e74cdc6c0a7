package symtab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/promptc/promptc/pkg/types"
)

func setupTable(t *testing.T) *Table {
	t.Helper()
	table, err := Open(filepath.Join(t.TempDir(), "symbols.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { table.Close() })
	return table
}

func TestSeededOnFirstOpen(t *testing.T) {
	table := setupTable(t)

	origin, ok, err := table.Resolve("useState")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !ok {
		t.Fatal("expected useState in the seed rows")
	}
	if origin.Module != "react" || origin.Symbol != "useState" {
		t.Fatalf("unexpected origin: %+v", origin)
	}

	react, ok, err := table.Resolve("React")
	if err != nil || !ok {
		t.Fatalf("expected React default export seeded, ok=%v err=%v", ok, err)
	}
	if react.Symbol != "default" {
		t.Fatalf("React should be a default export, got %q", react.Symbol)
	}
}

func TestResolveUnknown(t *testing.T) {
	table := setupTable(t)

	_, ok, err := table.Resolve("definitelyNotAThing")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if ok {
		t.Fatal("unknown name should not resolve")
	}
}

func TestAddAndReplace(t *testing.T) {
	table := setupTable(t)

	if err := table.Add(types.SymbolOrigin{Module: "lodash", Symbol: "debounce", LocalName: "debounce"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	origin, ok, _ := table.Resolve("debounce")
	if !ok || origin.Module != "lodash" {
		t.Fatalf("added symbol not resolvable: %+v", origin)
	}

	// Same local name, new origin: replace, not duplicate.
	if err := table.Add(types.SymbolOrigin{Module: "lodash-es", Symbol: "debounce", LocalName: "debounce"}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	origin, _, _ = table.Resolve("debounce")
	if origin.Module != "lodash-es" {
		t.Fatalf("expected replacement to win, got %q", origin.Module)
	}
}

func TestImportManifest(t *testing.T) {
	table := setupTable(t)

	manifest := filepath.Join(t.TempDir(), "symbols.json")
	data := `[
  {"module": "axios", "symbol": "default", "localName": "axios"},
  {"module": "zod", "symbol": "z", "localName": "z"}
]`
	if err := os.WriteFile(manifest, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := table.ImportManifest(manifest)
	if err != nil {
		t.Fatalf("ImportManifest failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imported rows, got %d", n)
	}

	if _, ok, _ := table.Resolve("axios"); !ok {
		t.Fatal("manifest symbol not resolvable")
	}
}

func TestImportManifestRejectsIncompleteRows(t *testing.T) {
	table := setupTable(t)

	manifest := filepath.Join(t.TempDir(), "symbols.json")
	if err := os.WriteFile(manifest, []byte(`[{"module": "react"}]`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := table.ImportManifest(manifest); err == nil {
		t.Fatal("expected incomplete manifest row to be rejected")
	}
}

func TestListIsOrdered(t *testing.T) {
	table := setupTable(t)

	origins, err := table.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(origins) == 0 {
		t.Fatal("expected seed rows in listing")
	}
	for i := 1; i < len(origins); i++ {
		prev, cur := origins[i-1], origins[i]
		if prev.Module > cur.Module || (prev.Module == cur.Module && prev.Symbol > cur.Symbol) {
			t.Fatalf("listing out of order at %d: %+v before %+v", i, prev, cur)
		}
	}
}
