package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/promptc/promptc/internal/cache"
	"github.com/promptc/promptc/pkg/types"
)

type fakeClient struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool // prompts that fail
}

func (c *fakeClient) Generate(ctx context.Context, fullSource, prompt, signatureStub string) (types.Substitution, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.fail[prompt] {
		return types.Substitution{}, fmt.Errorf("synthetic failure")
	}
	return types.Substitution{Code: "return " + fmt.Sprintf("%q", prompt) + ";"}, nil
}

func setupEngine(t *testing.T, client *fakeClient) (*Engine, *cache.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := cache.NewStore(filepath.Join(dir, "cache.json"))
	eng := New(client, store, filepath.Join(dir, "runs"))
	return eng, store, dir
}

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCachesSuccesses(t *testing.T) {
	client := &fakeClient{}
	eng, store, dir := setupEngine(t, client)
	file := writeSource(t, dir, "app.js", `function f(){ "use prompt: make it so"; }`)

	record, err := eng.Run(context.Background(), []string{file})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if record.Generated != 1 {
		t.Fatalf("expected 1 generated, got %d", record.Generated)
	}

	stats := store.Stats()
	if stats.Entries != 1 {
		t.Fatalf("expected 1 cache entry, got %d", stats.Entries)
	}
}

// A failed generation must not write a cache entry under any key; the next
// run retries it.
func TestRunFailureLeavesNoCacheEntry(t *testing.T) {
	client := &fakeClient{fail: map[string]bool{"doomed": true}}
	eng, store, dir := setupEngine(t, client)
	file := writeSource(t, dir, "app.js",
		`function a(){ "use prompt: doomed"; }
function b(){ "use prompt: fine"; }`)

	record, err := eng.Run(context.Background(), []string{file})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if record.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", record.Failed)
	}
	if record.Generated != 1 {
		t.Fatalf("sibling directive should still succeed, got %d generated", record.Generated)
	}

	stats := store.Stats()
	if stats.Entries != 1 {
		t.Fatalf("failure must not be cached; got %d entries", stats.Entries)
	}
	if stats.HashEntries != 1 {
		t.Fatalf("failure must not reach the hash index; got %d entries", stats.HashEntries)
	}
}

func TestRunSkipsCachedDirectives(t *testing.T) {
	client := &fakeClient{}
	eng, _, dir := setupEngine(t, client)
	file := writeSource(t, dir, "app.js", `function f(){ "use prompt: once"; }`)

	if _, err := eng.Run(context.Background(), []string{file}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Run(context.Background(), []string{file}); err != nil {
		t.Fatal(err)
	}

	if client.calls != 1 {
		t.Fatalf("cached directive re-sent to the service: %d calls", client.calls)
	}
}

func TestRunRetriesFailedDirectiveNextRun(t *testing.T) {
	client := &fakeClient{fail: map[string]bool{"flaky": true}}
	eng, store, dir := setupEngine(t, client)
	file := writeSource(t, dir, "app.js", `function f(){ "use prompt: flaky"; }`)

	if _, err := eng.Run(context.Background(), []string{file}); err != nil {
		t.Fatal(err)
	}

	// Service recovers; absence of a cache entry makes the retry automatic.
	client.fail = nil
	record, err := eng.Run(context.Background(), []string{file})
	if err != nil {
		t.Fatal(err)
	}
	if record.Generated != 1 {
		t.Fatalf("expected retry to generate, got %d", record.Generated)
	}
	if store.Stats().Entries != 1 {
		t.Fatal("retried directive not cached")
	}
}

func TestRunMissingFileSkipped(t *testing.T) {
	client := &fakeClient{}
	eng, store, _ := setupEngine(t, client)

	record, err := eng.Run(context.Background(), []string{"/does/not/exist.js"})
	if err != nil {
		t.Fatalf("missing file must not abort the run: %v", err)
	}
	if len(record.Outcomes) != 0 || store.Stats().Entries != 0 {
		t.Fatal("missing file produced outcomes")
	}
}

func TestRunWritesRunRecord(t *testing.T) {
	client := &fakeClient{}
	eng, _, dir := setupEngine(t, client)
	file := writeSource(t, dir, "app.js", `function f(){ "use prompt: record me"; }`)

	record, err := eng.Run(context.Background(), []string{file})
	if err != nil {
		t.Fatal(err)
	}
	if record.ID == "" {
		t.Fatal("run record has no id")
	}

	if _, err := os.Stat(filepath.Join(dir, "runs", record.ID+".json")); err != nil {
		t.Fatalf("run record not persisted: %v", err)
	}
}
