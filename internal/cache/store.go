// Package cache persists directive substitutions between the generation pass
// and the sandboxed compile pass. The span-keyed JSON file is the wire format
// the injector consumes; a sidecar hash index keeps results reachable after
// byte offsets drift.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/promptc/promptc/internal/logging"
	"github.com/promptc/promptc/pkg/types"
)

// Pair couples a directive with its successful generation result. Failures
// are never paired: the absence of an entry is what makes the next run retry.
type Pair struct {
	Directive types.Directive
	Result    types.Substitution
}

// Snapshot is a loaded, read-only view of the cache used by the injector.
type Snapshot struct {
	Entries types.Cache
	Hashes  types.HashIndex
}

// Lookup resolves a directive, span key first, hash index second.
func (s *Snapshot) Lookup(d types.Directive) (types.Substitution, bool) {
	if byEnd, ok := s.Entries[spanKey(d.Span.Start)]; ok {
		if byPrompt, ok := byEnd[spanKey(d.Span.End)]; ok {
			if sub, ok := byPrompt[d.Prompt]; ok {
				return sub, true
			}
		}
	}
	if sub, ok := s.Hashes[d.PromptHash]; ok {
		return sub, true
	}
	return types.Substitution{}, false
}

// Store handles cache file operations
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store over the given cache file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the cache file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) hashPath() string {
	return strings.TrimSuffix(s.path, ".json") + ".hash.json"
}

// Load reads the persisted cache. A missing or unparseable file is treated as
// empty: the generation pass rebuilds on top of nothing and the compile pass
// simply misses. Corruption is logged, never surfaced.
func (s *Store) Load() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() *Snapshot {
	log := logging.Named("cache")

	entries := readTolerant[types.Cache](s.path, log)
	if entries == nil {
		entries = types.Cache{}
	}
	hashes := readTolerant[types.HashIndex](s.hashPath(), log)
	if hashes == nil {
		hashes = types.HashIndex{}
	}
	return &Snapshot{Entries: entries, Hashes: hashes}
}

// Merge folds successful results into the persisted cache and rewrites the
// whole file. Existing entries for other directives are untouched; stale
// entries for abandoned prompts stay until an explicit prune. The
// read-modify-write window is guarded by a lock file so concurrent generation
// runs do not drop each other's entries.
func (s *Store) Merge(pairs []Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	snap := s.load()
	for _, p := range pairs {
		d := p.Directive
		startKey := spanKey(d.Span.Start)
		endKey := spanKey(d.Span.End)

		byEnd, ok := snap.Entries[startKey]
		if !ok {
			byEnd = map[string]map[string]types.Substitution{}
			snap.Entries[startKey] = byEnd
		}
		byPrompt, ok := byEnd[endKey]
		if !ok {
			byPrompt = map[string]types.Substitution{}
			byEnd[endKey] = byPrompt
		}
		byPrompt[d.Prompt] = p.Result
		snap.Hashes[d.PromptHash] = p.Result
	}

	return s.persist(snap)
}

// Prune rewrites the cache keeping only entries that match a live directive,
// by span key or by hash. Returns the number of span entries dropped.
func (s *Store) Prune(live []types.Directive) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireLock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	liveSpans := make(map[string]bool, len(live))
	liveHashes := make(map[string]bool, len(live))
	for _, d := range live {
		liveSpans[spanKey(d.Span.Start)+"/"+spanKey(d.Span.End)+"/"+d.Prompt] = true
		liveHashes[d.PromptHash] = true
	}

	snap := s.load()
	dropped := 0
	for startKey, byEnd := range snap.Entries {
		for endKey, byPrompt := range byEnd {
			for prompt := range byPrompt {
				if !liveSpans[startKey+"/"+endKey+"/"+prompt] {
					delete(byPrompt, prompt)
					dropped++
				}
			}
			if len(byPrompt) == 0 {
				delete(byEnd, endKey)
			}
		}
		if len(byEnd) == 0 {
			delete(snap.Entries, startKey)
		}
	}
	for hash := range snap.Hashes {
		if !liveHashes[hash] {
			delete(snap.Hashes, hash)
		}
	}

	if err := s.persist(snap); err != nil {
		return 0, err
	}
	return dropped, nil
}

// Stats counts the persisted entries.
func (s *Store) Stats() types.Stats {
	snap := s.Load()
	stats := types.Stats{HashEntries: len(snap.Hashes)}
	for _, byEnd := range snap.Entries {
		for _, byPrompt := range byEnd {
			stats.Spans++
			stats.Entries += len(byPrompt)
		}
	}
	return stats
}

func (s *Store) persist(snap *Snapshot) error {
	if err := writeJSON(s.path, snap.Entries); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if err := writeJSON(s.hashPath(), snap.Hashes); err != nil {
		return fmt.Errorf("write hash index: %w", err)
	}
	return nil
}

// acquireLock serializes whole-file rewrites across processes via an
// O_CREATE|O_EXCL lock file next to the cache. Stale locks older than a
// minute are broken.
func (s *Store) acquireLock() (func(), error) {
	lockPath := s.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire cache lock: %w", err)
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > time.Minute {
			logging.Named("cache").Warnw("breaking stale cache lock", "path", lockPath)
			os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire cache lock: timed out waiting for %s", lockPath)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func spanKey(offset uint32) string {
	return strconv.FormatUint(uint64(offset), 10)
}

// --- Helpers ---

// readTolerant loads JSON, mapping every failure mode to nil so callers fall
// back to an empty structure.
func readTolerant[T any](path string, log interface{ Warnw(string, ...interface{}) }) T {
	var zero T
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnw("cache unreadable, treating as empty", "path", path, "error", err)
		}
		return zero
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		log.Warnw("cache corrupt, treating as empty", "path", path, "error", err)
		return zero
	}
	return result
}

func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	// Trailing newline for clean git diffs
	data = append(data, '\n')

	// Atomic write: write to temp file then rename to prevent corruption
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
