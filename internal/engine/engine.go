// Package engine drives the offline generation pass: scan files for
// directives, fan requests out to the generation service, and fold successful
// results into the cache. One directive's failure never affects its siblings,
// and failures leave no cache entry so the next run retries them.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/promptc/promptc/internal/cache"
	"github.com/promptc/promptc/internal/logging"
	"github.com/promptc/promptc/internal/scanner"
	"github.com/promptc/promptc/pkg/types"
)

// GenerationClient is the opaque generation service: request in, structured
// code text or failure out.
type GenerationClient interface {
	Generate(ctx context.Context, fullSource, prompt, signatureStub string) (types.Substitution, error)
}

// Engine runs generation passes.
type Engine struct {
	sc      *scanner.Scanner
	client  GenerationClient
	store   *cache.Store
	runsDir string
}

// New creates an Engine. runsDir may be empty to skip run records.
func New(client GenerationClient, store *cache.Store, runsDir string) *Engine {
	return &Engine{
		sc:      scanner.New(),
		client:  client,
		store:   store,
		runsDir: runsDir,
	}
}

// Run processes the given files sequentially; directives within a file are
// dispatched concurrently. Returns the run record; the error is reserved for
// cache persistence problems. Generation failures are recorded, not
// returned.
func (e *Engine) Run(ctx context.Context, files []string) (*types.RunRecord, error) {
	log := logging.Named("engine")

	record := &types.RunRecord{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Files:     files,
	}

	snap := e.store.Load()

	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			log.Warnw("unreadable file skipped", "path", file, "error", err)
			continue
		}

		directives, err := e.sc.ScanFile(ctx, file, src)
		if err != nil {
			// Parse failure: the whole file contributes zero directives.
			log.Warnw("parse failed, no directives extracted", "path", file, "error", err)
			continue
		}
		if len(directives) == 0 {
			continue
		}

		pairs := e.generateFile(ctx, file, string(src), directives, snap, record)
		if len(pairs) == 0 {
			continue
		}
		if err := e.store.Merge(pairs); err != nil {
			return record, fmt.Errorf("merge cache for %s: %w", file, err)
		}
		record.Generated += len(pairs)
	}

	record.FinishedAt = time.Now()
	if err := e.saveRecord(record); err != nil {
		log.Warnw("run record not saved", "error", err)
	}
	return record, nil
}

// generateFile fans one file's directives out to the service and collects
// the successes. Directives already present in the cache are not re-sent.
func (e *Engine) generateFile(
	ctx context.Context,
	file, src string,
	directives []types.Directive,
	snap *cache.Snapshot,
	record *types.RunRecord,
) []cache.Pair {
	log := logging.Named("engine")

	var mu sync.Mutex
	var pairs []cache.Pair
	outcomes := make([]types.DirectiveOutcome, len(directives))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range directives {
		i, d := i, d

		// The original emits one "start end prompt" line per directive; the
		// build tooling around the pass consumes these.
		fmt.Printf("%d %d %s\n", d.Span.Start, d.Span.End, d.Prompt)

		outcomes[i] = types.DirectiveOutcome{
			File:   file,
			Span:   d.Span,
			Prompt: d.Prompt,
		}

		if _, ok := snap.Lookup(d); ok {
			outcomes[i].Status = "cached"
			continue
		}

		g.Go(func() error {
			sub, err := e.client.Generate(gctx, src, d.Prompt, d.SignatureStub)
			if err != nil {
				// Failure is the no-result outcome: nothing cached, sibling
				// directives unaffected, retried next run.
				log.Warnw("generation failed", "path", file,
					"start", d.Span.Start, "prompt", d.Prompt, "error", err)
				outcomes[i].Status = "failed"
				outcomes[i].Error = err.Error()
				return nil
			}
			outcomes[i].Status = "generated"
			mu.Lock()
			pairs = append(pairs, cache.Pair{Directive: d, Result: sub})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		record.Outcomes = append(record.Outcomes, o)
		if o.Status == "failed" {
			record.Failed++
		}
	}
	return pairs
}

func (e *Engine) saveRecord(record *types.RunRecord) error {
	if e.runsDir == "" {
		return nil
	}
	path := filepath.Join(e.runsDir, record.ID+".json")
	return writeJSON(path, record)
}
