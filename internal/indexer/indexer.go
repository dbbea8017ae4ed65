// Package indexer drives the incremental skill refresh pipeline: walk
// the configured roots, diff discovered files against recorded content
// hashes, parse and embed what changed, and commit each batch of upserts
// atomically.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"impressionism/internal/embedding"
	"impressionism/internal/logging"
	"impressionism/internal/skills"
	"impressionism/internal/store"
)

const (
	embedChunkSize   = 16
	embedWorkerCap   = 4
	quickBatchSize   = 8
	defaultBodyLimit = 4096
)

// Options configures one indexing pass.
type Options struct {
	// Force re-indexes every file regardless of content hash.
	Force bool

	// Quick runs a bounded, additive pass: it commits in small batches,
	// honors Budget, and never deletes.
	Quick bool

	// Budget is the soft wall-clock limit for a quick pass.
	Budget time.Duration
}

// Result summarizes a pass.
type Result struct {
	Discovered  int
	Indexed     int
	Skipped     int
	Deleted     int
	ParseErrors []error
}

// Indexer owns skill catalog refresh.
type Indexer struct {
	store     *store.Store
	engine    embedding.Engine
	discovery *skills.Discovery
	bodyLimit int
}

// New builds an Indexer.
func New(st *store.Store, engine embedding.Engine, discovery *skills.Discovery, bodyLimit int) *Indexer {
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyLimit
	}
	return &Indexer{store: st, engine: engine, discovery: discovery, bodyLimit: bodyLimit}
}

type pending struct {
	doc    *skills.Document
	path   string
	source skills.Source
	hash   string
}

// Run executes one indexing pass.
func (ix *Indexer) Run(ctx context.Context, opts Options) (Result, error) {
	log := logging.Get(logging.CategoryIndex)
	var res Result

	if opts.Quick && opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Budget)
		defer cancel()
	}

	found, fullWalk := ix.discovery.Walk()
	res.Discovered = len(found)
	log.Debugf("discovered %d skill files (full walk: %v)", len(found), fullWalk)

	seen := make(map[string]bool, len(found))
	var queue []pending

	for _, f := range found {
		if err := ctx.Err(); err != nil && opts.Quick {
			log.Warnf("quick pass budget exhausted after %d files", len(seen))
			break
		}
		seen[f.Path] = true

		data, err := os.ReadFile(f.Path)
		if err != nil {
			log.Warnf("unreadable skill file %s: %v", f.Path, err)
			res.ParseErrors = append(res.ParseErrors, fmt.Errorf("read %s: %w", f.Path, err))
			continue
		}
		hash := skills.HashContent(data)

		if !opts.Force {
			if fh, err := ix.store.GetFileHash(f.Path); err == nil && fh.ContentHash == hash {
				res.Skipped++
				continue
			}
		}

		doc, err := skills.Parse(f.Path, data)
		if err != nil {
			log.Warnf("%v", err)
			res.ParseErrors = append(res.ParseErrors, err)
			continue
		}
		queue = append(queue, pending{doc: doc, path: f.Path, source: f.Source, hash: hash})

		// Quick passes checkpoint between small batches so cancellation
		// leaves a consistent partial catalog.
		if opts.Quick && len(queue) >= quickBatchSize {
			n, err := ix.commitBatch(ctx, queue, nil)
			if err != nil {
				return res, err
			}
			res.Indexed += n
			queue = queue[:0]
		}
	}

	var deletions []string
	if !opts.Quick && (fullWalk || opts.Force) {
		deletions = ix.vanishedSkillIDs(seen)
	}

	n, err := ix.commitBatch(ctx, queue, deletions)
	if err != nil {
		return res, err
	}
	res.Indexed += n
	res.Deleted = len(deletions)

	log.Infof("index pass complete: %d indexed, %d skipped, %d deleted, %d parse errors",
		res.Indexed, res.Skipped, res.Deleted, len(res.ParseErrors))
	return res, nil
}

// commitBatch embeds queued documents and applies one atomic store
// transaction. An embedding failure aborts the batch with nothing
// committed.
func (ix *Indexer) commitBatch(ctx context.Context, queue []pending, deletions []string) (int, error) {
	if len(queue) == 0 && len(deletions) == 0 {
		return 0, nil
	}

	texts := make([]string, len(queue))
	for i, p := range queue {
		texts[i] = p.doc.EmbeddingText(ix.bodyLimit)
	}

	vectors, err := ix.embedAll(ctx, texts)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	batch := make([]store.Skill, len(queue))
	for i, p := range queue {
		batch[i] = store.Skill{
			ID:          skills.IDForPath(p.path),
			Name:        p.doc.Name,
			Path:        p.path,
			Description: p.doc.Description,
			Keywords:    p.doc.Keywords,
			Sticky:      p.doc.Sticky,
			Embedding:   vectors[i],
			Frontmatter: p.doc.Frontmatter,
			ContentHash: p.hash,
			IndexedAt:   now,
			Source:      p.source,
		}
	}

	if err := ix.store.UpsertSkillBatch(batch, deletions); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// embedAll batches texts through the engine with a bounded worker pool,
// preserving order. Any failure fails the whole pass.
func (ix *Indexer) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkerCap)

	for start := 0; start < len(texts); start += embedChunkSize {
		start := start
		end := start + embedChunkSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			chunk, err := ix.engine.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("%w: %v", embedding.ErrEmbedFailed, err)
			}
			if len(chunk) != end-start {
				return fmt.Errorf("%w: engine returned %d vectors for %d texts", embedding.ErrEmbedFailed, len(chunk), end-start)
			}
			dim := ix.store.Dimension()
			for i, vec := range chunk {
				if len(vec) != dim {
					return fmt.Errorf("%w: vector of dim %d, want %d", embedding.ErrEmbedFailed, len(vec), dim)
				}
				vectors[start+i] = vec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if !errors.Is(err, embedding.ErrEmbedFailed) {
			err = fmt.Errorf("%w: %v", embedding.ErrEmbedFailed, err)
		}
		return nil, err
	}
	return vectors, nil
}

// vanishedSkillIDs finds previously indexed paths missing from this walk.
func (ix *Indexer) vanishedSkillIDs(seen map[string]bool) []string {
	log := logging.Get(logging.CategoryIndex)
	tracked, err := ix.store.AllFileHashPaths()
	if err != nil {
		log.Warnf("cannot enumerate tracked paths, skipping deletion sweep: %v", err)
		return nil
	}

	var ids []string
	for path := range tracked {
		if seen[path] {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			// Still on disk but outside the current roots; leave it.
			continue
		}
		id, err := ix.store.SkillIDForPath(path)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		log.Infof("skill file vanished, removing %s", path)
	}
	return ids
}
