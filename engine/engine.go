// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine schedules the derivation strata over the fact store
// and publishes the output relations.
//
// Every relation is partitioned by file with no cross-file joins, so
// Apply recomputes only the files a transaction touched and runs them
// as independent parallel tasks. Within one file the strata are strict:
// scope graph, then binding resolution, then helpers and checks. A
// check never observes a partially settled dependency.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/scopetrace/binding"
	"github.com/AleutianAI/scopetrace/facts"
	"github.com/AleutianAI/scopetrace/refs"
	"github.com/AleutianAI/scopetrace/scopes"
)

// ErrTooManyScopes is the structural error for files exceeding the
// configured MaxScopesPerFile bound.
var ErrTooManyScopes = errors.New("scope count exceeds configured bound")

// Options configures Engine behavior.
type Options struct {
	// Workers is the number of files recomputed in parallel.
	// Default: runtime.NumCPU()
	Workers int

	// MaxScopesPerFile bounds the scope count per file. 0 = unlimited.
	MaxScopesPerFile int

	// Logger receives structured diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Workers: runtime.NumCPU(),
		Logger:  slog.Default(),
	}
}

// Option is a functional option for configuring Engine.
type Option func(*Options)

// WithWorkerCount sets the number of parallel file workers.
func WithWorkerCount(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMaxScopesPerFile bounds the accepted scope count per file.
func WithMaxScopesPerFile(n int) Option {
	return func(o *Options) {
		o.MaxScopesPerFile = n
	}
}

// WithConfig applies non-zero values from a loaded config file.
// Options applied after it take precedence.
func WithConfig(cfg Config) Option {
	return func(o *Options) {
		if cfg.Workers > 0 {
			o.Workers = cfg.Workers
		}
		if cfg.MaxScopesPerFile > 0 {
			o.MaxScopesPerFile = cfg.MaxScopesPerFile
		}
	}
}

// FileError reports that one file failed with a structural error. The
// file's previously published relations, if any, remain in effect;
// other files are unaffected.
type FileError struct {
	File facts.FileID
	Err  error
}

// ApplyStats contains statistics about one Apply call.
type ApplyStats struct {
	// FilesAnalyzed is the number of files recomputed successfully.
	FilesAnalyzed int

	// FilesFailed is the number of files with structural errors.
	FilesFailed int

	// RowsDerived is the total row count across the settled relations
	// of the recomputed files.
	RowsDerived int

	// DeltasEmitted is the number of relation deltas this apply
	// produced.
	DeltasEmitted int

	// DurationMilli is the wall-clock duration in milliseconds.
	DurationMilli int64
}

// ApplyResult contains the per-file outcomes of one Apply call.
type ApplyResult struct {
	// FileErrors lists files whose derivations were not published.
	FileErrors []FileError

	// Incomplete is set when the context was cancelled before every
	// touched file settled.
	Incomplete bool

	// Stats contains apply statistics.
	Stats ApplyStats
}

// Engine owns the fact store and the published derived relations.
//
// Description:
//
//	Apply is the single mutating operation: it updates the store,
//	recomputes the touched files to a fixpoint and emits deltas to
//	subscribers. All derived state is a pure function of the current
//	fact set; retracting a previously inserted fact set returns every
//	relation to exactly its prior contents.
//
// Thread Safety:
//
//	Safe for concurrent use. Apply calls are serialized; Snapshot and
//	Subscribe may run concurrently with each other.
type Engine struct {
	mu      sync.Mutex
	store   *facts.Store
	options Options
	logger  *slog.Logger

	// published holds the last settled result per file. A file with a
	// structural error keeps its previous entry (or none).
	published map[facts.FileID]*fileResult

	subMu sync.RWMutex
	subs  map[Relation]map[SubscriptionID]DeltaFunc
}

// New creates an Engine with the given options.
//
// Example:
//
//	eng := engine.New(
//	    engine.WithWorkerCount(4),
//	    engine.WithLogger(logger),
//	)
func New(opts ...Option) *Engine {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Workers <= 0 {
		options.Workers = runtime.NumCPU()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Engine{
		store:     facts.NewStore(),
		options:   options,
		logger:    options.Logger,
		published: make(map[facts.FileID]*fileResult),
		subs:      make(map[Relation]map[SubscriptionID]DeltaFunc),
	}
}

// Store exposes the underlying fact store for read-only inspection.
func (e *Engine) Store() *facts.Store { return e.store }

// Apply applies one fact transaction and recomputes the touched files.
//
// Description:
//
//	Touched files are recomputed in parallel, each through the full
//	stratum pipeline. Structural errors (cyclic scope edges, dangling
//	id references) are collected per file and never abort unrelated
//	files. After every file settles, deltas against the previously
//	published contents are delivered to subscribers in stratum order.
//
// Outputs:
//
//	*ApplyResult - Per-file errors and statistics. Never nil.
//	error - Non-nil only for fatal errors; context cancellation returns
//	a partial result with Incomplete set and a nil error.
func (e *Engine) Apply(ctx context.Context, tx facts.Transaction) (*ApplyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	activeApplies.Inc()
	defer activeApplies.Dec()
	start := time.Now()

	touched := e.store.Apply(tx)
	sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })

	ctx, span := startApplySpan(ctx, len(touched))
	defer span.End()

	result := &ApplyResult{}

	type outcome struct {
		fr  *fileResult
		err error
	}
	outcomes := make(map[facts.FileID]outcome, len(touched))
	var outMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.options.Workers)
	for _, fid := range touched {
		fid := fid
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fr, err := e.analyzeFile(e.store.File(fid))
			recordFileMetrics(fr, err)
			outMu.Lock()
			outcomes[fid] = outcome{fr: fr, err: err}
			outMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Only context cancellation reaches here; per-file failures are
		// collected in outcomes.
		result.Incomplete = true
	}

	deltas := make(map[Relation][]Delta)
	for _, fid := range touched {
		oc, ok := outcomes[fid]
		if !ok {
			result.Incomplete = true
			continue
		}
		if oc.err != nil {
			result.Stats.FilesFailed++
			result.FileErrors = append(result.FileErrors, FileError{File: fid, Err: oc.err})
			e.logger.Warn("file failed with structural error; previous relations kept",
				slog.Uint64("file", uint64(fid)),
				slog.String("error", oc.err.Error()),
			)
			continue
		}

		result.Stats.FilesAnalyzed++
		result.Stats.RowsDerived += oc.fr.total()
		for rel, batch := range diffResults(e.published[fid], oc.fr) {
			deltas[rel] = append(deltas[rel], batch...)
			result.Stats.DeltasEmitted += len(batch)
		}
		e.published[fid] = oc.fr
	}

	duration := time.Since(start)
	result.Stats.DurationMilli = duration.Milliseconds()
	setApplySpanResult(span, result.Stats, result.Incomplete)
	recordApplyMetrics(duration, result.Stats, result.Stats.FilesFailed == 0)

	e.notify(deltas)

	e.logger.Debug("apply settled",
		slog.Int("files_touched", len(touched)),
		slog.Int("files_failed", result.Stats.FilesFailed),
		slog.Int("deltas", result.Stats.DeltasEmitted),
	)
	return result, nil
}

// analyzeFile runs the stratum pipeline for one file. Strata are
// strictly ordered: each negation only ever reads a settled relation.
func (e *Engine) analyzeFile(ff *facts.FileFacts) (*fileResult, error) {
	if ff == nil || ff.Empty() {
		return newFileResult(), nil
	}
	if max := e.options.MaxScopesPerFile; max > 0 && len(ff.Scopes) > max {
		return nil, &scopes.StructuralError{File: ff.File, Reason: ErrTooManyScopes}
	}

	// Stratum 1+2: scope topology.
	g, err := scopes.Build(ff)
	if err != nil {
		return nil, err
	}

	// Stratum 3: name visibility.
	res, err := binding.Resolve(ff, g)
	if err != nil {
		return nil, err
	}

	// Stratum 4: reference helpers. Independent of each other.
	chains := refs.BuildChains(ff)
	typeofs := refs.BuildTypeofs(ff)

	// Stratum 5: checks, via collectResult.
	return collectResult(ff, g, res, chains, typeofs), nil
}

// Snapshot returns the full current contents of a published relation
// across all files. Rows appear once per multiplicity.
func (e *Engine) Snapshot(rel Relation) []Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(rel)
}

func (e *Engine) snapshotLocked(rel Relation) []Row {
	var out []Row
	for _, fr := range e.published {
		for row, n := range fr.rows[rel] {
			for i := 0; i < n; i++ {
				out = append(out, row)
			}
		}
	}
	return out
}

// Diagnostics returns the contents of the five diagnostic relations in
// one call, keyed by relation.
func (e *Engine) Diagnostics() map[Relation][]Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[Relation][]Row, 5)
	for _, rel := range []Relation{RelNoUndef, RelTypeofUndef, RelUseBeforeDef, RelNoShadow, RelUnusedVariables} {
		out[rel] = e.snapshotLocked(rel)
	}
	return out
}
