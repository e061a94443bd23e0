package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/heapview/pkg/cache"
	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/layout/grid"
	"github.com/matzehuels/heapview/pkg/observability"
	"github.com/matzehuels/heapview/pkg/theme"
	"github.com/matzehuels/heapview/pkg/trace"
	"github.com/matzehuels/heapview/pkg/viewer"
)

// Runner executes the pipeline with caching. It holds no per-run state, so
// one Runner may serve concurrent calls with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner. A nil cache disables caching, a nil keyer uses
// [cache.DefaultKeyer], and a nil logger discards output.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Runner{Cache: c, Keyer: keyer, Logger: logger}
}

// Execute renders opts.Trace in every requested format.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	r.applyLogger(&opts)

	result := &Result{InputHash: opts.InputHash()}

	if !opts.Refresh {
		if artifacts, ok := r.cached(ctx, result.InputHash, opts); ok {
			result.Artifacts = artifacts
			result.CacheInfo.RenderHit = true
			opts.Logger.Debug("artifacts from cache", "source", opts.Source, "formats", opts.Formats)
			return result, nil
		}
	}

	// Stage 1: Decode
	start := time.Now()
	cur, prev, err := r.decode(ctx, opts)
	if err != nil {
		return nil, err
	}
	result.Stats.DecodeTime = time.Since(start)

	// Stage 2: Diff and layout
	start = time.Now()
	surface, err := r.Layout(cur, prev, opts)
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	result.Surface = surface
	result.Stats.LayoutTime = time.Since(start)
	result.Stats.Entities = len(surface.Entities)
	result.Stats.Edges = len(surface.Edges)
	result.Stats.Changed = surface.Changed

	opts.Logger.Info("laid out snapshot",
		"source", opts.Source,
		"frames", len(surface.Frames),
		"entities", result.Stats.Entities,
		"edges", result.Stats.Edges,
		"changed", result.Stats.Changed,
		"duration", result.Stats.LayoutTime)

	// Stage 3: Render
	start = time.Now()
	artifacts, err := Render(ctx, surface, opts)
	if err != nil {
		return nil, err
	}
	result.Artifacts = artifacts
	result.Stats.RenderTime = time.Since(start)

	for format, data := range artifacts {
		key := r.Keyer.ArtifactKey(result.InputHash, opts.ArtifactKeyOpts(format))
		if err := r.Cache.Set(ctx, key, data, cache.TTLArtifact); err != nil {
			opts.Logger.Warn("cache write failed", "format", format, "error", err)
		}
	}

	opts.Logger.Info("rendered outputs",
		"formats", opts.Formats,
		"duration", result.Stats.RenderTime)
	return result, nil
}

// Layout diffs cur against prev and returns the laid out surface with the
// requested labels applied. prev may be nil. cur is annotated in place.
func (r *Runner) Layout(cur, prev *trace.Trace, opts Options) (viewer.Surface, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return viewer.Surface{}, err
	}
	r.applyLogger(&opts)

	p := NewPanel(opts.Theme, opts.LayoutMode(), opts.Logger)
	if err := p.SetScale(opts.Scale); err != nil {
		return viewer.Surface{}, err
	}
	if _, err := p.SetStep(cur, prev); err != nil {
		return viewer.Surface{}, err
	}
	for _, l := range opts.sortedLabels() {
		if err := p.SetLabel(l.Target, l.Label); err != nil {
			if errors.Is(err, errors.ErrCodeNotFound) {
				opts.Logger.Warn("no edge for label", "target", l.Target, "label", l.Label)
				continue
			}
			return viewer.Surface{}, err
		}
	}
	return p.Surface(), nil
}

// NewPanel returns an empty viewer panel styled by th. Hosts that keep a
// panel alive (the terminal stepper, the HTTP sessions) start from here.
func NewPanel(th *theme.Theme, mode grid.Mode, logger *log.Logger) *viewer.Panel {
	if th == nil {
		th = theme.Default()
	}
	sceneOpts := th.SceneOptions()
	sceneOpts.Mode = mode
	return viewer.New(viewer.Options{
		Scene:        sceneOpts,
		HitTolerance: th.Layout.HitTolerance,
		Logger:       logger,
	})
}

// cached returns every requested artifact if all of them are cached.
func (r *Runner) cached(ctx context.Context, inputHash string, opts Options) (map[string][]byte, bool) {
	artifacts := make(map[string][]byte, len(opts.Formats))
	for _, format := range opts.Formats {
		key := r.Keyer.ArtifactKey(inputHash, opts.ArtifactKeyOpts(format))
		data, hit, err := r.Cache.Get(ctx, key)
		if err != nil || !hit {
			return nil, false
		}
		artifacts[format] = data
	}
	return artifacts, true
}

func (r *Runner) decode(ctx context.Context, opts Options) (cur, prev *trace.Trace, err error) {
	hooks := observability.Pipeline()

	start := time.Now()
	cur, err = trace.Decode(opts.Trace)
	hooks.OnDecodeComplete(ctx, opts.Source, entityCount(cur), time.Since(start), err)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", opts.Source, err)
	}

	if len(opts.Previous) > 0 {
		start = time.Now()
		prev, err = trace.Decode(opts.Previous)
		hooks.OnDecodeComplete(ctx, opts.Source+" (previous)", entityCount(prev), time.Since(start), err)
		if err != nil {
			return nil, nil, fmt.Errorf("decode previous of %s: %w", opts.Source, err)
		}
	}
	return cur, prev, nil
}

func entityCount(t *trace.Trace) int {
	if t == nil {
		return 0
	}
	return t.Heap.Len()
}

// Close releases the cache.
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
