// Package pipeline runs the decode → diff → layout → paint pipeline for
// one snapshot and caches the painted artifacts.
//
// The CLI's render command and the HTTP host both go through a [Runner], so
// a snapshot renders identically everywhere and repeated renders of the same
// input are served from the cache.
//
// # Stages
//
//  1. Decode: parse the snapshot, and its predecessor if one is given
//  2. Diff and layout: feed both into a viewer panel, which annotates changed
//     values and computes scene geometry and reference edges
//  3. Render: paint the panel's surface in each requested format
//
// # Usage
//
//	runner := pipeline.NewRunner(c, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Trace:    current,
//	    Previous: previous,
//	    Formats:  []string{pipeline.FormatSVG, pipeline.FormatDOT},
//	})
//	if err != nil {
//	    return err
//	}
//	svg := result.Artifacts[pipeline.FormatSVG]
//
// # Caching
//
// Artifacts are keyed by a hash of both encoded snapshots and the edge
// labels, combined with the format, layout mode, scale and a hash of the
// theme. When every requested format is cached, nothing is decoded.
package pipeline

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/heapview/pkg/cache"
	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/layout/grid"
	"github.com/matzehuels/heapview/pkg/theme"
	"github.com/matzehuels/heapview/pkg/viewer"
)

// =============================================================================
// Defaults
// =============================================================================

// DefaultScale is the zoom factor when none is given.
const DefaultScale = 1.0

// Format constants for output formats.
const (
	FormatSVG      = "svg"      // painted with the scene's own geometry
	FormatDOT      = "dot"      // Graphviz source
	FormatGraphviz = "graphviz" // SVG laid out by Graphviz
	FormatJSON     = "json"     // the viewer surface
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatSVG:      true,
	FormatDOT:      true,
	FormatGraphviz: true,
	FormatJSON:     true,
}

// Extension returns the file extension for format.
func Extension(format string) string {
	switch format {
	case FormatGraphviz:
		return ".graphviz.svg"
	default:
		return "." + format
	}
}

// =============================================================================
// Options
// =============================================================================

// Options configures one pipeline run.
type Options struct {
	Trace    []byte           `json:"trace"`
	Previous []byte           `json:"previous,omitempty"`
	Source   string           `json:"source,omitempty"` // name for logs and hooks
	Mode     string           `json:"mode,omitempty"`   // empty: the theme's mode
	Scale    float64          `json:"scale,omitempty"`
	Formats  []string         `json:"formats,omitempty"`
	Labels   map[int64]string `json:"labels,omitempty"` // edge labels by target id
	Refresh  bool             `json:"refresh,omitempty"`

	Theme  *theme.Theme `json:"-"`
	Logger *log.Logger  `json:"-"`

	mode      grid.Mode
	validated bool
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Surface is the painted geometry. It is empty when every artifact came
	// from the cache.
	Surface viewer.Surface

	// InputHash identifies the snapshot pair and labels.
	InputHash string

	// Artifacts contains rendered outputs keyed by format.
	Artifacts map[string][]byte

	Stats     Stats
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Entities   int
	Edges      int
	Changed    int
	DecodeTime time.Duration
	LayoutTime time.Duration
	RenderTime time.Duration
}

// CacheInfo tracks cache hits.
type CacheInfo struct {
	RenderHit bool // every artifact came from cache
}

// ValidateFormat checks that a format is supported.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeUnsupported, "invalid format: %q (must be one of: svg, dot, graphviz, json)", format)
	}
	return nil
}

// ValidateFormats checks every format.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAndSetDefaults checks the options and fills in defaults. It is
// idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if len(o.Trace) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "trace is required")
	}
	if o.Theme == nil {
		o.Theme = theme.Default()
	}
	if o.Scale == 0 {
		o.Scale = DefaultScale
	}
	if !(o.Scale > 0) {
		return errors.New(errors.ErrCodeInvalidInput, "scale must be positive, got %v", o.Scale)
	}
	o.mode = o.Theme.Layout.Mode
	if o.Mode != "" {
		m, err := grid.ParseMode(o.Mode)
		if err != nil {
			return err
		}
		o.mode = m
	}
	if len(o.Formats) == 0 {
		o.Formats = []string{FormatSVG}
	}
	if err := ValidateFormats(o.Formats); err != nil {
		return err
	}
	for target, label := range o.Labels {
		if err := errors.ValidateLabel(label); err != nil {
			return fmt.Errorf("label for %d: %w", target, err)
		}
	}
	if o.Source == "" {
		o.Source = "trace"
	}
	o.validated = true
	return nil
}

// LayoutMode returns the resolved layout mode. Valid after
// [Options.ValidateAndSetDefaults].
func (o *Options) LayoutMode() grid.Mode { return o.mode }

// InputHash hashes the snapshot pair and the labels.
func (o *Options) InputHash() string {
	labels, _ := json.Marshal(o.sortedLabels())
	return cache.HashAll(o.Trace, o.Previous, labels)
}

// ArtifactKeyOpts returns the key options for one format.
func (o *Options) ArtifactKeyOpts(format string) cache.ArtifactKeyOpts {
	th, _ := json.Marshal(o.Theme)
	return cache.ArtifactKeyOpts{
		Format: format,
		Mode:   o.mode.String(),
		Scale:  o.Scale,
		Theme:  cache.Hash(th),
	}
}

type label struct {
	Target int64  `json:"target"`
	Label  string `json:"label"`
}

func (o *Options) sortedLabels() []label {
	out := make([]label, 0, len(o.Labels))
	for t, l := range o.Labels {
		out = append(out, label{t, l})
	}
	slices.SortFunc(out, func(a, b label) int { return cmp.Compare(a.Target, b.Target) })
	return out
}
