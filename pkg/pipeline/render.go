package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/observability"
	"github.com/matzehuels/heapview/pkg/render/nodelink"
	"github.com/matzehuels/heapview/pkg/render/svg"
	"github.com/matzehuels/heapview/pkg/viewer"
)

// Render paints s in every format of opts.Formats.
func Render(ctx context.Context, s viewer.Surface, opts Options) (artifacts map[string][]byte, err error) {
	if err := opts.ValidateFormatsOnly(); err != nil {
		return nil, err
	}
	hooks := observability.Pipeline()
	hooks.OnRenderStart(ctx, opts.Formats)
	start := time.Now()
	defer func() { hooks.OnRenderComplete(ctx, opts.Formats, time.Since(start), err) }()

	artifacts = make(map[string][]byte, len(opts.Formats))
	var dot string
	for _, format := range opts.Formats {
		var data []byte
		switch format {
		case FormatSVG:
			data = svg.Render(s, opts.Theme, svg.WithTitle(opts.Source), svg.WithInteraction())
		case FormatDOT:
			if dot == "" {
				dot = nodelink.ToDOT(s, opts.Theme, nodelink.Options{})
			}
			data = []byte(dot)
		case FormatGraphviz:
			if dot == "" {
				dot = nodelink.ToDOT(s, opts.Theme, nodelink.Options{})
			}
			data, err = nodelink.RenderSVG(ctx, dot)
		case FormatJSON:
			data, err = json.MarshalIndent(s, "", "  ")
		default:
			return nil, errors.New(errors.ErrCodeUnsupported, "unsupported format: %s", format)
		}
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", format, err)
		}
		artifacts[format] = data
	}
	return artifacts, nil
}

// ValidateFormatsOnly checks the formats without requiring a trace, for
// callers that already hold a surface.
func (o *Options) ValidateFormatsOnly() error {
	if len(o.Formats) == 0 {
		o.Formats = []string{FormatSVG}
	}
	return ValidateFormats(o.Formats)
}
