// Package pkg holds the heapview libraries.
//
// # Overview
//
// heapview draws snapshots of a running program (call stack, statics and
// heap) as box-and-arrow diagrams and highlights the values that changed
// since the previous snapshot. The packages split into four groups:
//
//  1. Model: [trace] decodes snapshots, [timeline] sequences them, [diff]
//     marks what changed.
//  2. Geometry: [layout/grid] lays out key/value cells, [scene] places the
//     panels, [refgraph] routes the arrows.
//  3. Interaction: [viewer] owns one panel's state (drag, zoom, mode, labels)
//     and [session] hosts viewers for the HTTP server.
//  4. Output: [render/svg] and [render/nodelink] paint a surface, [pipeline]
//     ties decode, layout and render together behind the [cache].
//
// # Data flow
//
//	snapshot JSON (or a recording of them)
//	         ↓
//	    [trace] decode, [diff] against the previous step
//	         ↓
//	    [scene] + [layout/grid] boxes, [refgraph] edges
//	         ↓
//	    [viewer].Surface
//	         ↓
//	    SVG / DOT / Graphviz SVG / JSON
//
// # Quick start
//
//	runner := pipeline.NewRunner(cache.NewNullCache(), nil, nil)
//	res, err := runner.Execute(ctx, pipeline.Options{
//	    Trace:    cur,
//	    Previous: prev,
//	    Formats:  []string{pipeline.FormatSVG},
//	})
//	if err != nil {
//	    return err
//	}
//	os.WriteFile("step.svg", res.Artifacts[pipeline.FormatSVG], 0o644)
//
// Supporting packages: [errors] (coded errors), [geom] (points and
// rectangles), [theme] (TOML styling), [observability] (hooks) and
// [buildinfo] (version stamping).
//
// [trace]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/trace
// [timeline]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/timeline
// [diff]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/diff
// [layout/grid]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/layout/grid
// [scene]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/scene
// [refgraph]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/refgraph
// [viewer]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/viewer
// [session]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/session
// [render/svg]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/render/svg
// [render/nodelink]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/render/nodelink
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/cache
// [errors]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/errors
// [geom]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/geom
// [theme]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/theme
// [observability]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/buildinfo
package pkg
