// Package nodelink exports a viewer surface as a Graphviz node-link diagram.
//
// # Overview
//
// Where the svg painter keeps the positions computed by the scene (and the
// user's drags), this package hands the structure to Graphviz and lets it
// choose the placement. It is useful for large heaps whose default flow
// layout gets crowded, and for feeding the diagram to other Graphviz tools.
//
// # Usage
//
//	dot := nodelink.ToDOT(panel.Surface(), th, nodelink.Options{})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// Each frame, the statics panel and every heap box becomes an HTML-table
// node with one row per slot. A reference edge starts at the port of the
// slot that holds it, so the arrow leaves the exact row, and carries the
// edge's user label. Changed values are bold in the theme's changed color.
//
// With [Options].Compact only titles are drawn and parallel edges between
// the same two nodes are merged.
//
// # Dependencies
//
// Rendering uses [github.com/goccy/go-graphviz], which runs Graphviz in
// process; no dot binary is needed.
package nodelink
