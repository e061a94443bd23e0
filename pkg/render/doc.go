// Package render groups the painters of a [viewer.Surface].
//
//   - [svg] draws the surface as a standalone SVG document, optionally with
//     hover and focus scripting for browsers.
//   - [nodelink] converts the surface to Graphviz DOT, and lays DOT out to
//     SVG with the embedded Graphviz engine.
//
// Both are pure functions of the surface and a theme; neither mutates the
// viewer.
//
// [viewer.Surface]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/viewer#Surface
// [svg]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/render/svg
// [nodelink]: https://pkg.go.dev/github.com/matzehuels/heapview/pkg/render/nodelink
package render
