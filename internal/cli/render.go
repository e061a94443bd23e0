package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/pipeline"
	"github.com/matzehuels/heapview/pkg/timeline"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output    string   // output file (one format) or base path (several)
	previous  string   // snapshot to diff against
	step      int      // step of a recording; -1 treats the input as one snapshot
	mode      string   // stacked or grid
	scale     float64  // zoom factor
	themePath string   // TOML theme file
	formats   []string // svg, dot, graphviz, json
	labels    []string // edge labels as target=label
	noCache   bool
	refresh   bool
}

func (c *CLI) renderCommand() *cobra.Command {
	var formatsStr string
	opts := renderOpts{step: -1, scale: pipeline.DefaultScale}

	cmd := &cobra.Command{
		Use:   "render <snapshot|recording>",
		Short: "Render a snapshot to SVG, DOT or JSON",
		Long: `Render a snapshot as a box-and-arrow diagram.

The input is a single snapshot, or with --step a recording (JSON array,
JSON lines, or a directory of snapshots). Values that differ from the
previous snapshot (--previous, or the preceding step) are highlighted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.formats = parseFormats(formatsStr)
			if err := pipeline.ValidateFormats(opts.formats); err != nil {
				return err
			}
			return c.runRender(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): svg (default), dot, graphviz, json (comma-separated)")
	cmd.Flags().StringVar(&opts.previous, "previous", "", "previous snapshot to diff against")
	cmd.Flags().IntVar(&opts.step, "step", opts.step, "render this step of a recording")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "object layout: stacked or grid (default from theme)")
	cmd.Flags().Float64Var(&opts.scale, "scale", opts.scale, "zoom factor")
	cmd.Flags().StringVar(&opts.themePath, "theme", "", "theme file (TOML)")
	cmd.Flags().StringArrayVar(&opts.labels, "label", nil, "edge label as <target-id>=<text> (repeatable)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the artifact cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "re-render even if cached")

	return cmd
}

// parseFormats splits the --format flag. Empty means svg.
func parseFormats(s string) []string {
	if s == "" {
		return []string{pipeline.FormatSVG}
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// parseLabels parses repeated --label target=text flags.
func parseLabels(flags []string) (map[int64]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	labels := make(map[int64]string, len(flags))
	for _, f := range flags {
		id, text, ok := strings.Cut(f, "=")
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "label %q: want <target-id>=<text>", f)
		}
		target, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "label %q: bad target id", f)
		}
		labels[target] = text
	}
	return labels, nil
}

// outputPaths maps each format to the file it is written to. With one format
// an explicit output is used as is; otherwise output (or, when empty, base)
// is a base path that gets the format's extension.
func outputPaths(base, output string, formats []string) map[string]string {
	paths := make(map[string]string, len(formats))
	if output != "" && len(formats) == 1 {
		paths[formats[0]] = output
		return paths
	}
	if output != "" {
		base = strings.TrimSuffix(output, filepath.Ext(output))
	}
	for _, f := range formats {
		paths[f] = base + pipeline.Extension(f)
	}
	return paths
}

// readSnapshot reads one encoded snapshot from disk.
func readSnapshot(path string) ([]byte, error) {
	if err := errors.ValidatePath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "snapshot %s", path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (c *CLI) runRender(ctx context.Context, input string, opts renderOpts) error {
	th, err := loadTheme(opts.themePath)
	if err != nil {
		return err
	}
	labels, err := parseLabels(opts.labels)
	if err != nil {
		return err
	}

	popts := pipeline.Options{
		Source:  filepath.Base(input),
		Mode:    opts.mode,
		Scale:   opts.scale,
		Formats: opts.formats,
		Labels:  labels,
		Theme:   th,
		Refresh: opts.refresh,
	}

	if opts.step >= 0 {
		tl, err := timeline.Load(input)
		if err != nil {
			return err
		}
		if popts.Trace, err = tl.Raw(opts.step); err != nil {
			return err
		}
		if opts.step > 0 {
			popts.Previous, _ = tl.Raw(opts.step - 1)
		}
		popts.Source = tl.Source(opts.step)
	} else if popts.Trace, err = readSnapshot(input); err != nil {
		return err
	}
	if opts.previous != "" {
		if opts.step > 0 {
			printWarning("--previous replaces step %d of the recording as the diff base", opts.step-1)
		}
		if popts.Previous, err = readSnapshot(opts.previous); err != nil {
			return err
		}
	}

	runner, err := c.newRunner(opts.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	prog := newProgress(c.Logger)
	var spin *spinner
	if slices.Contains(opts.formats, pipeline.FormatGraphviz) {
		spin = startSpinner(ctx, os.Stderr, "Laying out with Graphviz...")
	}
	res, err := runner.Execute(ctx, popts)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return err
	}
	prog.done("render finished", "source", popts.Source)

	base := strings.TrimSuffix(input, filepath.Ext(input))
	if opts.step >= 0 {
		base = fmt.Sprintf("%s.step%03d", base, opts.step)
	}
	paths := outputPaths(base, opts.output, opts.formats)

	printSuccess("Rendered %s", popts.Source)
	printStats(res.Stats.Entities, res.Stats.Edges, res.Stats.Changed, res.CacheInfo.RenderHit)
	for _, f := range opts.formats {
		path := paths[f]
		if err := os.WriteFile(path, res.Artifacts[f], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		printFile(path)
	}
	if opts.step >= 0 {
		printNextStep("Step through it", appName+" view "+input)
	}
	return nil
}
