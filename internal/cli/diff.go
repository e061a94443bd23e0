package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/heapview/pkg/diff"
	"github.com/matzehuels/heapview/pkg/trace"
)

func (c *CLI) diffCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "diff <previous> <current>",
		Short: "List the values that changed between two snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, err := decodeFile(args[0])
			if err != nil {
				return err
			}
			cur, err := decodeFile(args[1])
			if err != nil {
				return err
			}
			stats := diff.Annotate(cur, prev)
			c.Logger.Debug("diffed snapshots", "compared", stats.Compared, "changed", stats.Changed())
			if asJSON {
				return writeChangesJSON(cmd.OutOrStdout(), stats)
			}
			writeChanges(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print changes as JSON")
	return cmd
}

func decodeFile(path string) (*trace.Trace, error) {
	data, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	t, err := trace.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return t, nil
}

type changeJSON struct {
	Path  string `json:"path"`
	Frame string `json:"frame,omitempty"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

func writeChangesJSON(w io.Writer, stats diff.Stats) error {
	out := struct {
		Compared int          `json:"compared"`
		Changes  []changeJSON `json:"changes"`
	}{Compared: stats.Compared, Changes: make([]changeJSON, 0, len(stats.Changes))}
	for _, ch := range stats.Changes {
		out.Changes = append(out.Changes, changeJSON{
			Path:  ch.Path.String(),
			Frame: ch.Frame,
			Old:   ch.Old.String(),
			New:   ch.New.String(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeChanges(w io.Writer, stats diff.Stats) {
	if len(stats.Changes) == 0 {
		fmt.Fprintf(w, "%s No changes (%d values compared)\n", styleIconInfo.Render(iconInfo), stats.Compared)
		return
	}

	rows := make([][]string, 0, len(stats.Changes))
	for _, ch := range stats.Changes {
		rows = append(rows, []string{ch.Path.String(), ch.Frame, ch.Old.String(), ch.New.String()})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Slot", "Frame", "Old", "New").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 2:
				return cell.Inherit(StyleOld)
			case col == 3:
				return cell.Inherit(StyleChanged)
			case col == 1:
				return cell.Foreground(colorDim)
			}
			return cell
		})

	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%s %d of %d values changed\n", styleIconSuccess.Render(iconSuccess), stats.Changed(), stats.Compared)
}
