// Package timeline loads a recording: the ordered sequence of snapshots a
// producer emitted, one per execution step.
//
// A recording is one of:
//   - a JSON array of snapshots
//   - a stream of snapshots separated by whitespace: JSON lines, or a single
//     pretty-printed snapshot
//   - a directory of *.json files, one snapshot each, in file name order
//
// Steps are kept as raw bytes and decoded on demand. Every step is a complete
// snapshot; nothing is applied incrementally.
package timeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/matzehuels/heapview/pkg/diff"
	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/trace"
)

// Timeline is an ordered list of encoded snapshots.
type Timeline struct {
	steps   [][]byte
	sources []string
}

// Load reads the recording at path.
func Load(path string) (*Timeline, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "recording %s", path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return loadDir(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data, filepath.Base(path))
}

// Parse splits a JSON array or a stream of snapshots into steps. name labels
// the steps in error messages.
func Parse(data []byte, name string) (*Timeline, error) {
	tl := &Timeline{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "recording %s", name)
		}
		for i, r := range raw {
			tl.add(r, fmt.Sprintf("%s[%d]", name, i))
		}
		return tl, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "recording %s", name)
		}
		start := int(dec.InputOffset()) - len(raw)
		line := 1 + bytes.Count(data[:start], []byte("\n"))
		tl.add(raw, fmt.Sprintf("%s:%d", name, line))
	}
	return tl, nil
}

func loadDir(dir string) (*Timeline, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	slices.Sort(files)

	tl := &Timeline{}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		tl.add(data, filepath.Base(f))
	}
	return tl, nil
}

// FromTraces encodes in-memory traces into a timeline.
func FromTraces(ts ...*trace.Trace) (*Timeline, error) {
	tl := &Timeline{}
	for i, t := range ts {
		data, err := trace.Encode(t)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		tl.add(data, fmt.Sprintf("step %d", i))
	}
	return tl, nil
}

func (tl *Timeline) add(data []byte, source string) {
	tl.steps = append(tl.steps, data)
	tl.sources = append(tl.sources, source)
}

// Len returns the number of steps.
func (tl *Timeline) Len() int { return len(tl.steps) }

// Source names where step i came from, e.g. "run.jsonl:12".
func (tl *Timeline) Source(i int) string {
	if i < 0 || i >= len(tl.sources) {
		return ""
	}
	return tl.sources[i]
}

// Raw returns the encoded snapshot of step i.
func (tl *Timeline) Raw(i int) ([]byte, error) {
	if i < 0 || i >= len(tl.steps) {
		return nil, errors.New(errors.ErrCodeNotFound, "step %d out of range [0, %d)", i, len(tl.steps))
	}
	return tl.steps[i], nil
}

// Decode returns a fresh, unannotated copy of step i.
func (tl *Timeline) Decode(i int) (*trace.Trace, error) {
	data, err := tl.Raw(i)
	if err != nil {
		return nil, err
	}
	t, err := trace.Decode(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "step %d (%s)", i, tl.sources[i])
	}
	return t, nil
}

// Pair decodes step i and its predecessor. prev is nil for the first step.
func (tl *Timeline) Pair(i int) (cur, prev *trace.Trace, err error) {
	cur, err = tl.Decode(i)
	if err != nil {
		return nil, nil, err
	}
	if i > 0 {
		prev, err = tl.Decode(i - 1)
		if err != nil {
			return nil, nil, err
		}
	}
	return cur, prev, nil
}

// Step decodes step i and annotates it against step i-1.
func (tl *Timeline) Step(i int) (*trace.Trace, diff.Stats, error) {
	cur, prev, err := tl.Pair(i)
	if err != nil {
		return nil, diff.Stats{}, err
	}
	return cur, diff.Annotate(cur, prev), nil
}
