package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/theme"
)

// execute runs the root command with args and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := New(io.Discard, LogInfo).RootCommand()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDiffCommandJSON(t *testing.T) {
	dir := t.TempDir()
	prev := writeFile(t, dir, "a.json", steps[0])
	cur := writeFile(t, dir, "b.json", steps[1])

	out, err := execute(t, "diff", prev, cur, "--json")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	var got struct {
		Compared int          `json:"compared"`
		Changes  []changeJSON `json:"changes"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	want := []changeJSON{
		{Path: "frames[0].n", Frame: "main", Old: "1", New: "2"},
		{Path: "heap[4].v", Old: "false", New: "true"},
	}
	if len(got.Changes) != len(want) {
		t.Fatalf("changes = %+v, want %+v", got.Changes, want)
	}
	for i := range want {
		if got.Changes[i] != want[i] {
			t.Errorf("change %d = %+v, want %+v", i, got.Changes[i], want[i])
		}
	}
	if got.Compared < len(want) {
		t.Errorf("compared = %d", got.Compared)
	}
}

func TestDiffCommandTable(t *testing.T) {
	dir := t.TempDir()
	prev := writeFile(t, dir, "a.json", steps[0])
	cur := writeFile(t, dir, "b.json", steps[1])

	out, err := execute(t, "diff", prev, cur)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	for _, want := range []string{"Slot", "frames[0].n", "heap[4].v", "true", "2 of"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "diff", cur, cur)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No changes") {
		t.Errorf("identical snapshots: %q", out)
	}
}

func TestDiffCommandErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", steps[0])
	bad := writeFile(t, dir, "bad.json", `{"frames":[]}`)

	if _, err := execute(t, "diff", good, bad); !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("malformed snapshot: err = %v", err)
	}
	if _, err := execute(t, "diff", good, filepath.Join(dir, "nope.json")); !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("missing snapshot: err = %v", err)
	}
}

func TestThemeCommands(t *testing.T) {
	out, err := execute(t, "theme", "default")
	if err != nil {
		t.Fatalf("theme default: %v", err)
	}
	if !strings.Contains(out, "[colors]") || !strings.Contains(out, "[layout]") {
		t.Errorf("default theme output:\n%s", out)
	}
	// The printed theme must load back to the default.
	parsed, err := theme.Parse([]byte(out))
	if err != nil {
		t.Fatalf("Parse(default): %v", err)
	}
	if parsed.Colors != theme.Default().Colors {
		t.Errorf("round-tripped colors = %+v", parsed.Colors)
	}

	dir := t.TempDir()
	good := writeFile(t, dir, "good.toml", out)
	if _, err := execute(t, "theme", "check", good); err != nil {
		t.Errorf("theme check good: %v", err)
	}
	bad := writeFile(t, dir, "bad.toml", "[colors]\nsparkle = \"#fff\"\n")
	if _, err := execute(t, "theme", "check", bad); !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("theme check bad: err = %v", err)
	}
}

func TestCacheCommands(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", base)

	out, err := execute(t, "cache", "path")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := strings.TrimSpace(out), filepath.Join(base, appName); got != want {
		t.Errorf("cache path = %q, want %q", got, want)
	}

	// Populate the cache with one render, then clear it.
	cur := writeFile(t, t.TempDir(), "cur.json", steps[0])
	if _, err := execute(t, "render", cur); err != nil {
		t.Fatalf("render: %v", err)
	}
	if _, err := execute(t, "cache", "clear"); err != nil {
		t.Errorf("cache clear: %v", err)
	}
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			out, err := execute(t, "completion", shell)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out, appName) {
				t.Errorf("%s completion does not mention %s", shell, appName)
			}
		})
	}
	if _, err := execute(t, "completion", "tcsh"); err == nil {
		t.Error("unknown shell should fail")
	}
}
