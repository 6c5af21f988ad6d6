package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores default flag values on cmd and its subcommands.
// The run command is a package-level singleton, so flag values set by
// one Execute call (including cobra's own --help flag) would otherwise
// leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	resetFlags(cmd)
	b := bytes.NewBufferString("")
	cmd.SetOut(b)
	cmd.SetErr(b)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return b.String(), err
}

func TestCLIContract_Help(t *testing.T) {
	out, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}

	for _, want := range []string{"run", "entries", "validate", "version"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in root help output", want)
		}
	}
}

func TestCLIContract_RunHelp(t *testing.T) {
	out, err := execute(t, "run", "--help")
	if err != nil {
		t.Fatalf("run help failed: %v", err)
	}

	if !strings.Contains(out, "Usage:") {
		t.Errorf("expected usage info in run help")
	}
	for _, flag := range []string{"--serial", "--max-parallel", "--state-dir", "--no-notify"} {
		if !strings.Contains(out, flag) {
			t.Errorf("expected flag %s in run help", flag)
		}
	}
	for _, sub := range []string{"resume", "report", "reset"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected subcommand %s in run help", sub)
		}
	}
}

func TestCLIContract_Version(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "Kestrel version") {
		t.Errorf("unexpected version output: %q", out)
	}
}

func writeTestPipeline(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "kestrel.yaml")
	content := `version: 1
matrix:
  - os: linux
    runtime: "3.7"
    kind: python
  - os: osx
    runtime: "3.7"
    kind: python
test:
  command: pytest
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIEntries(t *testing.T) {
	path := writeTestPipeline(t)
	defer func() { runPipeline = "" }()

	out, err := execute(t, "entries", "--pipeline", path)
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}

	if !strings.Contains(out, "linux-python3.7") || !strings.Contains(out, "osx-python3.7") {
		t.Errorf("expected both entry IDs, got: %q", out)
	}
}

func TestCLIValidate(t *testing.T) {
	path := writeTestPipeline(t)
	defer func() { runPipeline = "" }()

	out, err := execute(t, "validate", "--pipeline", path)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "valid") {
		t.Errorf("expected valid verdict, got: %q", out)
	}
}

func TestCLIValidate_BadPipeline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kestrel.yaml")
	if err := os.WriteFile(path, []byte("version: 1\nmatrix: []\ntest:\n  command: pytest\n"), 0644); err != nil {
		t.Fatal(err)
	}
	defer func() { runPipeline = "" }()

	_, err := execute(t, "validate", "--pipeline", path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "matrix") {
		t.Errorf("expected matrix error, got: %v", err)
	}
}
