package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

// resetHelpFlags clears --help state that cobra leaves set on the shared
// command tree after a previous executeCommand call.
func resetHelpFlags(cmd *cobra.Command) {
	if f := cmd.Flags().Lookup("help"); f != nil {
		f.Value.Set("false")
		f.Changed = false
	}
	for _, c := range cmd.Commands() {
		resetHelpFlags(c)
	}
}

func executeCommand(args ...string) (string, error) {
	resetHelpFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// testProject creates a project root with a .repo-brain control dir and a
// config file pointing at it. History goes to a sqlite file in the temp dir.
func testProject(t *testing.T, history bool) (root, cfgPath string) {
	t.Helper()
	root = t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".repo-brain"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := fmt.Sprintf(`brain:
  project_root: %q
  interpreter: sh
  timeout: 30s
history:
  enabled: %t
  dsn: %q
log:
  level: error
`, root, history, filepath.Join(root, "history.db"))
	cfgPath = filepath.Join(root, "repobrain.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return root, cfgPath
}

func writeControlFile(t *testing.T, root, name, content string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, ".repo-brain", name), []byte(content), mode); err != nil {
		t.Fatal(err)
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{
		"serve", "phase", "run", "scan", "repair", "diagnosis", "detection",
		"logs", "history", "watch", "config", "db", "version",
	}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestNestedSubcommands(t *testing.T) {
	for _, args := range [][]string{
		{"history", "stats", "--help"},
		{"db", "migrate", "--help"},
		{"db", "reset", "--help"},
		{"db", "prune", "--help"},
		{"config", "show", "--help"},
		{"config", "validate", "--help"},
	} {
		out, err := executeCommand(args...)
		if err != nil {
			t.Errorf("%v failed: %v", args, err)
		}
		if out == "" {
			t.Errorf("%v produced no output", args)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := executeCommand("nonexistent")
	if err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestConfigValidate(t *testing.T) {
	_, cfgPath := testProject(t, false)
	out, err := executeCommand("--config", cfgPath, "config", "validate")
	if err != nil {
		t.Fatalf("valid config: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration is valid.") || strings.Contains(out, "Warning") {
		t.Errorf("output = %q", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("advisor:\n  backend: gemini\nlog:\n  format: xml\n"), 0o644)
	out, err = executeCommand("--config", bad, "config", "validate")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, "advisor.backend") || !strings.Contains(out, "log.format") {
		t.Errorf("output should list both errors: %q", out)
	}
}

func TestConfigShow_RedactsAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repobrain.yaml")
	os.WriteFile(path, []byte("advisor:\n  backend: openai\n  api_key: sk-secret\n"), 0o644)

	out, err := executeCommand("--config", path, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "sk-secret") {
		t.Error("api key leaked in config show")
	}
	if !strings.Contains(out, "port: 3001") || !strings.Contains(out, "# "+path) {
		t.Errorf("output = %q", out)
	}
}

func TestPhaseCommand_RunsScriptAndRecordsHistory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	root, cfgPath := testProject(t, true)
	writeControlFile(t, root, "brain.hello.sh", "echo \"hello from $JQ_BIN\"\n", 0o755)

	out, err := executeCommand("--config", cfgPath, "phase", "hello", "--format", "text")
	if err != nil {
		t.Fatalf("phase: %v\n%s", err, out)
	}
	if !strings.Contains(out, "hello from jq") || !strings.Contains(out, "phase hello complete") {
		t.Errorf("output = %q", out)
	}

	out, err = executeCommand("--config", cfgPath, "history", "--format", "json", "--phase", "hello", "--limit", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, `"Phase": "hello"`) {
		t.Errorf("history output = %q", out)
	}
}

func TestPhaseCommand_Failures(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	root, cfgPath := testProject(t, false)
	writeControlFile(t, root, "brain.broken.sh", "echo oops >&2\nexit 3\n", 0o755)

	out, err := executeCommand("--config", cfgPath, "phase", "broken", "--format", "text")
	if err == nil || !strings.Contains(err.Error(), "exit 3") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(out, "oops") {
		t.Errorf("output = %q", out)
	}

	if _, err := executeCommand("--config", cfgPath, "phase", "../../etc/passwd", "--format", "text"); err == nil {
		t.Error("expected error for traversal")
	}
}

func TestDiagnosisCommand(t *testing.T) {
	root, cfgPath := testProject(t, false)

	if _, err := executeCommand("--config", cfgPath, "diagnosis"); err == nil {
		t.Error("expected error without a diagnosis")
	}

	writeControlFile(t, root, "diagnosis.json",
		`{"status":"GREEN","reason":"ok","languages":["go"],"framework":"none","ci":"github-actions","timestamp":"2026-10-01T00:00:00Z"}`, 0o644)
	out, err := executeCommand("--config", cfgPath, "diagnosis")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"healthScore": 100`) {
		t.Errorf("output = %q", out)
	}
}

func TestLogsCommand(t *testing.T) {
	root, cfgPath := testProject(t, false)

	out, err := executeCommand("--config", cfgPath, "logs", "--tail", "0")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No logs available") {
		t.Errorf("output = %q", out)
	}

	os.MkdirAll(filepath.Join(root, ".repo-brain", "autopsy"), 0o755)
	writeControlFile(t, root, "autopsy/20261001.log", "one\ntwo\nthree\n", 0o644)
	out, err = executeCommand("--config", cfgPath, "logs", "--tail", "2")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "one") || !strings.Contains(out, "three") {
		t.Errorf("output = %q", out)
	}
}

func TestHistory_Disabled(t *testing.T) {
	_, cfgPath := testProject(t, false)
	_, err := executeCommand("--config", cfgPath, "history", "--format", "text", "--phase", "", "--limit", "20")
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Errorf("err = %v", err)
	}
}

func TestDBCommands(t *testing.T) {
	_, cfgPath := testProject(t, true)

	out, err := executeCommand("--config", cfgPath, "db", "migrate")
	if err != nil || !strings.Contains(out, "up to date") {
		t.Fatalf("migrate: %v %q", err, out)
	}

	if _, err := executeCommand("--config", cfgPath, "db", "reset", "--force=false"); err == nil {
		t.Error("reset without --force should fail")
	}
	out, err = executeCommand("--config", cfgPath, "db", "reset", "--force")
	if err != nil || !strings.Contains(out, "History reset.") {
		t.Errorf("reset: %v %q", err, out)
	}

	out, err = executeCommand("--config", cfgPath, "db", "prune", "--older-than", "1h")
	if err != nil || !strings.Contains(out, "Pruned 0 row(s).") {
		t.Errorf("prune: %v %q", err, out)
	}
}

func TestScanCommand_ReportsDeltaSinceLastScan(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	root, cfgPath := testProject(t, true)
	diagnose := func(status string) string {
		return fmt.Sprintf(`cat > .repo-brain/diagnosis.json <<'JSON'
{"status":%q,"reason":"r","languages":[],"framework":"none","ci":"none","timestamp":"2026-10-01T00:00:00Z"}
JSON
`, status)
	}

	writeControlFile(t, root, "brain.diagnose.sh", diagnose("RED"), 0o755)
	out, err := executeCommand("--config", cfgPath, "scan", "--format", "text", "--repo", "")
	if err != nil {
		t.Fatalf("first scan: %v\n%s", err, out)
	}
	if !strings.Contains(out, "RED  score 20/100") || strings.Contains(out, "since") {
		t.Errorf("first scan output = %q", out)
	}

	writeControlFile(t, root, "brain.diagnose.sh", diagnose("GREEN"), 0o755)
	out, err = executeCommand("--config", cfgPath, "scan", "--format", "text", "--repo", "")
	if err != nil {
		t.Fatalf("second scan: %v\n%s", err, out)
	}
	if !strings.Contains(out, "GREEN  score 90/100  (+70 since") {
		t.Errorf("second scan output = %q", out)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 50, "short"},
		{strings.Repeat("a", 50), 50, strings.Repeat("a", 50)},
		{strings.Repeat("a", 51), 50, strings.Repeat("a", 47) + "..."},
		{strings.Repeat("é", 60), 50, strings.Repeat("é", 47) + "..."},
		{"phase détect: ünïcödé error", 10, "phase d..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}
