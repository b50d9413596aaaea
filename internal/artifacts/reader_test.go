package artifacts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const validDiagnosis = `{
  "repo": "billing-api",
  "status": "AUTO_FIXABLE",
  "reason": "missing lockfile",
  "languages": ["node", "typescript"],
  "framework": "next",
  "ci": "github-actions",
  "timestamp": "2026-10-01T12:00:00Z",
  "vulnerabilities": 2,
  "prStatus": "NONE"
}`

func TestDiagnosis_Valid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, DiagnosisFile), validDiagnosis)

	d, err := NewReader(dir, LogOptions{}).Diagnosis()
	if err != nil {
		t.Fatalf("Diagnosis() error: %v", err)
	}
	if d.Status != StatusAutoFixable {
		t.Errorf("Status = %q", d.Status)
	}
	if d.Repo != "billing-api" {
		t.Errorf("Repo = %q", d.Repo)
	}
	if len(d.Languages) != 2 || d.Languages[1] != "typescript" {
		t.Errorf("Languages = %v", d.Languages)
	}
	if d.Vulnerabilities == nil || *d.Vulnerabilities != 2 {
		t.Errorf("Vulnerabilities = %v", d.Vulnerabilities)
	}
}

func TestDiagnosis_Missing(t *testing.T) {
	_, err := NewReader(t.TempDir(), LogOptions{}).Diagnosis()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if errors.Is(err, ErrInvalid) {
		t.Error("a missing file should not be reported as invalid")
	}
}

func TestDiagnosis_InvalidJSONIsNotFoundAndInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, DiagnosisFile), `{"status": "GREEN",`)

	_, err := NewReader(dir, LogOptions{}).Diagnosis()
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("error = %v, want ErrInvalid", err)
	}
}

func TestDiagnosis_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"unknown status":   `{"status":"PURPLE","reason":"","languages":[],"ci":"none","framework":"none","timestamp":"t"}`,
		"missing reason":   `{"status":"RED","languages":[],"ci":"none","framework":"none","timestamp":"t"}`,
		"languages string": `{"status":"RED","reason":"x","languages":"go","ci":"none","framework":"none","timestamp":"t"}`,
		"not an object":    `["GREEN"]`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, DiagnosisFile), content)
			_, err := NewReader(dir, LogOptions{}).Diagnosis()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestDiagnosis_ErrorDoesNotLeakPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, DiagnosisFile), `nope`)
	_, err := NewReader(dir, LogOptions{}).Diagnosis()
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), dir) {
		t.Errorf("error %q leaks the control dir path", err)
	}
}

func TestDetection(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, DetectionFile), `{"languages":["python"],"framework":"none","ci":"none","packageManager":"pip"}`)

	d, err := NewReader(dir, LogOptions{}).Detection()
	if err != nil {
		t.Fatalf("Detection() error: %v", err)
	}
	if len(d.Languages) != 1 || d.Languages[0] != "python" {
		t.Errorf("Languages = %v", d.Languages)
	}
	if d.PackageManager != "pip" {
		t.Errorf("PackageManager = %q", d.PackageManager)
	}
}

func TestDetection_Missing(t *testing.T) {
	_, err := NewReader(t.TempDir(), LogOptions{}).Detection()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestLatestLog_PicksLexicallyGreatest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "autopsy", "2026-01-01T10-00-00.log"), "old\n")
	writeFile(t, filepath.Join(dir, "autopsy", "2026-03-05T08-30-00.log"), "line one\n\nline two\r\n")
	writeFile(t, filepath.Join(dir, "autopsy", "2026-02-14T00-00-00.log"), "middle\n")
	if err := os.MkdirAll(filepath.Join(dir, "autopsy", "zzz-subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	name, lines, err := NewReader(dir, LogOptions{}).LatestLog()
	if err != nil {
		t.Fatalf("LatestLog() error: %v", err)
	}
	if name != "2026-03-05T08-30-00.log" {
		t.Errorf("name = %q", name)
	}
	if len(lines) != 2 || lines[0] != "line one" || lines[1] != "line two" {
		t.Errorf("lines = %q", lines)
	}
}

func TestLatestLog_Pattern(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "autopsy", "run-1", "trace.log"), "nested\n")
	writeFile(t, filepath.Join(dir, "autopsy", "zz-notes.txt"), "ignored\n")

	name, lines, err := NewReader(dir, LogOptions{Pattern: "**/*.log"}).LatestLog()
	if err != nil {
		t.Fatalf("LatestLog() error: %v", err)
	}
	if name != "run-1/trace.log" {
		t.Errorf("name = %q", name)
	}
	if len(lines) != 1 || lines[0] != "nested" {
		t.Errorf("lines = %q", lines)
	}
}

func TestLatestLog_NoDirOrNoFiles(t *testing.T) {
	dir := t.TempDir()
	r := NewReader(dir, LogOptions{})
	if _, _, err := r.LatestLog(); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing dir: error = %v, want ErrNotFound", err)
	}

	if err := os.MkdirAll(filepath.Join(dir, "autopsy"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.LatestLog(); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty dir: error = %v, want ErrNotFound", err)
	}
}

func TestSplitLines(t *testing.T) {
	got := SplitLines("a\n\nb\r\n\nc")
	want := []string{"a", "b", "c"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("SplitLines = %q, want %q", got, want)
	}
	if SplitLines("") != nil {
		t.Error("SplitLines(\"\") should be nil")
	}
}
