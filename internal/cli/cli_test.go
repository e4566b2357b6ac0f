package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"irmemo/internal/testutil"
)

// writeConfig writes a project config pointing at baseURL and returns its path.
func writeConfig(t *testing.T, dir, baseURL string) string {
	t.Helper()
	path := filepath.Join(dir, ".irmemo", "config.yml")
	body := "version: 1\n" +
		"backend:\n  base_url: \"" + baseURL + "\"\n" +
		"run:\n  company: \"MS\"\n  sections: [bio]\n" +
		"ui:\n  mode: plain\n" +
		"log:\n  level: warn\n" +
		"archive:\n  path: \"runs.duckdb\"\n"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(args ...string) (int, string, string) {
	var out, errOut bytes.Buffer
	code := Run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func scriptJob(t *testing.T, backend *testutil.Backend) {
	t.Helper()
	backend.SetGenerate(testutil.Script{Frames: []testutil.Frame{
		testutil.JSONFrame(t, "steps", map[string]any{"steps": []map[string]any{
			{"id": "bio", "label": "Biography", "children": []map[string]any{
				{"id": "bio_search", "label": "Searching sources"},
			}},
		}}, true),
		testutil.JSONFrame(t, "step_update", map[string]any{"step": "bio_search", "status": "running"}, true),
		testutil.JSONFrame(t, "step_update", map[string]any{"step": "bio_search", "status": "complete"}, true),
		testutil.JSONFrame(t, "section", map[string]any{"section": "bio", "content": "Hello"}, true),
		testutil.JSONFrame(t, "complete", map[string]any{"memo_id": "m-1"}, true),
	}})
}

func TestRunWithoutArgsIsUsage(t *testing.T) {
	code, _, _ := runCLI()
	if code != ExitUsage {
		t.Fatalf("expected exit %d, got %d", ExitUsage, code)
	}
}

func TestUnknownCommandIsUsage(t *testing.T) {
	code, _, stderr := runCLI("frobnicate")
	if code != ExitUsage {
		t.Fatalf("expected exit %d, got %d", ExitUsage, code)
	}
	if !strings.Contains(stderr, "unknown command") {
		t.Fatalf("expected unknown command message, got %q", stderr)
	}
}

func TestUnknownFlagIsUsage(t *testing.T) {
	code, _, _ := runCLI("generate", "--bogus")
	if code != ExitUsage {
		t.Fatalf("expected exit %d, got %d", ExitUsage, code)
	}
}

func TestInitThenValidate(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	code, stdout, stderr := runCLI("init")
	if code != ExitOK {
		t.Fatalf("init exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, filepath.Join(".irmemo", "config.yml")) {
		t.Fatalf("unexpected init output %q", stdout)
	}

	code, _, _ = runCLI("init")
	if code != ExitError {
		t.Fatalf("expected second init to fail, got %d", code)
	}

	code, stdout, stderr = runCLI("validate")
	if code != ExitOK {
		t.Fatalf("validate exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Config OK") {
		t.Fatalf("unexpected validate output %q", stdout)
	}
}

func TestValidateReportsEveryIssue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	body := []byte("version: 3\nbackend:\n  base_url: \"ftp://host\"\nui:\n  mode: fancy\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	code, _, stderr := runCLI("validate", "--config", path)
	if code != ExitError {
		t.Fatalf("expected exit %d, got %d", ExitError, code)
	}
	for _, field := range []string{"version", "backend.base_url", "ui.mode"} {
		if !strings.Contains(stderr, field) {
			t.Fatalf("expected %s in output %q", field, stderr)
		}
	}
}

func TestGenerateRequiresAnalyst(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "http://localhost:1")
	code, _, stderr := runCLI("generate", "--config", path)
	if code != ExitUsage {
		t.Fatalf("expected exit %d, got %d", ExitUsage, code)
	}
	if !strings.Contains(stderr, "--analyst") {
		t.Fatalf("expected analyst hint, got %q", stderr)
	}
}

func TestGenerateRejectsBadUIMode(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "http://localhost:1")
	code, _, _ := runCLI("generate", "--config", path, "--analyst", "A. Name", "--ui", "fancy")
	if code != ExitUsage {
		t.Fatalf("expected exit %d, got %d", ExitUsage, code)
	}
}

// TestGenerateArchiveAndReplay drives a full run then reads it back through
// history, show, and replay.
func TestGenerateArchiveAndReplay(t *testing.T) {
	backend := testutil.StartBackend(t)
	scriptJob(t, backend)
	dir := t.TempDir()
	path := writeConfig(t, dir, backend.URL())

	code, stdout, stderr := runCLI("generate", "--config", path, "--analyst", "A. Name")
	if code != ExitOK {
		t.Fatalf("generate exit %d: %s", code, stderr)
	}
	for _, want := range []string{"run complete: memo m-1", "Memo m-1 (MS) by A. Name", "Searching sources: complete", "bio"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output:\n%s", want, stdout)
		}
	}
	reqs, _ := backend.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one backend request, got %d", len(reqs))
	}
	if got := reqs[0].URL.Query().Get("analyst"); got != "A. Name" {
		t.Fatalf("expected analyst query, got %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "runs.duckdb")); err != nil {
		t.Fatalf("expected archive file: %v", err)
	}

	code, stdout, stderr = runCLI("history", "--config", path)
	if code != ExitOK {
		t.Fatalf("history exit %d: %s", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "complete") || !strings.Contains(lines[1], "m-1") {
		t.Fatalf("unexpected history output:\n%s", stdout)
	}
	runID := strings.Fields(lines[1])[0]

	capture := filepath.Join(dir, "run.capture")
	code, stdout, stderr = runCLI("show", runID, "--config", path, "--capture", capture)
	if code != ExitOK {
		t.Fatalf("show exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Events: 5") {
		t.Fatalf("unexpected show output:\n%s", stdout)
	}

	code, stdout, stderr = runCLI("replay", capture, "--config", path, "--chunk", "7")
	if code != ExitOK {
		t.Fatalf("replay exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "run complete: memo m-1, 1 sections") {
		t.Fatalf("unexpected replay output:\n%s", stdout)
	}
}

func TestGenerateReportsBackendFailure(t *testing.T) {
	backend := testutil.StartBackend(t)
	backend.SetGenerate(testutil.Script{Status: 503})
	dir := t.TempDir()
	path := writeConfig(t, dir, backend.URL())

	code, _, stderr := runCLI("generate", "--config", path, "--analyst", "A. Name", "--no-archive")
	if code != ExitError {
		t.Fatalf("expected exit %d, got %d", ExitError, code)
	}
	if !strings.Contains(stderr, "generate failed") {
		t.Fatalf("unexpected stderr %q", stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "runs.duckdb")); !os.IsNotExist(err) {
		t.Fatalf("expected no archive with --no-archive, got %v", err)
	}
}

func TestRegenerateSeedsFromArchive(t *testing.T) {
	backend := testutil.StartBackend(t)
	scriptJob(t, backend)
	backend.SetRegenerate(testutil.Script{Frames: []testutil.Frame{
		testutil.JSONFrame(t, "regen_start", map[string]any{"section": "bio"}, true),
		testutil.JSONFrame(t, "regen_step", map[string]any{"section": "bio", "step": "Applying changes"}, true),
		testutil.JSONFrame(t, "regen_section", map[string]any{"section": "bio", "content": "Shorter bio"}, true),
		testutil.JSONFrame(t, "regen_complete", map[string]any{"section": "bio"}, true),
	}})
	dir := t.TempDir()
	path := writeConfig(t, dir, backend.URL())

	if code, _, stderr := runCLI("generate", "--config", path, "--analyst", "A. Name"); code != ExitOK {
		t.Fatalf("generate exit %d: %s", code, stderr)
	}
	code, stdout, stderr := runCLI("regenerate", "--config", path, "--memo-id", "m-1", "--section", "bio", "--instruction", "shorter")
	if code != ExitOK {
		t.Fatalf("regenerate exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Shorter bio") || !strings.Contains(stdout, "regeneration of bio complete") {
		t.Fatalf("unexpected regenerate output:\n%s", stdout)
	}
	_, bodies := backend.Requests()
	if len(bodies) != 2 {
		t.Fatalf("expected two backend requests, got %d", len(bodies))
	}
	for _, want := range []string{`"current_content":"Hello"`, `"analyst":"A. Name"`, `"memo_id":"m-1"`} {
		if !strings.Contains(bodies[1], want) {
			t.Fatalf("expected %s in regenerate body %s", want, bodies[1])
		}
	}
}

func TestRegenerateRequiresMemoAndSection(t *testing.T) {
	code, _, _ := runCLI("regenerate", "--section", "bio")
	if code != ExitUsage {
		t.Fatalf("expected exit %d, got %d", ExitUsage, code)
	}
}

func TestHistoryWithoutArchive(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "http://localhost:1")
	code, _, stderr := runCLI("history", "--config", path)
	if code != ExitError {
		t.Fatalf("expected exit %d, got %d", ExitError, code)
	}
	if !strings.Contains(stderr, "no archive") {
		t.Fatalf("unexpected stderr %q", stderr)
	}
}
