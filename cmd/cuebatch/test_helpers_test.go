package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	corpusDir  string
	stateDir   string
	configPath string
	ledgerPath string
	reportPath string
	server     *fakeAPI
}

// fakeAPI serves the transcription and translation endpoints. Requests for
// files named in failNames get a 500.
type fakeAPI struct {
	*httptest.Server
	hits      atomic.Int64
	mu        sync.Mutex
	failNames map[string]bool
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{failNames: make(map[string]bool)}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		api.mu.Lock()
		fail := api.failNames[header.Filename]
		api.mu.Unlock()
		if fail {
			http.Error(w, `{"error":{"message":"upstream exploded"}}`, http.StatusInternalServerError)
			return
		}
		text := "hola"
		if strings.HasSuffix(r.URL.Path, "/translations") {
			text = "hello"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text": text,
			"segments": []map[string]any{
				{"id": 0, "start": 0.0, "end": 1.25, "text": " " + text + " "},
				{"id": 1, "start": 1.25, "end": 2.5, "text": text + " again"},
			},
		})
	}))
	t.Cleanup(api.Close)
	return api
}

func (a *fakeAPI) failFor(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNames[name] = true
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	home := filepath.Join(base, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CUEBATCH_API_KEY", "")
	t.Setenv("CUEBATCH_CORPUS_DIR", "")

	env := &cliTestEnv{
		baseDir:   base,
		corpusDir: filepath.Join(base, "corpus"),
		stateDir:  filepath.Join(base, "state"),
		server:    newFakeAPI(t),
	}
	env.configPath = filepath.Join(base, "cuebatch.toml")
	env.ledgerPath = filepath.Join(env.stateDir, "progress.json")
	env.reportPath = filepath.Join(env.stateDir, "report.json")
	if err := os.MkdirAll(env.corpusDir, 0o755); err != nil {
		t.Fatalf("mkdir corpus: %v", err)
	}
	env.writeConfig(t, "sk-test")
	return env
}

func (e *cliTestEnv) writeConfig(t *testing.T, apiKey string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
corpus_dir = %q
ledger_path = %q
report_path = %q
history_path = %q
log_dir = %q

[transcription]
api_key = %q
base_url = %q
media_extensions = [".mp4"]
source_suffix = ".es.srt"
target_suffix = ".en.srt"
max_file_bytes = 1024

[batch]
round_size = 2
round_delay_ms = 0

[logging]
level = "error"
`,
		e.corpusDir,
		e.ledgerPath,
		e.reportPath,
		filepath.Join(e.stateDir, "history.db"),
		filepath.Join(e.stateDir, "logs"),
		apiKey,
		e.server.URL,
	)
	if err := os.WriteFile(e.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) addAsset(t *testing.T, rel string, size int) string {
	t.Helper()
	path := filepath.Join(e.corpusDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (e *cliTestEnv) artifact(rel, suffix string) string {
	path := filepath.Join(e.corpusDir, filepath.FromSlash(rel))
	return strings.TrimSuffix(path, filepath.Ext(path)) + suffix
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func readLedgerIDs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	var doc struct {
		CompletedIDs []string `json:"completedIds"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse ledger: %v", err)
	}
	return doc.CompletedIDs
}
