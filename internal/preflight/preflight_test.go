package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cuebatch/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	state := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CorpusDir = t.TempDir()
	cfg.Paths.LedgerPath = filepath.Join(state, "progress.json")
	cfg.Paths.ReportPath = filepath.Join(state, "report.json")
	cfg.Paths.HistoryPath = filepath.Join(state, "history.db")
	cfg.Paths.LogDir = filepath.Join(state, "logs")
	cfg.Transcription.APIKey = "sk-test"
	return &cfg
}

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_Failures(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing", filepath.Join(t.TempDir(), "nope"), "does not exist"},
		{"file", file, "is not a directory"},
		{"empty", "", "not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckDirectoryAccess("test", tt.path)
			if result.Passed {
				t.Fatal("expected failure")
			}
			if !strings.Contains(result.Detail, tt.want) {
				t.Fatalf("detail %q missing %q", result.Detail, tt.want)
			}
		})
	}
}

func TestCheckEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		status int
		pass   bool
		want   string
	}{
		{"ok", http.StatusOK, true, "reachable"},
		{"unauthorized", http.StatusUnauthorized, false, "auth failed"},
		{"server error", http.StatusBadGateway, false, "502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth, gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				gotPath = r.URL.Path
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			result := CheckEndpoint(context.Background(), srv.URL+"/v1/", "sk-test")
			if result.Passed != tt.pass {
				t.Fatalf("passed = %v, detail %q", result.Passed, result.Detail)
			}
			if !strings.Contains(result.Detail, tt.want) {
				t.Fatalf("detail %q missing %q", result.Detail, tt.want)
			}
			if gotAuth != "Bearer sk-test" {
				t.Fatalf("authorization header = %q", gotAuth)
			}
			if gotPath != "/v1/models" {
				t.Fatalf("path = %q, want /v1/models", gotPath)
			}
		})
	}
}

func TestCheckEndpoint_MissingURL(t *testing.T) {
	if result := CheckEndpoint(context.Background(), " ", "key"); result.Passed {
		t.Fatal("expected failure for empty base url")
	}
}

func TestCheckCredentials(t *testing.T) {
	cfg := testConfig(t)
	if result := CheckCredentials(cfg); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	cfg.Transcription.APIKey = ""
	result := CheckCredentials(cfg)
	if result.Passed {
		t.Fatal("expected failure for missing key")
	}
	if !strings.Contains(result.Detail, "api_key") {
		t.Fatalf("detail should name the setting: %q", result.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, Options{}); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_AllPass(t *testing.T) {
	results := RunAll(context.Background(), testConfig(t), Options{})
	// corpus, ledger, report, history, api key
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_SkipsOptionalChecks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.ReportPath = ""
	cfg.Transcription.APIKey = ""

	results := RunAll(context.Background(), cfg, Options{SkipCredentials: true, Network: true})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(results), results)
	}
	for _, r := range results {
		if r.Name == "API key" || r.Name == "Transcription API" {
			t.Fatalf("unexpected check %q", r.Name)
		}
	}
}

func TestRunAll_NetworkProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Transcription.BaseURL = srv.URL
	failed := Failed(RunAll(context.Background(), cfg, Options{Network: true}))
	if len(failed) != 1 || failed[0].Name != "Transcription API" {
		t.Fatalf("expected only the endpoint check to fail, got %+v", failed)
	}
}

func TestRunAll_MissingCorpus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.CorpusDir = filepath.Join(t.TempDir(), "missing")
	failed := Failed(RunAll(context.Background(), cfg, Options{}))
	if len(failed) != 1 || failed[0].Name != "Corpus directory" {
		t.Fatalf("expected corpus failure, got %+v", failed)
	}
}
