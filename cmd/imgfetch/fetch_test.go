package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/imgfetch/internal/config"
	"github.com/nao1215/imgfetch/internal/model"
	"github.com/nao1215/imgfetch/internal/pipeline"
	"github.com/nao1215/imgfetch/internal/report"
)

// newImageServer serves two paths with the same PNG bytes, one HTML page
// and one missing resource.
func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()

	png := []byte("\x89PNG\r\n\x1a\nnot really a png but typed as one")
	mux := http.NewServeMux()
	mux.HandleFunc("/cat.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	})
	mux.HandleFunc("/copy/cat.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html></html>"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// executeFetch runs "imgfetch fetch args..." and returns stdout.
func executeFetch(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(append([]string{"fetch"}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))

	err := cmd.Execute()
	return out.String(), err
}

// TestNewFetchCmd tests the fetch command creation.
func TestNewFetchCmd(t *testing.T) {
	t.Parallel()

	cmd := NewFetchCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "fetch [url...]" {
			t.Errorf("expected use 'fetch [url...]', got %q", cmd.Use)
		}
	})

	t.Run("has flags with shorthands", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name      string
			shorthand string
			defValue  string
		}{
			{"urls", "u", ""},
			{"list", "l", ""},
			{"output-dir", "d", config.DefaultOutputDir},
			{"max-size", "s", "10 MiB"},
			{"timeout", "t", "30s"},
			{"concurrency", "p", "1"},
			{"proxy", "x", ""},
			{"tor-timeout", "T", "3m0s"},
			{"config", "c", ""},
			{"json", "j", "false"},
			{"markdown", "m", "false"},
			{"report", "r", ""},
		}
		for _, tt := range tests {
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Errorf("expected %s flag", tt.name)
				continue
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("%s: expected shorthand %q, got %q", tt.name, tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("%s: expected default %q, got %q", tt.name, tt.defValue, flag.DefValue)
			}
		}
	})

	t.Run("has long-only flags", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"max-redirects", "user-agent", "allow-type", "no-metadata", "tor", "no-history", "db-dir"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected %s flag", name)
			}
		}
	})
}

// TestBuildConfig tests how defaults, the config file and flags combine.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("config file then flags", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		cfgPath := filepath.Join(dir, "imgfetch.yaml")
		content := `output_dir: from-file
max_size: 2MB
timeout: 5s
concurrency: 3
hosts:
  Images.Example.com:
    cookie: "session=abc"
`
		if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		cmd := NewFetchCmd()
		if err := cmd.ParseFlags([]string{"-c", cfgPath, "-p", "8", "--no-history", "--no-metadata"}); err != nil {
			t.Fatal(err)
		}

		cfg, err := buildConfig(cmd, []string{"https://example.com/a.png"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.OutputDir != "from-file" {
			t.Errorf("expected output dir from file, got %q", cfg.OutputDir)
		}
		if cfg.MaxSize != 2_000_000 {
			t.Errorf("expected max size 2000000, got %d", cfg.MaxSize)
		}
		if cfg.Timeout != 5*time.Second {
			t.Errorf("expected timeout 5s, got %v", cfg.Timeout)
		}
		if cfg.Concurrency != 8 {
			t.Errorf("expected flag to override concurrency, got %d", cfg.Concurrency)
		}
		if cfg.SaveHistory {
			t.Error("expected history to be disabled")
		}
		if cfg.ExtractMetadata {
			t.Error("expected metadata extraction to be disabled")
		}
		if cfg.ConfigFilePath != cfgPath {
			t.Errorf("expected config path %q, got %q", cfgPath, cfg.ConfigFilePath)
		}
		headers := cfg.Hosts.HeadersFor("images.example.com")
		if headers["Cookie"] != "session=abc" {
			t.Errorf("expected cookie header, got %v", headers)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewFetchCmd()
		if err := cmd.ParseFlags([]string{"-c", filepath.Join(t.TempDir(), "nope.yaml")}); err != nil {
			t.Fatal(err)
		}

		_, err := buildConfig(cmd, []string{"https://example.com/a.png"})
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid max size flag", func(t *testing.T) {
		t.Parallel()

		cmd := NewFetchCmd()
		if err := cmd.ParseFlags([]string{"-s", "lots", "-c", writeEmptyConfig(t)}); err != nil {
			t.Fatal(err)
		}

		_, err := buildConfig(cmd, []string{"https://example.com/a.png"})
		if !errors.Is(err, config.ErrInvalidMaxSize) {
			t.Errorf("expected ErrInvalidMaxSize, got %v", err)
		}
	})

	t.Run("human readable max size flag", func(t *testing.T) {
		t.Parallel()

		cmd := NewFetchCmd()
		if err := cmd.ParseFlags([]string{"-s", "512KiB", "-c", writeEmptyConfig(t)}); err != nil {
			t.Fatal(err)
		}

		cfg, err := buildConfig(cmd, []string{"https://example.com/a.png"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxSize != 512*1024 {
			t.Errorf("expected 524288, got %d", cfg.MaxSize)
		}
	})
}

// writeEmptyConfig writes an empty config file so tests do not pick up a
// file from the working or home directory.
func writeEmptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestCollectURLs tests URL gathering from arguments, --urls and --list.
func TestCollectURLs(t *testing.T) {
	t.Parallel()

	t.Run("arguments then urls then list", func(t *testing.T) {
		t.Parallel()

		listPath := filepath.Join(t.TempDir(), "urls.txt")
		if err := os.WriteFile(listPath, []byte("https://c.example/3.png\n\nhttps://c.example/4.png\n"), 0600); err != nil {
			t.Fatal(err)
		}

		cmd := NewFetchCmd()
		if err := cmd.ParseFlags([]string{"-u", "https://b.example/2.png, https://b.example/2b.png", "-l", listPath}); err != nil {
			t.Fatal(err)
		}

		got, err := collectURLs(cmd, []string{"https://a.example/1.png"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{
			"https://a.example/1.png",
			"https://b.example/2.png",
			"https://b.example/2b.png",
			"https://c.example/3.png",
			"https://c.example/4.png",
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("list from stdin", func(t *testing.T) {
		t.Parallel()

		cmd := NewFetchCmd()
		cmd.SetIn(strings.NewReader("https://a.example/1.png,https://a.example/2.png\n"))
		if err := cmd.ParseFlags([]string{"-l", "-"}); err != nil {
			t.Fatal(err)
		}

		got, err := collectURLs(cmd, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 URLs, got %v", got)
		}
	})

	t.Run("missing list file", func(t *testing.T) {
		t.Parallel()

		cmd := NewFetchCmd()
		if err := cmd.ParseFlags([]string{"-l", filepath.Join(t.TempDir(), "missing.txt")}); err != nil {
			t.Fatal(err)
		}

		if _, err := collectURLs(cmd, nil); err == nil {
			t.Error("expected error for missing list file")
		}
	})
}

// TestPromptURLs tests interactive URL entry.
func TestPromptURLs(t *testing.T) {
	t.Parallel()

	t.Run("stops at empty line", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		in := strings.NewReader("https://a.example/1.png, https://a.example/2.png\nhttps://a.example/3.png\n\nhttps://ignored.example/x.png\n")

		got, err := promptURLs(in, &out)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"https://a.example/1.png", "https://a.example/2.png", "https://a.example/3.png"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
		if !strings.Contains(out.String(), "Enter image URLs") {
			t.Errorf("expected prompt, got %q", out.String())
		}
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()

		got, err := promptURLs(strings.NewReader(""), &bytes.Buffer{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no URLs, got %v", got)
		}
	})
}

// TestFetchCommand runs the fetch command end to end against a local server.
func TestFetchCommand(t *testing.T) {
	t.Parallel()

	t.Run("saves once and reports duplicates", func(t *testing.T) {
		t.Parallel()

		server := newImageServer(t)
		outDir := filepath.Join(t.TempDir(), "images")

		stdout, err := executeFetch(t, "",
			"-c", writeEmptyConfig(t),
			"--no-history",
			"-d", outDir,
			server.URL+"/cat.png",
			server.URL+"/copy/cat.png",
			server.URL+"/page.html",
			server.URL+"/missing.png",
			"not a url",
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, want := range []string{"saved", "duplicate", "rejected", "failed"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("expected %q in output:\n%s", want, stdout)
			}
		}

		data, err := os.ReadFile(filepath.Join(outDir, "cat.png"))
		if err != nil {
			t.Fatalf("expected cat.png to be saved: %v", err)
		}
		if !strings.HasPrefix(string(data), "\x89PNG") {
			t.Error("expected saved bytes to match the response body")
		}
		if _, err := os.Stat(filepath.Join(outDir, "cat_1.png")); !os.IsNotExist(err) {
			t.Error("expected duplicate content not to be written again")
		}
	})

	t.Run("second run sees the first run's index", func(t *testing.T) {
		t.Parallel()

		server := newImageServer(t)
		outDir := t.TempDir()
		cfgPath := writeEmptyConfig(t)

		if _, err := executeFetch(t, "", "-c", cfgPath, "--no-history", "-d", outDir, server.URL+"/cat.png"); err != nil {
			t.Fatalf("first run: %v", err)
		}

		stdout, err := executeFetch(t, "", "-c", cfgPath, "--no-history", "-d", outDir, "-j", server.URL+"/copy/cat.png")
		if err != nil {
			t.Fatalf("second run: %v", err)
		}

		var got report.JSONReport
		if err := json.Unmarshal([]byte(stdout), &got); err != nil {
			t.Fatalf("invalid JSON output: %v\n%s", err, stdout)
		}
		if len(got.Outcomes) != 1 || got.Outcomes[0].Kind != model.OutcomeDuplicate {
			t.Errorf("expected one duplicate outcome, got %+v", got.Outcomes)
		}
		if got.Summary.Duplicate != 1 {
			t.Errorf("expected summary to count one duplicate, got %+v", got.Summary)
		}
	})

	t.Run("report file and history", func(t *testing.T) {
		t.Parallel()

		server := newImageServer(t)
		outDir := t.TempDir()
		dbDir := t.TempDir()
		reportPath := filepath.Join(t.TempDir(), "reports", "run.md")

		stdout, err := executeFetch(t, "",
			"-c", writeEmptyConfig(t),
			"--db-dir", dbDir,
			"-d", outDir,
			"-m", "-r", reportPath,
			server.URL+"/cat.png",
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(stdout, "report written to") {
			t.Errorf("expected summary line on stdout, got %q", stdout)
		}

		data, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("expected report file: %v", err)
		}
		if !strings.Contains(string(data), "# imgfetch Report") {
			t.Errorf("expected markdown report, got:\n%s", data)
		}

		var out bytes.Buffer
		cmd := NewRootCmd()
		cmd.SetArgs([]string{"history", "--db-dir", dbDir})
		cmd.SetOut(&out)
		if err := cmd.Execute(); err != nil {
			t.Fatalf("history: %v", err)
		}
		if !strings.Contains(out.String(), "complete") {
			t.Errorf("expected the run in history, got:\n%s", out.String())
		}
	})

	t.Run("urls from stdin prompt", func(t *testing.T) {
		t.Parallel()

		server := newImageServer(t)
		outDir := t.TempDir()

		stdout, err := executeFetch(t, server.URL+"/cat.png\n\n",
			"-c", writeEmptyConfig(t), "--no-history", "-d", outDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "saved") {
			t.Errorf("expected saved outcome, got:\n%s", stdout)
		}
	})

	t.Run("no urls", func(t *testing.T) {
		t.Parallel()

		_, err := executeFetch(t, "\n", "-c", writeEmptyConfig(t), "--no-history", "-d", t.TempDir())
		if !errors.Is(err, config.ErrNoURL) {
			t.Errorf("expected ErrNoURL, got %v", err)
		}
	})

	t.Run("conflicting report formats", func(t *testing.T) {
		t.Parallel()

		_, err := executeFetch(t, "", "-c", writeEmptyConfig(t), "-j", "-m", "https://example.com/a.png")
		if !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})

	t.Run("tor and proxy together", func(t *testing.T) {
		t.Parallel()

		_, err := executeFetch(t, "", "-c", writeEmptyConfig(t), "--tor", "-x", "socks5://127.0.0.1:9050", "https://example.com/a.png")
		if !errors.Is(err, config.ErrConflictingTransports) {
			t.Errorf("expected ErrConflictingTransports, got %v", err)
		}
	})

	t.Run("output dir is a file", func(t *testing.T) {
		t.Parallel()

		server := newImageServer(t)
		notADir := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(notADir, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}

		_, err := executeFetch(t, "", "-c", writeEmptyConfig(t), "--no-history", "-d", notADir, server.URL+"/cat.png")
		if !errors.Is(err, pipeline.ErrOutputDir) {
			t.Errorf("expected ErrOutputDir, got %v", err)
		}
	})
}
