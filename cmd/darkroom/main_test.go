package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args []string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}

func newStubDaemon(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, []string{"config", "init", "--path", target})
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, []string{"config", "init", "--path", target}); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
}

func TestStatusCommandRendersDaemonState(t *testing.T) {
	srv := newStubDaemon(t, map[string]string{
		"/api/status":     `{"running":true,"pid":4242,"job_db_path":"/var/lib/darkroom/jobs.db","lock_file_path":"/var/lib/darkroom/darkroomd.lock","active_batches":2}`,
		"/api/jobs/stats": `{"by_status":{"pending":3,"processing":1},"by_lane":{"standard":4},"paused_lanes":[]}`,
	})

	out, err := runCLI(t, []string{"status", "--addr", srv.URL})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running:        true")
	requireContains(t, out, "Active batches: 2")
	requireContains(t, out, "pending")
}

func TestBatchListEmpty(t *testing.T) {
	srv := newStubDaemon(t, map[string]string{
		"/api/batches": `{"batches":[]}`,
	})

	out, err := runCLI(t, []string{"batch", "list", "--addr", srv.URL})
	if err != nil {
		t.Fatalf("batch list: %v", err)
	}
	requireContains(t, out, "No batches.")
}

func TestMutationFailureSurfacesReason(t *testing.T) {
	srv := newStubDaemon(t, map[string]string{
		"/api/lanes/bulk/pause": `{"ok":false,"reason":"lane already paused"}`,
	})

	_, err := runCLI(t, []string{"lane", "pause", "bulk", "--addr", srv.URL})
	if err == nil || !strings.Contains(err.Error(), "lane already paused") {
		t.Fatalf("expected lane-already-paused error, got %v", err)
	}
}

func TestDaemonErrorBodySurfaced(t *testing.T) {
	srv := newStubDaemon(t, map[string]string{})

	_, err := runCLI(t, []string{"batch", "show", "missing", "--addr", srv.URL})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
