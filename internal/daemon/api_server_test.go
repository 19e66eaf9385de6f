package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"darkroom/internal/api"
	"darkroom/internal/daemon"
	"darkroom/internal/testsupport"
)

const testToken = "test-token"

func startAPIDaemon(t *testing.T, unitIDs ...string) *daemon.Daemon {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken(testToken))
	d, _ := newTestDaemon(t, cfg, unitIDs...)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func doRequest(t *testing.T, d *daemon.Daemon, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		payload = bytes.NewBuffer(data)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, fmt.Sprintf("http://%s%s", d.APIAddr(), path), payload)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, buf.Bytes()
}

func decodeInto(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode response %s: %v", data, err)
	}
}

func TestAPIRejectsMissingToken(t *testing.T) {
	d := startAPIDaemon(t)

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("http://%s/api/status", d.APIAddr()), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAPIStatus(t *testing.T) {
	d := startAPIDaemon(t)

	resp, body := doRequest(t, d, http.MethodGet, "/api/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var status api.DaemonStatus
	decodeInto(t, body, &status)
	if !status.Running || status.PID == 0 || status.JobDBPath == "" {
		t.Fatalf("unexpected status payload: %+v", status)
	}
}

func TestAPIBatchLifecycle(t *testing.T) {
	d := startAPIDaemon(t)

	resp, body := doRequest(t, d, http.MethodPost, "/api/batches", api.StartBatchRequest{
		UnitIDs: []string{"photo-1", "photo-2"},
		GroupID: "wedding-42",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d, body %s", resp.StatusCode, body)
	}
	var created api.BatchView
	decodeInto(t, body, &created)
	if created.Status != "running" || created.TotalUnits != 2 {
		t.Fatalf("unexpected batch: %+v", created)
	}

	base := "/api/batches/" + created.BatchID
	for _, unit := range []string{"photo-1", "photo-2"} {
		resp, body = doRequest(t, d, http.MethodPost, base+"/progress", api.ProgressRequest{UnitID: unit, Success: true})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("progress status = %d, body %s", resp.StatusCode, body)
		}
	}

	resp, body = doRequest(t, d, http.MethodGet, base, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var final api.BatchView
	decodeInto(t, body, &final)
	if final.Status != "completed" || final.ProcessedCount != 2 {
		t.Fatalf("batch did not auto-complete: %+v", final)
	}
	if final.CompletedAt == "" {
		t.Fatal("completed timestamp missing")
	}

	// Terminal now: pause reports a clean false, not an error.
	resp, body = doRequest(t, d, http.MethodPost, base+"/pause", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status = %d", resp.StatusCode)
	}
	var mutation api.MutationResponse
	decodeInto(t, body, &mutation)
	if mutation.OK {
		t.Fatal("pause of completed batch should report ok=false")
	}
}

func TestAPIBatchRecover(t *testing.T) {
	d := startAPIDaemon(t)

	resp, body := doRequest(t, d, http.MethodPost, "/api/batches/recover", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recover status = %d", resp.StatusCode)
	}
	var recovery api.RecoveryResponse
	decodeInto(t, body, &recovery)
	if recovery.Recovered != 0 || recovery.Failed != 0 {
		t.Fatalf("fresh daemon recovery = %+v, want zeros", recovery)
	}
}

func TestAPIBatchUnknownID(t *testing.T) {
	d := startAPIDaemon(t)

	resp, _ := doRequest(t, d, http.MethodGet, "/api/batches/no-such-batch", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIJobSubmitAndStats(t *testing.T) {
	d := startAPIDaemon(t, "photo-1")

	resp, body := doRequest(t, d, http.MethodPost, "/api/jobs", api.SubmitJobRequest{UnitID: "photo-1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d, body %s", resp.StatusCode, body)
	}
	var created map[string]string
	decodeInto(t, body, &created)
	jobID := created["job_id"]
	if jobID == "" {
		t.Fatal("no job id returned")
	}

	resp, body = doRequest(t, d, http.MethodGet, "/api/jobs/"+jobID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get job status = %d", resp.StatusCode)
	}
	var job api.JobView
	decodeInto(t, body, &job)
	if job.UnitID != "photo-1" || job.Status != "pending" {
		t.Fatalf("unexpected job: %+v", job)
	}

	resp, body = doRequest(t, d, http.MethodGet, "/api/jobs/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	var stats struct {
		ByStatus   map[string]int `json:"by_status"`
		ByPriority map[int]int    `json:"by_priority"`
	}
	decodeInto(t, body, &stats)
	if stats.ByStatus["pending"] != 1 {
		t.Fatalf("stats = %+v, want one pending job", stats)
	}
	if stats.ByPriority[job.Priority] != 1 {
		t.Fatalf("by_priority = %v, want one job at priority %d", stats.ByPriority, job.Priority)
	}
}

func TestAPIJobSubmitUnknownUnit(t *testing.T) {
	d := startAPIDaemon(t)

	resp, _ := doRequest(t, d, http.MethodPost, "/api/jobs", api.SubmitJobRequest{UnitID: "ghost"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAPILaneValves(t *testing.T) {
	d := startAPIDaemon(t)

	resp, body := doRequest(t, d, http.MethodPost, "/api/lanes/rush/pause", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status = %d", resp.StatusCode)
	}
	var mutation api.MutationResponse
	decodeInto(t, body, &mutation)
	if !mutation.OK {
		t.Fatal("pause of open lane should succeed")
	}

	resp, body = doRequest(t, d, http.MethodPost, "/api/lanes/rush/resume", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status = %d", resp.StatusCode)
	}
	decodeInto(t, body, &mutation)
	if !mutation.OK {
		t.Fatal("resume of paused lane should succeed")
	}

	resp, _ = doRequest(t, d, http.MethodPost, "/api/lanes/express/pause", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown lane status = %d, want 400", resp.StatusCode)
	}
}

func TestAPIPriorityWeights(t *testing.T) {
	d := startAPIDaemon(t)

	resp, _ := doRequest(t, d, http.MethodPut, "/api/priority/weights", api.UpdateWeightsRequest{
		Quality: 0.5, Age: 0.2, UserRequest: 0.2, Context: 0.1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("weights status = %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, d, http.MethodPut, "/api/priority/weights", api.UpdateWeightsRequest{
		Quality: -0.5, Age: 0.2, UserRequest: 0.2, Context: 0.1,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid weights status = %d, want 400", resp.StatusCode)
	}
}

func TestAPIResources(t *testing.T) {
	d := startAPIDaemon(t)

	resp, body := doRequest(t, d, http.MethodGet, "/api/resources", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resources status = %d", resp.StatusCode)
	}
	var status struct {
		State string `json:"state"`
	}
	decodeInto(t, body, &status)
	if status.State == "" {
		t.Fatal("resource state missing")
	}

	resp, _ = doRequest(t, d, http.MethodGet, "/api/resources/cpu", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cpu status = %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, d, http.MethodPut, "/api/resources/thresholds", api.ThresholdsRequest{
		CPUCritical: 99, MemoryCritical: 99, GPUTempCritical: 90,
		CPUBusy: 90, MemoryBusy: 90, GPUTempBusy: 80, GPULoadBusy: 90,
		CPUIdle: 10, MemoryIdle: 30, GPULoadIdle: 10,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("thresholds status = %d", resp.StatusCode)
	}
}
