package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rodmena-limited/supervice/internal/process"
)

type staticProvider []process.Status

func (s staticProvider) Status() []process.Status { return s }

func TestStatusEndpoint(t *testing.T) {
	pid := 7
	sp := staticProvider{{Name: "web", State: process.StateRunning, PID: &pid}}
	srv := httptest.NewServer(NewRouter(sp).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code %d", resp.StatusCode)
	}
	var body struct {
		Status    string           `json:"status"`
		Processes []process.Status `json:"processes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || len(body.Processes) != 1 || body.Processes[0].Name != "web" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewRouter(staticProvider{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code %d", resp.StatusCode)
	}
}
