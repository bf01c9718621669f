package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/allaspectsdev/aw-firewall/internal/config"
	"github.com/allaspectsdev/aw-firewall/internal/provider"
)

func TestManagementHealth_ReportsProviderEnablement(t *testing.T) {
	c := newTestCore(t)
	openai := provider.Config{ID: provider.OpenAI, Enabled: false, Port: config.PortOpenAI}
	anthropic := provider.Config{ID: provider.Anthropic, Credential: "sk-ant-fake", Enabled: true, Port: config.PortAnthropic}
	copilot := provider.Config{ID: provider.Copilot, Enabled: false, Port: config.PortCopilot}
	top := testTopology(map[provider.ID]provider.Config{
		provider.OpenAI:    openai,
		provider.Anthropic: anthropic,
		provider.Copilot:   copilot,
	})

	router := NewProviderRouter(c, top, openai)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Status         string          `json:"status"`
		Providers      map[string]bool `json:"providers"`
		MetricsSummary json.RawMessage `json:"metrics_summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}

	if body.Status != "healthy" {
		t.Fatalf("status = %q", body.Status)
	}
	if body.Providers["openai"] || body.Providers["copilot"] || !body.Providers["anthropic"] {
		t.Fatalf("providers = %+v, want only anthropic enabled", body.Providers)
	}
	if body.MetricsSummary == nil {
		t.Fatal("expected metrics_summary field")
	}
}

func TestManagementMetrics_JSONAndPrometheus(t *testing.T) {
	c := newTestCore(t)
	c.Registry.RecordRequest("anthropic", "POST", 200)

	openai := provider.Config{ID: provider.OpenAI, Enabled: true, Credential: "sk", Port: config.PortOpenAI}
	top := testTopology(map[provider.ID]provider.Config{provider.OpenAI: openai})
	router := NewProviderRouter(c, top, openai)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snapshot struct {
		Counters map[string]map[string]uint64 `json:"counters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatal(err)
	}
	if snapshot.Counters["requests_total"]["anthropic:POST:2xx"] != 1 {
		t.Fatalf("counters = %+v", snapshot.Counters)
	}

	reqProm := httptest.NewRequest(http.MethodGet, "/metrics?format=prometheus", nil)
	recProm := httptest.NewRecorder()
	router.ServeHTTP(recProm, reqProm)
	if recProm.Code != http.StatusOK {
		t.Fatalf("prometheus status = %d", recProm.Code)
	}
	if ct := recProm.Header().Get("Content-Type"); ct == "" {
		t.Fatal("expected a Content-Type header on the prometheus view")
	}
}
