package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "grafana", "querypilot_slo_dashboard.json")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dashboard file: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}

	title, _ := decoded["title"].(string)
	if strings.TrimSpace(title) == "" {
		t.Fatal("dashboard title is required")
	}
	panels, ok := decoded["panels"].([]any)
	if !ok || len(panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "querypilot_rules.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rules file: %v", err)
	}
	text := string(content)

	requiredAlerts := []string{
		"QueryPilotLLMLatencyP95High",
		"QueryPilotSQLRejectionsHigh",
		"QueryPilotCacheSnapshotStale",
		"QueryPilotCacheRefreshFailing",
		"QueryPilotPipelineFailuresHigh",
		"QueryPilotPersistFailuresDetected",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}

	requiredMetrics := []string{
		"querypilot_llm_call_duration_seconds",
		"querypilot_sql_rejections_total",
		"querypilot_cache_snapshot_age_seconds",
		"querypilot_cache_refresh_total",
		"querypilot_pipeline_failures_total",
		"querypilot_persist_failures_total",
	}
	for _, metricName := range requiredMetrics {
		matched, err := regexp.MatchString(regexp.QuoteMeta(metricName), text)
		if err != nil {
			t.Fatalf("regexp error for metric %q: %v", metricName, err)
		}
		if !matched {
			t.Fatalf("rules missing metric reference %q", metricName)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "prometheus-scrape.example.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read scrape example: %v", err)
	}
	text := string(content)

	if !strings.Contains(text, "metrics_path: /v1/metrics") {
		t.Fatal("scrape example missing metrics path")
	}
	if !strings.Contains(text, "querypilot_rules.yaml") {
		t.Fatal("scrape example missing rule file reference")
	}
	if !strings.Contains(text, "job_name: querypilot-api") {
		t.Fatal("scrape example missing querypilot-api job")
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
