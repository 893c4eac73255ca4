package deployments

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := readAsset(t, "observability", "prometheus", "prometheus-scrape.example.yaml")
	assertContainsAll(t, text, []string{
		"metrics_path: /metrics",
		"askdb_rules.yaml",
		"job_name: askdb",
	})
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	text := readAsset(t, "observability", "prometheus", "askdb_rules.yaml")

	for _, alertName := range []string{
		"AskdbProviderErrorRateHigh",
		"AskdbExtractionFailuresHigh",
		"AskdbIntentsExhausted",
	} {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Errorf("rules missing alert %q", alertName)
		}
	}

	assertContainsAll(t, text, []string{
		"askdb_provider_request_seconds_count",
		"askdb_extraction_failures_total",
		"askdb_intents_total",
	})
}

func TestComposeStackCarriesObjectStoreDefaults(t *testing.T) {
	text := readAsset(t, "docker-compose.yml")
	assertContainsAll(t, text, []string{
		"MINIO_ROOT_USER: minio",
		"MINIO_ROOT_PASSWORD: miniostorage",
		"local/askdb",
		"postgres:",
	})
}

// readAsset loads a file under deployments/ relative to this test file, so
// the assertions hold no matter where go test is invoked from.
func readAsset(t *testing.T, parts ...string) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	path := filepath.Join(append([]string{filepath.Dir(thisFile)}, parts...)...)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", filepath.Base(path), err)
	}
	return string(content)
}

func assertContainsAll(t *testing.T, text string, tokens []string) {
	t.Helper()
	for _, token := range tokens {
		if !strings.Contains(text, token) {
			t.Errorf("missing %q", token)
		}
	}
}
