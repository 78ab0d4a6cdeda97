package observability

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type alertFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Alert       string            `yaml:"alert"`
			Expr        string            `yaml:"expr"`
			For         string            `yaml:"for"`
			Labels      map[string]string `yaml:"labels"`
			Annotations map[string]string `yaml:"annotations"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

// Metric families exported by this package and internal/jobs.
var exportedMetrics = map[string]bool{
	"odyssey_http_requests_total":                  true,
	"odyssey_http_request_duration_seconds":        true,
	"odyssey_permission_mutations_total":           true,
	"odyssey_permission_mutation_changes":          true,
	"odyssey_shield_changes_total":                 true,
	"odyssey_jobs_total":                           true,
	"odyssey_jobs_failures_total":                  true,
	"odyssey_job_duration_seconds":                 true,
	"odyssey_permission_companies_refreshed_total": true,
	"odyssey_job_last_success_timestamp_seconds":   true,
}

var metricRef = regexp.MustCompile(`odyssey_[a-z_]+`)

func TestPermissionAlertRules(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "permissions.yml"))
	require.NoError(t, err)
	var file alertFile
	require.NoError(t, yaml.Unmarshal(raw, &file))
	require.Len(t, file.Groups, 1)
	require.Equal(t, "permissions", file.Groups[0].Name)

	severities := map[string]string{
		"PermissionSaveFailures": "critical",
		"HighErrorRate":          "critical",
		"RefreshJobFailing":      "warning",
		"CatalogWarmupStale":     "warning",
	}
	rules := file.Groups[0].Rules
	require.Len(t, rules, len(severities))

	for _, rule := range rules {
		want, ok := severities[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		assert.Equal(t, want, rule.Labels["severity"], rule.Alert)
		assert.NotEmpty(t, rule.For, rule.Alert)
		assert.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		assert.NotEmpty(t, rule.Annotations["description"], rule.Alert)
		assert.Regexp(t, `^docs/runbook-permissions\.md#[a-z-]+$`, rule.Annotations["runbook"], rule.Alert)

		refs := metricRef.FindAllString(rule.Expr, -1)
		require.NotEmpty(t, refs, "rule %s queries no odyssey metric", rule.Alert)
		for _, ref := range refs {
			assert.True(t, exportedMetrics[ref], "rule %s queries unknown metric %s", rule.Alert, ref)
		}
	}
}
