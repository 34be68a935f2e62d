package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hitoshi/todogql/internal/auth"
)

// findMetric はレジストリから名前とラベルが一致するメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	if len(m.GetLabel()) != len(labels) {
		return false
	}
	for _, lp := range m.GetLabel() {
		if labels[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}

// TestNewCollector_InitializesOutcomeLabels は全ての結果ラベルが0で登録されることを検証する。
func TestNewCollector_InitializesOutcomeLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	for _, outcome := range auth.Outcomes() {
		m := findMetric(t, reg, "todogql_identity_resolutions_total", map[string]string{"outcome": string(outcome)})
		if v := m.GetCounter().GetValue(); v != 0 {
			t.Errorf("%s = %v, want 0", outcome, v)
		}
	}
}

// TestIdentityResolved_IncrementsOutcome は結果別カウンタとレイテンシが記録されることを検証する。
func TestIdentityResolved_IncrementsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.IdentityResolved(context.Background(), auth.OutcomeAuthenticated, 30*time.Millisecond, nil)
	c.IdentityResolved(context.Background(), auth.OutcomeAuthenticated, 10*time.Millisecond, nil)
	c.IdentityResolved(context.Background(), auth.OutcomeTokenInvalid, time.Millisecond, auth.ErrTokenInvalid)

	if v := findMetric(t, reg, "todogql_identity_resolutions_total", map[string]string{"outcome": "authenticated"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("authenticated = %v, want 2", v)
	}
	if v := findMetric(t, reg, "todogql_identity_resolutions_total", map[string]string{"outcome": "token_invalid"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("token_invalid = %v, want 1", v)
	}
	if n := findMetric(t, reg, "todogql_identity_resolution_seconds", nil).GetHistogram().GetSampleCount(); n != 3 {
		t.Errorf("sample count = %d, want 3", n)
	}
}

// TestKeySetFetched_RecordsResult はJWKS取得の成否が記録されることを検証する。
func TestKeySetFetched_RecordsResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.KeySetFetched(context.Background(), 50*time.Millisecond, nil)
	c.KeySetFetched(context.Background(), 50*time.Millisecond, errors.New("timeout"))

	if v := findMetric(t, reg, "todogql_jwks_fetch_total", map[string]string{"result": "success"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("success = %v, want 1", v)
	}
	if v := findMetric(t, reg, "todogql_jwks_fetch_total", map[string]string{"result": "error"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("error = %v, want 1", v)
	}
	if n := findMetric(t, reg, "todogql_jwks_fetch_latency_seconds", nil).GetHistogram().GetSampleCount(); n != 2 {
		t.Errorf("sample count = %d, want 2", n)
	}
}

// TestRecordHTTPStatus_LabelsByStatusCode はステータスコード別に記録されることを検証する。
func TestRecordHTTPStatus_LabelsByStatusCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(429)

	if v := findMetric(t, reg, "todogql_http_requests_total", map[string]string{"status_code": "200"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("200 = %v, want 2", v)
	}
	if v := findMetric(t, reg, "todogql_http_requests_total", map[string]string{"status_code": "429"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("429 = %v, want 1", v)
	}
}

// TestRecordGraphQLRequest_RecordsResultAndLatency はGraphQLリクエストの結果が記録されることを検証する。
func TestRecordGraphQLRequest_RecordsResultAndLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGraphQLRequest(5*time.Millisecond, false)
	c.RecordGraphQLRequest(5*time.Millisecond, true)
	c.RecordGraphQLRequest(5*time.Millisecond, true)

	if v := findMetric(t, reg, "todogql_graphql_requests_total", map[string]string{"result": "error"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("error = %v, want 2", v)
	}
	if n := findMetric(t, reg, "todogql_graphql_latency_seconds", nil).GetHistogram().GetSampleCount(); n != 3 {
		t.Errorf("sample count = %d, want 3", n)
	}
}

// TestCollector_AsObserver はauth.Observersに組み込めることを検証する。
func TestCollector_AsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	var obs auth.Observer = auth.Observers{auth.NopObserver{}, c}
	obs.IdentityResolved(context.Background(), auth.OutcomeNoToken, 0, nil)

	if v := findMetric(t, reg, "todogql_identity_resolutions_total", map[string]string{"outcome": "no_token"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("no_token = %v, want 1", v)
	}
}
