package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定した名前とラベルに一致するメトリクスを返す。
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

// TestRecordWebhookEvent_IncrementsCounterWithLabels はイベント種別・結果別にカウントされることを検証する。
func TestRecordWebhookEvent_IncrementsCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWebhookEvent("user.created", "processed")
	c.RecordWebhookEvent("user.created", "processed")
	c.RecordWebhookEvent("user.deleted", "failed")

	m := findMetric(t, reg, "storefront_webhook_events_total", map[string]string{"event_type": "user.created", "outcome": "processed"})
	if m == nil {
		t.Fatal("storefront_webhook_events_total{user.created,processed} not found")
	}
	if val := m.GetCounter().GetValue(); val != 2 {
		t.Errorf("webhook_events_total = %v, want 2", val)
	}

	m = findMetric(t, reg, "storefront_webhook_events_total", map[string]string{"event_type": "user.deleted", "outcome": "failed"})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("storefront_webhook_events_total{user.deleted,failed} should be 1")
	}
}

// TestRecordWebhookEvent_EmptyTypeIsUnknown は検証前の失敗がunknownとして記録されることを検証する。
func TestRecordWebhookEvent_EmptyTypeIsUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWebhookEvent("", "rejected")

	m := findMetric(t, reg, "storefront_webhook_events_total", map[string]string{"event_type": "unknown", "outcome": "rejected"})
	if m == nil {
		t.Fatal("expected event_type=unknown label")
	}
}

// TestRecordUserSync_IncrementsCounterWithLabels は同期結果が起点・結果別に記録されることを検証する。
func TestRecordUserSync_IncrementsCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUserSync("webhook", "created")
	c.RecordUserSync("session", "updated")
	c.RecordUserSync("session", "updated")

	m := findMetric(t, reg, "storefront_user_sync_total", map[string]string{"source": "session", "action": "updated"})
	if m == nil {
		t.Fatal("storefront_user_sync_total{session,updated} not found")
	}
	if val := m.GetCounter().GetValue(); val != 2 {
		t.Errorf("user_sync_total = %v, want 2", val)
	}
}

// TestObserveSyncDuration_ObservesHistogram は同期時間のヒストグラムに値が記録されることを検証する。
func TestObserveSyncDuration_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveSyncDuration("webhook", 100*time.Millisecond)
	c.ObserveSyncDuration("webhook", 2*time.Second)

	m := findMetric(t, reg, "storefront_sync_duration_seconds", map[string]string{"source": "webhook"})
	if m == nil {
		t.Fatal("storefront_sync_duration_seconds not found")
	}
	h := m.GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 = 2.1秒
	if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
	}
}

// TestRecordSessionSyncFailure_IncrementsCounter はセッション同期失敗が記録されることを検証する。
func TestRecordSessionSyncFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionSyncFailure("sync")
	c.RecordSessionSyncFailure("lookup")
	c.RecordSessionSyncFailure("sync")

	m := findMetric(t, reg, "storefront_session_sync_failures_total", map[string]string{"operation": "sync"})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Error("session_sync_failures_total{sync} should be 2")
	}
}

func TestHandler_ServesTextExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWebhookEvent("user.deleted", "processed")
	c.RecordUserSync("session", "updated")
	c.ObserveSyncDuration("session", 20*time.Millisecond)
	c.RecordSessionSyncFailure("lookup")

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain exposition", ct)
	}

	body, _ := io.ReadAll(w.Body)
	for _, line := range []string{
		`storefront_webhook_events_total{event_type="user.deleted",outcome="processed"} 1`,
		`storefront_user_sync_total{action="updated",source="session"} 1`,
		`storefront_sync_duration_seconds_count{source="session"} 1`,
		`storefront_session_sync_failures_total{operation="lookup"} 1`,
	} {
		if !strings.Contains(string(body), line) {
			t.Errorf("exposition missing %q", line)
		}
	}
}

func TestCollector_RegistriesAreIsolated(t *testing.T) {
	regA, regB := prometheus.NewRegistry(), prometheus.NewRegistry()
	a, b := NewCollector(regA), NewCollector(regB)

	a.RecordUserSync("webhook", "deleted")
	b.RecordUserSync("webhook", "deleted")
	b.RecordUserSync("webhook", "deleted")

	labels := map[string]string{"source": "webhook", "action": "deleted"}
	if v := findMetric(t, regA, "storefront_user_sync_total", labels).GetCounter().GetValue(); v != 1 {
		t.Errorf("registry A count = %v, want 1", v)
	}
	if v := findMetric(t, regB, "storefront_user_sync_total", labels).GetCounter().GetValue(); v != 2 {
		t.Errorf("registry B count = %v, want 2", v)
	}
}
