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

// findMetricFamily は指定名のメトリクスファミリーを返す。見つからない場合はnil。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// labelValue はメトリクスから指定ラベルの値を返す。
func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordRelationOp_CountsByOpAndOutcome は操作・結果ラベル別に加算されることを検証する。
func TestRecordRelationOp_CountsByOpAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRelationOp("follow", OutcomeOK)
	c.RecordRelationOp("follow", OutcomeOK)
	c.RecordRelationOp("follow", "ALREADY_FOLLOWING")

	mf := findMetricFamily(t, reg, "campusconnect_relation_ops_total")
	if mf == nil {
		t.Fatal("campusconnect_relation_ops_total metric not found")
	}

	counts := map[string]float64{}
	for _, m := range mf.GetMetric() {
		if labelValue(m, "op") != "follow" {
			t.Errorf("unexpected op label %q", labelValue(m, "op"))
		}
		counts[labelValue(m, "outcome")] = m.GetCounter().GetValue()
	}
	if counts[OutcomeOK] != 2 {
		t.Errorf("ok count = %v, want 2", counts[OutcomeOK])
	}
	if counts["ALREADY_FOLLOWING"] != 1 {
		t.Errorf("ALREADY_FOLLOWING count = %v, want 1", counts["ALREADY_FOLLOWING"])
	}
}

// TestRecordMessage_LabelsDelivery は即時配信の有無がラベルになることを検証する。
func TestRecordMessage_LabelsDelivery(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMessage(true)
	c.RecordMessage(false)
	c.RecordMessage(false)

	mf := findMetricFamily(t, reg, "campusconnect_messages_total")
	if mf == nil {
		t.Fatal("campusconnect_messages_total metric not found")
	}
	for _, m := range mf.GetMetric() {
		want := 1.0
		if labelValue(m, "delivered") == "false" {
			want = 2
		}
		if got := m.GetCounter().GetValue(); got != want {
			t.Errorf("delivered=%s count = %v, want %v", labelValue(m, "delivered"), got, want)
		}
	}
}

// TestSetOnlineConnections_SetsGauge はゲージが上書きされることを検証する。
func TestSetOnlineConnections_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetOnlineConnections(5)
	c.SetOnlineConnections(3)

	mf := findMetricFamily(t, reg, "campusconnect_online_connections")
	if mf == nil {
		t.Fatal("campusconnect_online_connections metric not found")
	}
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 3 {
		t.Errorf("online_connections = %v, want 3", got)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はステータスコードラベル付きで加算されることを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(409)

	mf := findMetricFamily(t, reg, "campusconnect_http_status_total")
	if mf == nil {
		t.Fatal("campusconnect_http_status_total metric not found")
	}
	for _, m := range mf.GetMetric() {
		code := labelValue(m, "status_code")
		val := m.GetCounter().GetValue()
		switch code {
		case "200":
			if val != 2 {
				t.Errorf("status 200 count = %v, want 2", val)
			}
		case "409":
			if val != 1 {
				t.Errorf("status 409 count = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected status code label: %s", code)
		}
	}
}

// TestRecordRequestLatency_ObservesHistogram はヒストグラムに観測値が記録されることを検証する。
func TestRecordRequestLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestLatency(150 * time.Millisecond)

	mf := findMetricFamily(t, reg, "campusconnect_request_latency_seconds")
	if mf == nil {
		t.Fatal("campusconnect_request_latency_seconds metric not found")
	}
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() < 0.14 || h.GetSampleSum() > 0.16 {
		t.Errorf("sample sum = %v, want ~0.15", h.GetSampleSum())
	}
}

// TestRecordResetTokensPurged_AddsCount は削除件数が加算されることを検証する。
func TestRecordResetTokensPurged_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordResetTokensPurged(4)

	mf := findMetricFamily(t, reg, "campusconnect_reset_tokens_purged_total")
	if mf == nil {
		t.Fatal("campusconnect_reset_tokens_purged_total metric not found")
	}
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 4 {
		t.Errorf("reset_tokens_purged_total = %v, want 4", got)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat はHandlerがPrometheus形式で出力することを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRelationOp("block", OutcomeOK)
	c.RecordAIChat(OutcomeOK)
	c.RecordHTTPStatus(201)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Body)

	for _, name := range []string{
		"campusconnect_relation_ops_total",
		"campusconnect_ai_chat_total",
		"campusconnect_http_status_total",
		"campusconnect_online_connections",
		"campusconnect_request_latency_seconds",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("response should contain %s", name)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries はレジストリごとに独立して集計されることを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	_ = NewCollector(reg2)

	c1.RecordResetTokensPurged(1)

	if got := findMetricFamily(t, reg1, "campusconnect_reset_tokens_purged_total").GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("reg1 value = %v, want 1", got)
	}
	if got := findMetricFamily(t, reg2, "campusconnect_reset_tokens_purged_total").GetMetric()[0].GetCounter().GetValue(); got != 0 {
		t.Errorf("reg2 value = %v, want 0", got)
	}
}

// TestNop_DoesNotPanic はNopが全メソッドで何もしないことを検証する。
func TestNop_DoesNotPanic(t *testing.T) {
	var c MetricsCollector = Nop{}
	c.RecordRelationOp("follow", OutcomeOK)
	c.RecordMessage(true)
	c.SetOnlineConnections(1)
	c.RecordHTTPStatus(200)
	c.RecordRequestLatency(time.Second)
	c.RecordAIChat(OutcomeError)
	c.RecordResetTokensPurged(1)
}
