package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"traffic-anomaly-detector/internal/model"
	"traffic-anomaly-detector/internal/pipeline"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func runResult(labels ...int) *pipeline.RunResult {
	records := make([]model.AnomalyRecord, len(labels))
	for i, l := range labels {
		records[i] = model.AnomalyRecord{ID: fmt.Sprintf("c%d.pcap", i), Score: 0.5, Label: l}
	}
	return &pipeline.RunResult{
		Source:   "dir:/captures",
		Records:  records,
		Summary:  pipeline.Summarize(records),
		Started:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Duration: time.Second,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []model.Alert
	err    error
}

func (r *recordingNotifier) SendAlert(ctx context.Context, alert model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.alerts = append(r.alerts, alert)
	return nil
}

func TestBuildRunAlert(t *testing.T) {
	alert, ok := BuildRunAlert(runResult(0, 1, 0, 1), "HIGH")
	require.True(t, ok)

	assert.Equal(t, AlertTypeCaptureAnomaly, alert.Type)
	assert.Equal(t, "HIGH", alert.Severity)
	assert.Equal(t, "dir:/captures", alert.Source)
	assert.Equal(t, []string{"c1.pcap", "c3.pcap"}, alert.AnomalousIDs)
	assert.Equal(t, "2 of 4 captures labeled anomalous: c1.pcap, c3.pcap", alert.Message)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC), alert.Timestamp)
}

func TestBuildRunAlertNothingAnomalous(t *testing.T) {
	_, ok := BuildRunAlert(runResult(0, 0, 0), "HIGH")
	assert.False(t, ok)
}

func TestBuildRunAlertTruncatesList(t *testing.T) {
	labels := make([]int, 12)
	for i := range labels {
		labels[i] = model.LabelAnomalous
	}
	alert, ok := BuildRunAlert(runResult(labels...), "LOW")
	require.True(t, ok)
	assert.Len(t, alert.AnomalousIDs, 12)
	assert.True(t, strings.HasSuffix(alert.Message, "(+2 more)"))
}

func TestDispatcherHook(t *testing.T) {
	good := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("unreachable")}
	d := NewDispatcher("MEDIUM", quietLogger(), bad, good)

	d.Hook()(context.Background(), runResult(1, 0))
	require.Len(t, good.alerts, 1)
	assert.Equal(t, "MEDIUM", good.alerts[0].Severity)

	assert.Equal(t, 0, d.Dispatch(context.Background(), runResult(0, 0)))
	assert.Len(t, good.alerts, 1)
}

func TestLogAlertNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	alert, _ := BuildRunAlert(runResult(1), "HIGH")
	require.NoError(t, NewLogAlertNotifier(logger).SendAlert(context.Background(), alert))
	assert.Contains(t, buf.String(), "ALERT [HIGH] capture_anomaly")
	assert.Contains(t, buf.String(), "level=warning")
}

func telegramServer(t *testing.T, failures int) (*httptest.Server, *[]TelegramMessage) {
	t.Helper()
	var mu sync.Mutex
	var got []TelegramMessage
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "/bottoken123/sendMessage", r.URL.Path)
		calls++
		if calls <= failures {
			_, _ = io.WriteString(w, `{"ok":false,"description":"Too Many Requests"}`)
			return
		}
		var msg TelegramMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		got = append(got, msg)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestTelegramNotifierSendsDefaultFormat(t *testing.T) {
	srv, got := telegramServer(t, 1)
	tn := NewTelegramNotifier("token123", "42", "HTML", true, quietLogger()).
		WithAPIURL(srv.URL).
		WithRetry(3, 0)

	alert, _ := BuildRunAlert(runResult(1, 0), "HIGH")
	require.NoError(t, tn.SendAlert(context.Background(), alert))

	require.Len(t, *got, 1)
	msg := (*got)[0]
	assert.Equal(t, "42", msg.ChatID)
	assert.Equal(t, "HTML", msg.ParseMode)
	assert.Contains(t, msg.Text, "alert_name: capture_anomaly")
	assert.Contains(t, msg.Text, "anomalous: 1/2")
	assert.Contains(t, msg.Text, "time: 2024-05-01 12:00:01")
}

func TestTelegramNotifierTemplateAndMarkdownMode(t *testing.T) {
	srv, got := telegramServer(t, 0)
	tn := NewTelegramNotifierWithTemplate("token123", "42", "MarkdownV2", true,
		`{{.Severity}} {{join .AnomalousIDs ","}} at {{formatTime .Timestamp "15:04"}}`, quietLogger()).
		WithAPIURL(srv.URL + "/")

	alert, _ := BuildRunAlert(runResult(1, 1), "LOW")
	require.NoError(t, tn.SendAlert(context.Background(), alert))

	require.Len(t, *got, 1)
	assert.Equal(t, "LOW c0.pcap,c1.pcap at 12:00", (*got)[0].Text)
	assert.Empty(t, (*got)[0].ParseMode)
}

func TestTelegramNotifierGivesUp(t *testing.T) {
	srv, got := telegramServer(t, 10)
	tn := NewTelegramNotifier("token123", "42", "", true, quietLogger()).
		WithAPIURL(srv.URL).
		WithRetry(2, 0)

	alert, _ := BuildRunAlert(runResult(1), "HIGH")
	err := tn.SendAlert(context.Background(), alert)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "Too Many Requests")
	assert.Empty(t, *got)
}

func TestTelegramNotifierDisabled(t *testing.T) {
	tn := NewTelegramNotifier("token123", "42", "", false, quietLogger()).WithAPIURL("http://127.0.0.1:9")
	alert, _ := BuildRunAlert(runResult(1), "HIGH")

	assert.NoError(t, tn.SendAlert(context.Background(), alert))
	assert.False(t, tn.IsEnabled())
	assert.Error(t, tn.SendTestMessage(context.Background()))
}

func testGatherer(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "traffic_analyzer_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)
	return reg
}

func TestMetricsHandler(t *testing.T) {
	srv := httptest.NewServer(MetricsHandler(testGatherer(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "traffic_analyzer_test_total 3")

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPrometheusExporterServesUntilCancelled(t *testing.T) {
	exporter := NewPrometheusExporter("0", testGatherer(t), quietLogger())
	assert.Empty(t, exporter.Addr())
	require.NoError(t, exporter.Listen())
	require.NotEmpty(t, exporter.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- exporter.Serve(ctx) }()

	_, port, err := net.SplitHostPort(exporter.Addr())
	require.NoError(t, err)
	resp, err := http.Get("http://127.0.0.1:" + port + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "traffic_analyzer_test_total 3")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("exporter did not shut down")
	}
}

func TestPrometheusExporterServeRequiresListen(t *testing.T) {
	exporter := NewPrometheusExporter("0", testGatherer(t), quietLogger())
	assert.Error(t, exporter.Serve(context.Background()))
}

func TestPushMetrics(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, PushMetrics(context.Background(), srv.URL, "traffic-analyzer", testGatherer(t)))
	assert.Equal(t, "/metrics/job/traffic-analyzer", path)
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traffic.prom")
	require.NoError(t, WriteTextfile(path, testGatherer(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "traffic_analyzer_test_total 3")
}
