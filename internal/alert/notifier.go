package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"traffic-anomaly-detector/internal/model"
	"traffic-anomaly-detector/internal/pipeline"

	"github.com/sirupsen/logrus"
)

// AlertTypeCaptureAnomaly is raised when a run labels at least one capture anomalous
const AlertTypeCaptureAnomaly = "capture_anomaly"

// maxListedIDs bounds the identifiers quoted in an alert message
const maxListedIDs = 10

// Notifier interface for alert notification
type Notifier interface {
	SendAlert(ctx context.Context, alert model.Alert) error
}

// BuildRunAlert describes result as an alert. It reports false when nothing was labeled anomalous.
func BuildRunAlert(result *pipeline.RunResult, severity string) (model.Alert, bool) {
	ids := pipeline.AnomalousIDs(result.Records)
	if len(ids) == 0 {
		return model.Alert{}, false
	}

	listed := ids
	if len(listed) > maxListedIDs {
		listed = listed[:maxListedIDs]
	}
	message := fmt.Sprintf("%d of %d captures labeled anomalous: %s",
		len(ids), result.Summary.Total, strings.Join(listed, ", "))
	if len(ids) > len(listed) {
		message += fmt.Sprintf(" (+%d more)", len(ids)-len(listed))
	}

	return model.Alert{
		Type:         AlertTypeCaptureAnomaly,
		Severity:     severity,
		Source:       result.Source,
		Message:      message,
		Timestamp:    result.Started.Add(result.Duration),
		AnomalousIDs: ids,
		Summary:      result.Summary,
	}, true
}

// Dispatcher fans run alerts out to every configured notifier
type Dispatcher struct {
	notifiers []Notifier
	severity  string
	logger    *logrus.Logger
}

// NewDispatcher creates a dispatcher raising alerts at severity
func NewDispatcher(severity string, logger *logrus.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		severity:  severity,
		logger:    logger,
	}
}

// Dispatch sends the alert for result, if any, and returns how many notifiers accepted it
func (d *Dispatcher) Dispatch(ctx context.Context, result *pipeline.RunResult) int {
	alert, ok := BuildRunAlert(result, d.severity)
	if !ok {
		return 0
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	sent := 0
	for _, n := range d.notifiers {
		if err := n.SendAlert(ctx, alert); err != nil {
			d.logger.Errorf("Failed to send %s alert: %v", alert.Type, err)
			continue
		}
		sent++
	}
	return sent
}

// Hook returns a pipeline hook that dispatches after every run
func (d *Dispatcher) Hook() pipeline.RunHook {
	return func(ctx context.Context, result *pipeline.RunResult) {
		d.Dispatch(ctx, result)
	}
}
