package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"traffic-anomaly-detector/internal/model"

	"github.com/sirupsen/logrus"
)

const defaultTelegramAPI = "https://api.telegram.org"

type TelegramNotifier struct {
	botToken        string
	chatID          string
	parseMode       string
	enabled         bool
	apiURL          string
	maxRetries      int
	retryDelay      time.Duration
	messageTemplate *template.Template
	client          *http.Client
	logger          *logrus.Logger
}

type TelegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type TelegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func NewTelegramNotifier(botToken, chatID, parseMode string, enabled bool, logger *logrus.Logger) *TelegramNotifier {
	return NewTelegramNotifierWithTemplate(botToken, chatID, parseMode, enabled, "", logger)
}

func NewTelegramNotifierWithTemplate(botToken, chatID, parseMode string, enabled bool, messageTemplate string, logger *logrus.Logger) *TelegramNotifier {
	tn := &TelegramNotifier{
		botToken:   botToken,
		chatID:     chatID,
		parseMode:  parseMode,
		enabled:    enabled,
		apiURL:     defaultTelegramAPI,
		maxRetries: 3,
		retryDelay: time.Second,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}

	if strings.TrimSpace(messageTemplate) != "" {
		funcMap := template.FuncMap{
			"formatTime": func(t time.Time, layout string) string {
				return t.Format(layout)
			},
			"join": strings.Join,
		}
		tmpl, err := template.New("telegram_message").Funcs(funcMap).Parse(messageTemplate)
		if err != nil {
			logger.Warnf("Failed to parse Telegram message template: %v, using default format", err)
		} else {
			tn.messageTemplate = tmpl
		}
	}

	return tn
}

// WithAPIURL points the notifier at another Bot API host
func (tn *TelegramNotifier) WithAPIURL(url string) *TelegramNotifier {
	tn.apiURL = strings.TrimRight(url, "/")
	return tn
}

// WithRetry sets the attempt count and the base delay between attempts
func (tn *TelegramNotifier) WithRetry(attempts int, delay time.Duration) *TelegramNotifier {
	if attempts < 1 {
		attempts = 1
	}
	tn.maxRetries = attempts
	tn.retryDelay = delay
	return tn
}

func (tn *TelegramNotifier) SendAlert(ctx context.Context, alert model.Alert) error {
	if !tn.enabled {
		tn.logger.Debug("Telegram notifier is disabled, skipping alert")
		return nil
	}

	message := tn.formatAlertMessage(alert)

	var lastErr error
	for i := 0; i < tn.maxRetries; i++ {
		lastErr = tn.sendMessage(ctx, message)
		if lastErr == nil {
			return nil
		}

		tn.logger.Warnf("Failed to send alert (attempt %d/%d): %v", i+1, tn.maxRetries, lastErr)

		if i < tn.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * tn.retryDelay):
			}
		}
	}

	return fmt.Errorf("failed to send alert after %d attempts: %w", tn.maxRetries, lastErr)
}

func (tn *TelegramNotifier) formatAlertMessage(alert model.Alert) string {
	if tn.messageTemplate != nil {
		var buf bytes.Buffer
		err := tn.messageTemplate.Execute(&buf, alert)
		if err != nil {
			tn.logger.Warnf("Failed to execute message template: %v, using default format", err)
		} else {
			return buf.String()
		}
	}

	return fmt.Sprintf("ALERT FIRING: Traffic Anomaly\n\n"+
		"alert_name: %s\n"+
		"time: %s\n"+
		"severity: %s\n"+
		"source: %s\n"+
		"anomalous: %d/%d\n"+
		"description: %s",
		alert.Type,
		alert.Timestamp.Format("2006-01-02 15:04:05"),
		alert.Severity,
		alert.Source,
		alert.Summary.Anomalous,
		alert.Summary.Total,
		alert.Message)
}

func (tn *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", tn.apiURL, tn.botToken)

	// Markdown modes reject unescaped identifiers, so only HTML is passed through
	parseMode := ""
	if tn.parseMode != "" && tn.parseMode != "Markdown" && tn.parseMode != "MarkdownV2" {
		parseMode = tn.parseMode
	}

	message := TelegramMessage{
		ChatID:    tn.chatID,
		Text:      text,
		ParseMode: parseMode,
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := tn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var telegramResp TelegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&telegramResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !telegramResp.OK {
		return fmt.Errorf("telegram API error: %s", telegramResp.Description)
	}

	tn.logger.Infof("Alert sent to Telegram successfully")
	return nil
}

func (tn *TelegramNotifier) SendTestMessage(ctx context.Context) error {
	if !tn.enabled {
		return fmt.Errorf("telegram notifier is disabled")
	}

	return tn.sendMessage(ctx, "Test Message\n\nTraffic analyzer is working correctly!")
}

func (tn *TelegramNotifier) IsEnabled() bool {
	return tn.enabled
}
