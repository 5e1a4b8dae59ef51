// Package notify 将成交、撤单与启停事件以可读文本推送到外部渠道。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"crypto-trading-bot/internal/service"

	"go.uber.org/zap"
)

// Sink 通知渠道
type Sink interface {
	Send(ctx context.Context, message string) error
}

// New 日志渠道总是启用，配置了 Webhook 时追加 Slack
func New(cfg service.NotificationConfig, logger *zap.Logger) Sink {
	sinks := Multi{NewLogSink(logger)}
	if cfg.SlackWebhookURL != "" {
		sinks = append(sinks, NewSlackSink(cfg.SlackWebhookURL, cfg.Username))
	}
	return sinks
}

// SlackSink 通过 Incoming Webhook 发送到 Slack
type SlackSink struct {
	webhookURL string
	username   string
	hc         *http.Client
}

func NewSlackSink(webhookURL, username string) *SlackSink {
	return &SlackSink{
		webhookURL: webhookURL,
		username:   username,
		hc:         &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
}

func (s *SlackSink) Send(ctx context.Context, message string) error {
	data, err := json.Marshal(slackPayload{Text: message, Username: s.username})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack returned status: %d", resp.StatusCode)
	}
	return nil
}

// LogSink 写入日志
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, message string) error {
	s.logger.Info("Notification", zap.String("message", message))
	return nil
}

// Multi 依次发送到所有渠道，单个渠道失败不影响其他渠道
type Multi []Sink

func (m Multi) Send(ctx context.Context, message string) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
