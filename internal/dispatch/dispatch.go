// internal/dispatch/dispatch.go

// Package dispatch delivers alert intents to the configured webhook sink.
// Delivery is at-most-once and best-effort: failures are returned to the
// caller for logging and then dropped, never retried.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/poolwatch/internal/policy"
)

// Payload formats.
const (
	FormatSlack = "slack"
	FormatJSON  = "json"
)

// Attachment colors, matching the sink's severity conventions.
const (
	colorFailover  = "#FFA500"
	colorErrorRate = "#FF0000"
)

// DeliveryError reports a failed webhook delivery: timeout, connection
// failure, or a non-2xx response.
type DeliveryError struct {
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatch: delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("dispatch: webhook returned status %d", e.StatusCode)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Config configures the dispatcher.
type Config struct {
	WebhookURL string
	Timeout    time.Duration
	Format     string
}

// Validate checks configuration.
func (c *Config) Validate() error {
	if c.WebhookURL == "" {
		return errors.New("dispatch: webhook URL is required")
	}
	u, err := url.Parse(c.WebhookURL)
	if err != nil {
		return fmt.Errorf("dispatch: invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("dispatch: unsupported webhook scheme %q", u.Scheme)
	}
	switch c.Format {
	case "", FormatSlack, FormatJSON:
	default:
		return fmt.Errorf("dispatch: unknown payload format %q", c.Format)
	}
	return nil
}

// slackPayload is the attachment-style body Slack-compatible sinks accept.
type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer"`
	TS     int64  `json:"ts"`
}

// Dispatcher sends alert payloads over HTTP with a bounded timeout.
type Dispatcher struct {
	config *Config
	client *http.Client
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(config *Config, logger *zap.Logger) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Format == "" {
		config.Format = FormatSlack
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

// Send serializes the intent and posts it to the webhook. A *DeliveryError
// is returned on timeout, connection failure, or a non-2xx response.
func (d *Dispatcher) Send(ctx context.Context, intent policy.AlertIntent) error {
	body, err := d.marshal(intent)
	if err != nil {
		return fmt.Errorf("dispatch: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dispatch: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Poolwatch/1.0")
	req.Header.Set("X-Alert-Kind", string(intent.Kind))
	req.Header.Set("X-Alert-ID", intent.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{StatusCode: resp.StatusCode}
	}

	d.logger.Debug("alert delivered",
		zap.String("kind", string(intent.Kind)),
		zap.String("id", intent.ID))
	return nil
}

func (d *Dispatcher) marshal(intent policy.AlertIntent) ([]byte, error) {
	if d.config.Format == FormatJSON {
		return json.Marshal(intent)
	}
	return json.Marshal(slackMessage(intent))
}

// slackMessage formats the intent as a Slack attachment.
func slackMessage(intent policy.AlertIntent) slackPayload {
	var (
		color string
		title string
		text  string
	)

	switch intent.Kind {
	case policy.KindFailover:
		color = colorFailover
		title = "Failover Detected"
		text = strings.Join([]string{
			fmt.Sprintf("• From: `%s`", intent.From),
			fmt.Sprintf("• To: `%s`", intent.To),
			fmt.Sprintf("• Release: `%s`", intent.Release),
			fmt.Sprintf("• Upstream: `%s`", intent.Upstream),
			fmt.Sprintf("• Time: %s", intent.At.UTC().Format("2006-01-02 15:04:05")),
			"",
			fmt.Sprintf("Action required: check health of the `%s` pool.", intent.From),
		}, "\n")
	case policy.KindHighErrorRate:
		color = colorErrorRate
		title = "High Error Rate"
		text = strings.Join([]string{
			fmt.Sprintf("• Error rate: `%.2f%%` (threshold: %.2f%%)", intent.RatePercent, intent.ThresholdPercent),
			fmt.Sprintf("• Errors: `%d/%d` requests", intent.ErrorCount, intent.TotalCount),
			fmt.Sprintf("• Current pool: `%s`", intent.CurrentPool),
			fmt.Sprintf("• Window size: `%d` requests", intent.WindowSize),
			"",
			"Action required: investigate upstream logs and consider manual failover.",
		}, "\n")
	default:
		color = "#808080"
		title = string(intent.Kind)
	}

	return slackPayload{
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  title,
			Text:   text,
			Footer: "poolwatch",
			TS:     intent.At.Unix(),
		}},
	}
}
