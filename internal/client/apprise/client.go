package apprise

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/waveframe/internal/config"
	"github.com/waveframe/pkg/logger"
)

// Client wraps the Apprise API.
type Client struct {
	cfg    config.AppriseConfig
	client *resty.Client
}

// NewClient creates a new Apprise client.
func NewClient(cfg config.AppriseConfig) *Client {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)

	return &Client{
		cfg:    cfg,
		client: client,
	}
}

// NotifyRequest is the request body for Apprise.
type NotifyRequest struct {
	Body  string `json:"body"`
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"` // info, success, warning, failure
	Tag   string `json:"tag,omitempty"`
}

// Notify sends a notification via Apprise.
func (c *Client) Notify(title, body, notifyType string) error {
	if !c.cfg.Enabled {
		return nil
	}

	tag := c.cfg.Tag
	if tag == "" {
		tag = "all"
	}

	req := NotifyRequest{
		Title: title,
		Body:  body,
		Type:  notifyType,
		Tag:   tag,
	}

	url := fmt.Sprintf("%s/notify/%s", c.cfg.BaseURL, c.cfg.Key)

	resp, err := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(url)

	if err != nil {
		return fmt.Errorf("apprise request: %w", err)
	}

	if resp.StatusCode() >= 400 {
		return fmt.Errorf("apprise error: %s", resp.String())
	}

	logger.Debugf("🔔 Notification sent: %s", title)
	return nil
}

// NotifyConversionDone reports a single finished conversion.
func (c *Client) NotifyConversionDone(filename, outputPath string) error {
	return c.Notify(
		"Conversion complete",
		fmt.Sprintf("%s → %s", filename, outputPath),
		"success",
	)
}

// NotifyConversionFailed reports a failed conversion with its suggested action.
func (c *Client) NotifyConversionFailed(filename, message, action string) error {
	body := fmt.Sprintf("%s: %s", filename, message)
	if action != "" {
		body += "\n" + action
	}
	return c.Notify("Conversion failed", body, "failure")
}

// NotifyBatchDone reports that the queue drained.
func (c *Client) NotifyBatchDone(succeeded, failed int) error {
	notifyType := "success"
	if failed > 0 {
		notifyType = "warning"
	}
	return c.Notify(
		"All conversions finished",
		fmt.Sprintf("%d succeeded, %d failed", succeeded, failed),
		notifyType,
	)
}
