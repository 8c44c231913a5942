// Package notify delivers console notifications to the terminal and to an
// optional webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"autotrade-console/internal/config"
)

// Notifier sends one notification.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Channel is a named delivery target.
type Channel interface {
	Notifier
	Name() string
}

// Kind groups notifications for the level filter.
type Kind string

const (
	KindPlanLevel Kind = "plan_level" // price reached a plan level
	KindEngine    Kind = "engine"     // engine state changed
	KindError     Kind = "error"
	KindInfo      Kind = "info"
)

// Notification is one console event. Plan fields are set for KindPlanLevel.
type Notification struct {
	Kind    Kind      `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`

	PlanID     string  `json:"plan_id,omitempty"`
	Symbol     string  `json:"symbol,omitempty"`
	Level      string  `json:"level,omitempty"`
	LevelPrice float64 `json:"level_price,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Crossed    bool    `json:"crossed,omitempty"`
}

// Filter is the configured notifications.level.
type Filter string

const (
	FilterAll        Filter = "all"
	FilterTradesOnly Filter = "trades_only"
	FilterErrorsOnly Filter = "errors_only"
)

// Allows reports whether a notification of kind passes the filter.
func (f Filter) Allows(kind Kind) bool {
	switch f {
	case FilterTradesOnly:
		return kind == KindPlanLevel || kind == KindEngine
	case FilterErrorsOnly:
		return kind == KindError
	}
	return true
}

// Dispatcher fans notifications out to every channel that passes its
// filter. It is safe for concurrent use once built.
type Dispatcher struct {
	filter   Filter
	channels []Channel
}

// NewDispatcher builds a dispatcher from cfg. The given channels and, when
// configured, the webhook are used only if notifications are enabled.
func NewDispatcher(cfg config.NotificationConfig, channels ...Channel) *Dispatcher {
	d := &Dispatcher{filter: Filter(cfg.Level)}
	if d.filter == "" {
		d.filter = FilterAll
	}
	if !cfg.Enabled {
		return d
	}
	d.channels = append(d.channels, channels...)
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		d.channels = append(d.channels, NewWebhook(cfg.Webhook.URL, 10*time.Second))
	}
	return d
}

// Channels returns the active channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = ch.Name()
	}
	return names
}

// Send delivers n to every channel. Each channel is tried even when an
// earlier one fails.
func (d *Dispatcher) Send(ctx context.Context, n Notification) error {
	if d == nil || !d.filter.Allows(n.Kind) {
		return nil
	}
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	var errs []error
	for _, ch := range d.channels {
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Webhook posts each notification as JSON.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook returns a webhook channel posting to url.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

// Name implements Channel.
func (w *Webhook) Name() string { return "webhook" }

// Send implements Channel. Any non-2xx response is an error.
func (w *Webhook) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", config.AppName)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
