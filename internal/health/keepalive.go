package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/whisper/spamguard/internal/metrics"
)

// KeepAliveConfig holds self-ping settings.
type KeepAliveConfig struct {
	URL      string        // public URL of this process, usually its /health
	Interval time.Duration // time between pings
	Timeout  time.Duration // bound on each request
}

// DefaultKeepAliveConfig returns sensible defaults. URL is left empty, which
// disables pinging.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Interval: 10 * time.Minute,
		Timeout:  10 * time.Second,
	}
}

// KeepAlive periodically requests its own public URL so free hosting tiers
// that sleep idle services keep the poller running.
type KeepAlive struct {
	config KeepAliveConfig
	client *http.Client
	logger *logrus.Entry
}

// NewKeepAlive creates a pinger. client may be nil.
func NewKeepAlive(config KeepAliveConfig, client *http.Client, logger *logrus.Logger) *KeepAlive {
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &KeepAlive{
		config: config,
		client: client,
		logger: logger.WithField("component", "keepalive"),
	}
}

// Run pings on every interval until ctx is cancelled. It returns at once
// when no URL is configured.
func (k *KeepAlive) Run(ctx context.Context) {
	if k.config.URL == "" {
		return
	}
	k.logger.WithFields(logrus.Fields{
		"url":      k.config.URL,
		"interval": k.config.Interval,
	}).Info("keep-alive started")

	ticker := time.NewTicker(k.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := k.Ping(ctx); err != nil {
				metrics.KeepAlivesTotal.WithLabelValues("error").Inc()
				k.logger.WithError(err).Warn("keep-alive ping failed")
				continue
			}
			metrics.KeepAlivesTotal.WithLabelValues("ok").Inc()
		}
	}
}

// Ping sends one request. Non-2xx responses are errors.
func (k *KeepAlive) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, k.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.config.URL, nil)
	if err != nil {
		return fmt.Errorf("health: keep-alive request: %w", err)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("health: keep-alive: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health: keep-alive: unexpected status %d", resp.StatusCode)
	}
	return nil
}
