package netmon

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Prober polls a health endpoint and feeds reachability transitions into a
// Monitor. It stands in for the browser's online/offline events when the
// core runs in a headless process.
type Prober struct {
	monitor  *Monitor
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// NewProber creates a prober against healthURL. Interval defaults to 15s.
func NewProber(m *Monitor, healthURL string, interval time.Duration, logger *slog.Logger) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		monitor:  m,
		url:      healthURL,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

// Run probes immediately, then on every tick, until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Error("netmon: build probe request", "error", err)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.monitor.SetOnline(false)
		return
	}
	resp.Body.Close()

	online := resp.StatusCode < 500
	if !online {
		p.logger.Debug("netmon: probe unhealthy", "status", resp.StatusCode)
	}
	p.monitor.SetOnline(online)
}
