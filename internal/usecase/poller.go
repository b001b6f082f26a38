package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ChatPoller runs a job at a fixed interval until stopped. A tick is skipped
// while the previous one is still running.
type ChatPoller struct {
	interval time.Duration
	timeout  time.Duration
	job      func(ctx context.Context) error
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// NewChatPoller builds a stopped poller. Each run gets its own context bounded
// by timeout.
func NewChatPoller(interval, timeout time.Duration, job func(ctx context.Context) error, logger *slog.Logger) *ChatPoller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval < time.Second {
		interval = time.Second
	}
	return &ChatPoller{interval: interval, timeout: timeout, job: job, logger: logger}
}

// Start begins polling. It reports false when the poller already runs.
func (c *ChatPoller) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return false
	}
	cronLog := cron.PrintfLogger(slog.NewLogLogger(c.logger.Handler(), slog.LevelDebug))
	c.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLog)), cron.WithLogger(cronLog))
	c.cron.Schedule(cron.Every(c.interval), cron.FuncJob(c.run))
	c.cron.Start()
	c.started = true
	return true
}

// Stop halts polling. A run in progress finishes on its own.
func (c *ChatPoller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.cron.Stop()
	c.cron = nil
	c.started = false
}

func (c *ChatPoller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *ChatPoller) run() {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.job(ctx); err != nil {
		c.logger.Debug("chat poll failed", "err", err)
	}
}

// StartChatPolling refetches the conversation every chat poll interval while
// the portal is open. Leaving the portal stage stops it.
func (p *Portal) StartChatPolling() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLocked(StagePortal); err != nil {
		return err
	}
	if p.poller == nil {
		p.poller = NewChatPoller(p.brand.ChatPollInterval, p.brand.RequestTimeout, p.pollChat, p.logger)
	}
	if p.poller.Start() {
		p.logger.Debug("chat polling started", "interval", p.brand.ChatPollInterval.String())
	}
	return nil
}

// Polling reports whether chat polling is active.
func (p *Portal) Polling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.poller != nil && p.poller.Running()
}

func (p *Portal) pollChat(ctx context.Context) error {
	_, err := p.RefreshChat(ctx)
	if CodeOf(err) == ErrorStale {
		return nil
	}
	return err
}

func (p *Portal) stopPollingLocked() {
	if p.poller != nil {
		p.poller.Stop()
	}
}
