package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mezmur-app/mezmur-sync/internal/logging"
)

// Prober is a Monitor that polls a URL on a cron schedule. Subscribers hear
// about a status only when it differs from the previous probe.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client
	log      *logging.Logger

	subs listeners

	mu   sync.Mutex
	last *MonitorStatus
	cron *cron.Cron
}

// NewProber creates a prober for url. A nil client gets a timeout of half the
// interval.
func NewProber(url string, interval time.Duration, client *http.Client) *Prober {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: interval / 2}
	}
	return &Prober{
		url:      url,
		interval: interval,
		client:   client,
		log:      logging.New("connectivity_prober"),
	}
}

// Subscribe registers fn. The last known status, if any, is delivered
// immediately.
func (p *Prober) Subscribe(fn func(MonitorStatus)) func() {
	unsubscribe := p.subs.add(fn)
	if last, ok := p.Last(); ok {
		fn(last)
	}
	return unsubscribe
}

// Last returns the most recent probe result.
func (p *Prober) Last() (MonitorStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return MonitorStatus{}, false
	}
	return *p.last, true
}

// Start schedules probing. Calling Start twice is a no-op.
func (p *Prober) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", p.interval), func() {
		p.Probe(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule probe: %w", err)
	}
	c.Start()
	p.cron = c
	p.log.Infof("start", "probing %s every %s", p.url, p.interval)

	go p.Probe(context.Background())
	return nil
}

// Stop halts the schedule and waits for a running probe to finish.
func (p *Prober) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// Probe checks the URL once and publishes the result if it changed. Any
// response below 500 counts as reachable.
func (p *Prober) Probe(ctx context.Context) MonitorStatus {
	status := p.check(ctx)

	p.mu.Lock()
	changed := p.last == nil || p.last.Connected() != status.Connected()
	p.last = &status
	p.mu.Unlock()

	if changed {
		p.log.Infof("probe", "url=%s connected=%t", p.url, status.Connected())
		p.subs.emit(status)
	}
	return status
}

func (p *Prober) check(ctx context.Context) MonitorStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.log.Error("probe", err)
		return Reachable(false, false)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debugf("probe", "url=%s unreachable: %v", p.url, err)
		return Reachable(false, false)
	}
	resp.Body.Close()
	return Reachable(true, resp.StatusCode < http.StatusInternalServerError)
}
