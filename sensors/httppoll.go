package sensors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/watertreat/rtu/ratelimit"
	"github.com/watertreat/rtu/types"
)

// httpPollTimeout is the per-interface default of §5 ("10 s HTTP").
const httpPollTimeout = 10 * time.Second

// httpResult is one worker's delivery back to the pipeline dispatcher.
type httpResult struct {
	bound  *Bound
	raw    float64
	status types.Status
	err    error
}

// HTTPPoller runs one goroutine per web_poll sensor module module_type
// (§4.2 "slow interfaces (HTTP poll) run on a separate worker set and
// deliver results via a single-producer channel back to the pipeline").
// Each registered sensor owns exactly one goroutine, which sends that
// sensor's results onto the shared results channel; Run is the single consumer
// that feeds processAcquisition, so publish semantics match the bus-backed
// Scheduler exactly.
type HTTPPoller struct {
	table   *Table
	gate    *ratelimit.Gate
	onFail  func(cfg types.SensorConfig, err error)
	client  *http.Client
	results chan httpResult
}

// NewHTTPPoller builds a poller publishing into table.
func NewHTTPPoller(table *Table, onFail func(cfg types.SensorConfig, err error)) *HTTPPoller {
	return &HTTPPoller{
		table:   table,
		gate:    ratelimit.NewGate(30 * time.Second),
		onFail:  onFail,
		client:  &http.Client{Timeout: httpPollTimeout},
		results: make(chan httpResult, 16),
	}
}

// Register spawns the worker goroutine for b, which polls b.Config.PollMS
// until ctx is cancelled. b.Config.Hardware.Address is the poll URL.
func (p *HTTPPoller) Register(ctx context.Context, b *Bound) {
	go p.worker(ctx, b)
}

func (p *HTTPPoller) worker(ctx context.Context, b *Bound) {
	period := time.Duration(b.Config.PollMS) * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	p.poll(ctx, b)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, b)
		}
	}
}

func (p *HTTPPoller) poll(ctx context.Context, b *Bound) {
	raw, status, err := fetchFloat(ctx, p.client, b.Config.Hardware.Address)
	select {
	case p.results <- httpResult{bound: b, raw: raw, status: status, err: err}:
	case <-ctx.Done():
	}
}

// Run drains results onto the shared pipeline until ctx is cancelled; it is
// the single consumer of the results channel every worker sends on.
func (p *HTTPPoller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-p.results:
			processAcquisition(r.bound, r.raw, r.status, r.err, p.table, p.gate, p.onFail)
		}
	}
}

// fetchFloat issues a bounded GET and parses the response body as a
// trimmed decimal float (the direct value §4.2 describes for a "direct"
// acquisition source).
func fetchFloat(ctx context.Context, client *http.Client, url string) (float64, types.Status, error) {
	reqCtx, cancel := context.WithTimeout(ctx, httpPollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, types.StatusError, err
	}
	resp, err := client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return 0, types.StatusTimeout, err
		}
		return 0, types.StatusError, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, types.StatusError, fmt.Errorf("sensors: http poll %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return 0, types.StatusError, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(body)), 64)
	if err != nil {
		return 0, types.StatusError, err
	}
	return v, types.StatusOK, nil
}
