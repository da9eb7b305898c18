package webanalytics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"telegate/internal/logging"
	"telegate/internal/tracker"
)

// ErrClosed is returned by Initialize after Close.
var ErrClosed = errors.New("webanalytics: client closed")

// Config configures an HTTPClient.
type Config struct {
	// Endpoint is the collect URL.
	Endpoint string
	// ClientID identifies this installation. Generated when empty.
	ClientID string
	// QueueSize bounds hits waiting to be sent.
	QueueSize int
	// Timeout bounds one HTTP request.
	Timeout time.Duration
	// RatePerSecond and Burst pace outgoing hits. Hits over the limit are dropped.
	RatePerSecond float64
	Burst         int
	// RecordLimit bounds the hits kept in test mode. The oldest are discarded first.
	RecordLimit int
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
}

// DefaultConfig mirrors the pacing of the browser analytics library.
func DefaultConfig() Config {
	return Config{
		Endpoint:      "https://www.google-analytics.com/collect",
		QueueSize:     256,
		Timeout:       5 * time.Second,
		RatePerSecond: 2,
		Burst:         20,
		RecordLimit:   1000,
	}
}

type channel struct {
	desc   tracker.Descriptor
	fields map[string]string
}

// HTTPClient is a Client that posts hits from a single sender goroutine.
type HTTPClient struct {
	cfg     Config
	http    *http.Client
	logger  *logging.Logger
	limiter *rate.Limiter

	mu       sync.RWMutex
	channels []*channel
	opts     InitOptions
	closed   bool

	queue    chan Hit
	done     chan struct{}
	start    sync.Once
	stopSend context.CancelFunc

	recMu    sync.Mutex
	recorded []Hit

	sent    atomic.Int64
	dropped atomic.Int64
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client. Start must be called before hits flow.
func NewHTTPClient(cfg Config, logger *logging.Logger) *HTTPClient {
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.RecordLimit <= 0 {
		cfg.RecordLimit = def.RecordLimit
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &HTTPClient{
		cfg:     cfg,
		http:    hc,
		logger:  logger.WithComponent("webanalytics"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		queue:   make(chan Hit, cfg.QueueSize),
		done:    make(chan struct{}),
	}
}

// ClientID returns the installation id sent as cid.
func (c *HTTPClient) ClientID() string { return c.cfg.ClientID }

// Start launches the sender goroutine. Calling it again has no effect.
// Cancelling ctx does not stop delivery; only Close ends the sender.
func (c *HTTPClient) Start(ctx context.Context) {
	c.launch(ctx)
}

func (c *HTTPClient) launch(ctx context.Context) {
	c.start.Do(func() {
		sendCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c.stopSend = cancel
		go c.run(sendCtx)
	})
}

func (c *HTTPClient) run(ctx context.Context) {
	defer close(c.done)
	for hit := range c.queue {
		if !c.limiter.Allow() {
			c.dropped.Add(1)
			c.logger.Warn("hit rate limited", "type", hit.Type, "tid", hit.TrackerID)
			continue
		}
		c.deliver(ctx, hit)
	}
}

func (c *HTTPClient) deliver(ctx context.Context, hit Hit) {
	c.mu.RLock()
	testMode := c.opts.TestMode
	c.mu.RUnlock()

	if testMode {
		c.recMu.Lock()
		c.recorded = append(c.recorded, hit)
		if over := len(c.recorded) - c.cfg.RecordLimit; over > 0 {
			c.recorded = append(c.recorded[:0:0], c.recorded[over:]...)
		}
		c.recMu.Unlock()
		c.sent.Add(1)
		return
	}

	if err := c.post(ctx, hit); err != nil {
		c.dropped.Add(1)
		c.logger.Warn("send hit", "type", hit.Type, "tid", hit.TrackerID, "error", err)
		return
	}
	c.sent.Add(1)
}

func (c *HTTPClient) post(ctx context.Context, hit Hit) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(hit.Params.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "telegate")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collect returned %s", resp.Status)
	}
	return nil
}

// Initialize installs the channels for this session, replacing any previous set.
func (c *HTTPClient) Initialize(trackers []tracker.Descriptor, opts InitOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if len(trackers) == 0 {
		return errors.New("webanalytics: no trackers")
	}

	c.channels = make([]*channel, 0, len(trackers))
	for _, d := range trackers {
		c.channels = append(c.channels, &channel{desc: d, fields: map[string]string{}})
	}
	c.opts = opts

	c.logger.Info("analytics initialized",
		"trackers", len(trackers),
		"test_mode", opts.TestMode,
		"site_speed_sample_rate", opts.SiteSpeedSampleRate,
	)
	return nil
}

// Set attaches fields to the default channel.
func (c *HTTPClient) Set(fields map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.channels) == 0 {
		c.logger.Warn("set before initialize")
		return
	}
	for k, v := range fields {
		c.channels[0].fields[k] = v
	}
}

// PageView sends a pageview hit.
func (c *HTTPClient) PageView(path string, trackers []string) {
	c.dispatch("pageview", trackers, func(p url.Values) {
		p.Set("dp", path)
	})
}

// Event sends an event hit.
func (c *HTTPClient) Event(ev Event, trackers []string) {
	c.dispatch("event", trackers, func(p url.Values) {
		p.Set("ec", ev.Category)
		p.Set("ea", ev.Action)
		if ev.Label != nil {
			p.Set("el", *ev.Label)
		}
		if ev.Value != nil {
			p.Set("ev", strconv.FormatInt(*ev.Value, 10))
		}
	})
}

// Timing sends a timing hit.
func (c *HTTPClient) Timing(t Timing, trackers []string) {
	c.dispatch("timing", trackers, func(p url.Values) {
		p.Set("utc", t.Category)
		p.Set("utv", t.Variable)
		p.Set("utt", strconv.FormatInt(t.Value, 10))
		if t.Label != nil {
			p.Set("utl", *t.Label)
		}
	})
}

// dispatch encodes one hit per addressed channel and enqueues it without blocking.
func (c *HTTPClient) dispatch(hitType string, names []string, fill func(url.Values)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	for _, ch := range c.resolve(names) {
		p := url.Values{}
		p.Set("v", "1")
		p.Set("tid", ch.desc.ID)
		p.Set("cid", c.cfg.ClientID)
		p.Set("t", hitType)
		for k, v := range ch.fields {
			p.Set(k, v)
		}
		fill(p)

		hit := Hit{TrackerID: ch.desc.ID, Type: hitType, Params: p}
		select {
		case c.queue <- hit:
		default:
			c.dropped.Add(1)
			c.logger.Warn("analytics queue full, dropping hit", "type", hitType, "tid", ch.desc.ID)
		}
	}
}

// resolve must be called with mu held.
func (c *HTTPClient) resolve(names []string) []*channel {
	if len(c.channels) == 0 {
		c.logger.Warn("hit before initialize")
		return nil
	}
	if len(names) == 0 {
		return c.channels[:1]
	}
	var out []*channel
	for _, name := range names {
		found := false
		for _, ch := range c.channels {
			if ch.desc.Name == name {
				out = append(out, ch)
				found = true
				break
			}
		}
		if !found {
			c.logger.Debug("unknown tracker", "name", name)
		}
	}
	return out
}

// Recorded returns the most recent hits captured in test mode, in delivery order.
func (c *HTTPClient) Recorded() []Hit {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	return append([]Hit(nil), c.recorded...)
}

// Stats returns the number of hits delivered and dropped so far.
func (c *HTTPClient) Stats() (sent, dropped int64) {
	return c.sent.Load(), c.dropped.Load()
}

// Close stops accepting hits and waits for queued hits to drain or ctx to end.
func (c *HTTPClient) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	// A sender that never started still has to drain the queue.
	c.launch(ctx)
	defer c.stopSend()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain analytics queue: %w", ctx.Err())
	}
}
