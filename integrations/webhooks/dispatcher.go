package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"dscengine/core/events"
)

const (
	HeaderEvent     = "X-DSC-Event"
	HeaderSignature = "X-DSC-Signature"
	HeaderDelivery  = "X-DSC-Delivery"

	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueSize   = 64
)

// Payload is the webhook body for one committed engine event.
type Payload struct {
	Type        string            `json:"type"`
	Fingerprint string            `json:"fingerprint"`
	Account     string            `json:"account,omitempty"`
	Attributes  map[string]string `json:"attributes"`
	DeliveryID  string            `json:"deliveryId"`
	Time        time.Time         `json:"time"`
}

// Dispatcher forwards engine events to an HTTP endpoint with an HMAC
// signature, retrying failed deliveries with exponential backoff. It is an
// events.Emitter and never blocks the engine: events are dropped when the
// queue is full.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	client      *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	queueSize   int
	types       map[string]bool
	logger      *slog.Logger
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup
}

type delivery struct {
	eventType string
	id        string
	body      []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithTypes restricts delivery to the named event types. No types means every
// event is delivered.
func WithTypes(types ...string) Option {
	return func(d *Dispatcher) {
		for _, t := range types {
			if t = strings.TrimSpace(t); t != "" {
				d.types[t] = true
			}
		}
	}
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: 15 * time.Second},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		queueSize:   defaultQueueSize,
		types:       map[string]bool{},
		logger:      slog.Default(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	dispatcher.queue = make(chan delivery, dispatcher.queueSize)
	dispatcher.wg.Add(1)
	go dispatcher.worker()
	return dispatcher, nil
}

// Close stops the dispatcher and waits for inflight deliveries to complete.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// Emit implements events.Emitter.
func (d *Dispatcher) Emit(evt events.Event) {
	if d == nil || evt == nil {
		return
	}
	if len(d.types) > 0 && !d.types[evt.EventType()] {
		return
	}
	if err := d.enqueue(evt); err != nil {
		d.logger.Warn("webhook delivery dropped", "type", evt.EventType(), "error", err)
	}
}

func (d *Dispatcher) enqueue(evt events.Event) error {
	renderer, ok := evt.(events.Renderer)
	if !ok {
		return fmt.Errorf("webhook: event %s cannot be rendered", evt.EventType())
	}
	rendered := renderer.Event()
	if rendered == nil {
		return errors.New("webhook: event rendered empty")
	}
	payload := Payload{
		Type:        rendered.Type,
		Fingerprint: events.Fingerprint(rendered),
		Attributes:  rendered.Attributes,
		DeliveryID:  uuid.NewString(),
		Time:        d.now().UTC(),
	}
	if account := events.PrimaryAccount(evt); account != (common.Address{}) {
		payload.Account = account.Hex()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	select {
	case <-d.ctx.Done():
		return errors.New("webhook: dispatcher closed")
	default:
	}
	select {
	case d.queue <- delivery{eventType: payload.Type, id: payload.DeliveryID, body: data}:
		return nil
	default:
		return errors.New("webhook: queue full")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	attempt := 0
	backoff := d.minBackoff
	for {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.client.Timeout)
		err := d.send(ctx, job)
		cancel()
		if err == nil {
			return
		}
		if attempt >= d.maxAttempts {
			d.logger.Error("webhook delivery failed", "type", job.eventType, "delivery", job.id, "attempts", attempt, "error", err)
			return
		}
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, job.eventType)
	req.Header.Set(HeaderDelivery, job.id)
	req.Header.Set(HeaderSignature, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	if next < current {
		return max
	}
	return next
}
