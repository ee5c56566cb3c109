package routes

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"nhooyr.io/websocket"

	"dscengine/core/events"
	"dscengine/crypto"
)

const wsWriteTimeout = 10 * time.Second

var errSubscriberDropped = errors.New("stream: subscriber dropped")

// StreamMessage is the websocket frame published for every engine event.
type StreamMessage struct {
	Type        string            `json:"type"`
	Fingerprint string            `json:"fingerprint"`
	Account     string            `json:"account,omitempty"`
	Attributes  map[string]string `json:"attributes"`
	Time        time.Time         `json:"time"`
}

type subscriber struct {
	updates chan []byte
	account *common.Address
}

// Stream fans engine events out to websocket subscribers. Each subscriber
// has a bounded queue; a subscriber that falls behind is disconnected.
type Stream struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	buffer  int
	origins []string
	logger  *slog.Logger
}

func NewStream(buffer int, origins []string, logger *slog.Logger) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{subs: make(map[*subscriber]struct{}), buffer: buffer, origins: origins, logger: logger}
}

// Emit implements events.Emitter.
func (s *Stream) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	renderer, ok := evt.(events.Renderer)
	if !ok {
		return
	}
	rendered := renderer.Event()
	if rendered == nil {
		return
	}
	account := events.PrimaryAccount(evt)
	msg := StreamMessage{
		Type:        rendered.Type,
		Fingerprint: events.Fingerprint(rendered),
		Attributes:  rendered.Attributes,
		Time:        time.Now().UTC(),
	}
	if account != (common.Address{}) {
		msg.Account = account.Hex()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("stream encode failed", "type", rendered.Type, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if sub.account != nil && *sub.account != account {
			continue
		}
		select {
		case sub.updates <- data:
		default:
			s.logger.Warn("stream subscriber too slow, disconnecting", "type", rendered.Type)
			delete(s.subs, sub)
			close(sub.updates)
		}
	}
}

// Subscribers reports the number of connected websocket clients.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Stream) subscribe(account *common.Address) *subscriber {
	sub := &subscriber{updates: make(chan []byte, s.buffer), account: account}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

func (s *Stream) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		close(sub.updates)
	}
}

// ServeHTTP upgrades the request and streams events until either side
// closes. An optional ?account= filter limits frames to one account.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var filter *common.Address
	if raw := strings.TrimSpace(r.URL.Query().Get("account")); raw != "" {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			writeError(w, r, invalid(err))
			return
		}
		filter = &addr
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	sub := s.subscribe(filter)
	defer s.unsubscribe(sub)

	ctx := conn.CloseRead(r.Context())
	if err := s.pump(ctx, conn, sub); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
		}
	}
}

func (s *Stream) pump(ctx context.Context, conn *websocket.Conn, sub *subscriber) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-sub.updates:
			if !ok {
				return errSubscriberDropped
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
