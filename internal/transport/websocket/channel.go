package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
)

const (
	stateClosed = iota
	stateConnecting
	stateOpen
	stateReconnecting
	stateFailed
)

const inboundBufferSize = 64

// Inbound is one element of the channel's message stream. Err is set
// only for the terminal failure after reconnection gives up.
type Inbound struct {
	Message *Message
	Err     error
}

type Config struct {
	URL          string
	ClientID     string
	DialTimeout  time.Duration
	PingInterval time.Duration
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	MaxAttempts  int
}

type dialFunc func(ctx context.Context, endpoint string, header http.Header) (*websocket.Conn, error)

// Channel owns at most one logical websocket connection per match and
// delivers an ordered stream of schema-validated inbound messages.
// An abnormal close feeds the exponential-backoff reconnection path; an
// explicit Disconnect never does.
type Channel struct {
	logger *slog.Logger
	clock  clockwork.Clock
	conf   Config
	dial   dialFunc

	mu           sync.Mutex
	state        int
	conn         *websocket.Conn
	gameID       int64
	token        string
	attempts     int
	reconnecting bool
	session      chan struct{}

	inbound chan Inbound
	onOpen  func()
}

func New(logger *slog.Logger, clock clockwork.Clock, conf Config) *Channel {
	if conf.DialTimeout <= 0 {
		conf.DialTimeout = 10 * time.Second
	}
	if conf.PingInterval <= 0 {
		conf.PingInterval = 30 * time.Second
	}
	if conf.BackoffBase <= 0 {
		conf.BackoffBase = time.Second
	}
	if conf.BackoffCap <= 0 {
		conf.BackoffCap = 10 * time.Second
	}
	if conf.MaxAttempts <= 0 {
		conf.MaxAttempts = 20
	}

	channel := &Channel{
		logger:  logger.With("component", "ws-channel"),
		clock:   clock,
		conf:    conf,
		inbound: make(chan Inbound, inboundBufferSize),
	}

	channel.dial = func(ctx context.Context, endpoint string, header http.Header) (*websocket.Conn, error) {
		conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: header})
		return conn, err
	}

	return channel
}

// Inbound exposes the message stream. Malformed payloads never appear
// on it; they are logged and dropped inside the read loop.
func (that *Channel) Inbound() <-chan Inbound {
	return that.inbound
}

// SetOnOpen registers a callback fired after every successful open,
// including reopens after a reconnect. The session uses it to trigger
// an immediate re-synchronization poll.
func (that *Channel) SetOnOpen(callback func()) {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.onOpen = callback
}

func (that *Channel) IsOpen() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state == stateOpen
}

// Connect opens the socket for the given match. Connecting to a match
// that is already open is a no-op. Connecting to a different match
// tears the previous session down first.
func (that *Channel) Connect(ctx context.Context, gameID int64, token string) error {
	if gameID <= 0 {
		return fmt.Errorf("%w: game id must be positive", apperror.ErrInvalidArgument)
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: token cannot be empty", apperror.ErrInvalidArgument)
	}

	that.mu.Lock()
	if that.state == stateOpen && that.gameID == gameID {
		that.mu.Unlock()
		return nil
	}
	that.mu.Unlock()

	that.Disconnect()

	that.mu.Lock()
	that.gameID = gameID
	that.token = token
	that.attempts = 0
	that.state = stateConnecting
	that.session = make(chan struct{})
	session := that.session
	that.mu.Unlock()

	if err := that.open(ctx, session); err != nil {
		that.scheduleReconnect(session)
		return fmt.Errorf("failed to connect: %w", err)
	}

	return nil
}

// Disconnect closes the socket with a normal-closure code and cancels
// any pending reconnection. Safe to call multiple times.
func (that *Channel) Disconnect() {
	that.mu.Lock()
	session := that.session
	conn := that.conn
	that.session = nil
	that.conn = nil
	that.state = stateClosed
	that.gameID = 0
	that.token = ""
	that.attempts = 0
	that.reconnecting = false
	that.mu.Unlock()

	if session != nil {
		close(session)
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "disconnect")
	}
}

// Send writes one message to the open socket.
func (that *Channel) Send(ctx context.Context, msgType string, payload any) error {
	that.mu.Lock()
	conn := that.conn
	open := that.state == stateOpen
	that.mu.Unlock()

	if !open || conn == nil {
		return apperror.ErrTransportUnavailable
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not marshal %s payload: %w", msgType, err)
	}

	if err := wsjson.Write(ctx, conn, Message{Type: msgType, Payload: raw}); err != nil {
		return fmt.Errorf("failed to send %s: %w", msgType, err)
	}

	return nil
}

func (that *Channel) open(ctx context.Context, session chan struct{}) error {
	dialCtx, cancel := context.WithTimeout(ctx, that.conf.DialTimeout)
	defer cancel()

	conn, err := that.dial(dialCtx, that.endpoint(), that.headers())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: dial exceeded %s", apperror.ErrTimeout, that.conf.DialTimeout)
		}
		return err
	}

	that.mu.Lock()
	if stopped(session) {
		// the session was torn down while the dial was in flight
		that.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
		return nil
	}
	that.conn = conn
	that.attempts = 0
	that.state = stateOpen
	onOpen := that.onOpen
	that.mu.Unlock()

	go that.listen(conn, session)
	go that.pingLoop(conn, session)

	if onOpen != nil {
		onOpen()
	}

	return nil
}

func (that *Channel) listen(conn *websocket.Conn, session chan struct{}) {
	log := that.logger.With("method", "listen")

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			if stopped(session) || !that.ownsConn(conn) {
				return
			}

			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				log.Info("connection closed normally")
				return
			}

			log.Warn("connection lost", "error", err)
			that.dropConn(conn)
			that.scheduleReconnect(session)
			return
		}

		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			log.Warn("dropping unparseable message", "error", err)
			continue
		}

		if err := message.Validate(); err != nil {
			log.Warn("dropping invalid message", "type", message.Type, "error", err)
			continue
		}

		that.deliver(Inbound{Message: &message})
	}
}

func (that *Channel) pingLoop(conn *websocket.Conn, session chan struct{}) {
	log := that.logger.With("method", "pingLoop")

	ticker := that.clock.NewTicker(that.conf.PingInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-session:
			return
		case <-ticker.Chan():
			if !that.ownsConn(conn) {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := conn.Ping(ctx)
			cancel()

			if err == nil {
				failures = 0
				continue
			}

			failures++
			if failures < 2 {
				continue
			}

			if stopped(session) || !that.ownsConn(conn) {
				return
			}

			log.Warn("heartbeat failed, reconnecting", "error", err)
			that.dropConn(conn)
			_ = conn.Close(websocket.StatusGoingAway, "ping failure")
			that.scheduleReconnect(session)
			return
		}
	}
}

// scheduleReconnect runs at most one backoff loop per session. The
// n-th attempt waits min(base * 2^(n-1), cap); once the attempt budget
// is spent the channel surfaces ErrExhausted exactly once and stays
// down until Connect is called fresh.
func (that *Channel) scheduleReconnect(session chan struct{}) {
	that.mu.Lock()
	if that.reconnecting || that.state == stateFailed || stopped(session) {
		that.mu.Unlock()
		return
	}
	that.reconnecting = true
	that.state = stateReconnecting
	that.mu.Unlock()

	log := that.logger.With("method", "scheduleReconnect")

	go func() {
		for {
			that.mu.Lock()
			that.attempts++
			attempt := that.attempts
			that.mu.Unlock()

			if attempt > that.conf.MaxAttempts {
				that.mu.Lock()
				that.state = stateFailed
				that.reconnecting = false
				that.mu.Unlock()

				log.Error("giving up after max reconnect attempts", "attempts", that.conf.MaxAttempts)
				that.deliverErr(apperror.ErrExhausted)
				return
			}

			delay := that.backoffDelay(attempt)
			log.Info("scheduling reconnect", "attempt", attempt, "delay", delay)

			select {
			case <-session:
				return
			case <-that.clock.After(delay):
			}

			if err := that.open(context.Background(), session); err != nil {
				log.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
				continue
			}

			that.mu.Lock()
			that.reconnecting = false
			that.mu.Unlock()

			log.Info("reconnected", "attempt", attempt)
			return
		}
	}()
}

func (that *Channel) backoffDelay(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 31 {
		return that.conf.BackoffCap
	}

	delay := that.conf.BackoffBase << shift
	if delay <= 0 || delay > that.conf.BackoffCap {
		return that.conf.BackoffCap
	}

	return delay
}

func (that *Channel) endpoint() string {
	that.mu.Lock()
	gameID, token := that.gameID, that.token
	that.mu.Unlock()

	return fmt.Sprintf("%s/ws/game/%d?token=%s", strings.TrimRight(that.conf.URL, "/"), gameID, url.QueryEscape(token))
}

func (that *Channel) headers() http.Header {
	header := http.Header{}
	if that.conf.ClientID != "" {
		header.Set("X-Client-Id", that.conf.ClientID)
	}

	return header
}

func (that *Channel) deliver(inbound Inbound) {
	select {
	case that.inbound <- inbound:
	default:
		that.logger.Warn("inbound buffer full, dropping message")
	}
}

// deliverErr must not lose the terminal error the way deliver may lose
// an ordinary message. With the connection gone nothing else produces,
// so evicting buffered messages always frees a slot.
func (that *Channel) deliverErr(err error) {
	inbound := Inbound{Err: err}

	for {
		select {
		case that.inbound <- inbound:
			return
		default:
		}

		select {
		case <-that.inbound:
			that.logger.Warn("evicting a buffered message for the terminal error")
		default:
		}
	}
}

func (that *Channel) ownsConn(conn *websocket.Conn) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.conn == conn
}

func (that *Channel) dropConn(conn *websocket.Conn) {
	that.mu.Lock()
	if that.conn == conn {
		that.conn = nil
	}
	that.mu.Unlock()
}

func stopped(session chan struct{}) bool {
	select {
	case <-session:
		return true
	default:
		return false
	}
}
