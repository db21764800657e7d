package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/tutorlink/session-core/internal/auth"
	"github.com/tutorlink/session-core/internal/domain"
)

const (
	maxFrameBytes     = 64 << 10
	maxPingFailures   = 3
	closeGrace        = time.Second
	defaultWriteLimit = 5 * time.Second
	defaultReadIdle   = 2 * time.Minute
	defaultHeartbeat  = 25 * time.Second
	defaultPingWait   = 5 * time.Second
)

// errMalformedFrame marks a frame that arrived intact but could not be decoded.
var errMalformedFrame = errors.New("malformed frame")

// TokenVerifier authenticates the handshake.
type TokenVerifier interface {
	Verify(ctx context.Context, token string, expected domain.TokenType) (domain.TokenClaims, error)
}

// GatewayConfig holds connection policy.
type GatewayConfig struct {
	AllowedOrigins   []string
	OriginRequired   bool
	SendQueueSize    int
	WriteTimeout     time.Duration
	ReadIdleTimeout  time.Duration
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration
	RateEvents       int
	RateWindow       time.Duration
}

// Gateway is the WebSocket entrypoint. The access token is verified before
// the upgrade, so unauthenticated peers never reach the event loop.
type Gateway struct {
	verifier       TokenVerifier
	router         *Router
	logger         *zap.Logger
	cfg            GatewayConfig
	originPatterns []string
	anyOrigin      bool

	base     context.Context
	stopBase context.CancelFunc
}

// NewGateway constructs a gateway.
func NewGateway(verifier TokenVerifier, router *Router, cfg GatewayConfig, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteLimit
	}
	if cfg.ReadIdleTimeout <= 0 {
		cfg.ReadIdleTimeout = defaultReadIdle
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = defaultHeartbeat
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = defaultPingWait
	}
	g := &Gateway{verifier: verifier, router: router, logger: logger, cfg: cfg}
	g.base, g.stopBase = context.WithCancel(context.Background())
	for _, o := range cfg.AllowedOrigins {
		if strings.TrimSpace(o) == "*" {
			g.anyOrigin = true
		}
	}
	g.originPatterns = originPatterns(cfg.AllowedOrigins)
	return g
}

// CloseAll ends every open connection. Hijacked connections are not closed
// by http.Server.Shutdown, so the process calls this during shutdown.
func (g *Gateway) CloseAll() {
	g.stopBase()
}

// Handler mounts the gateway at /ws.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", g)
	return mux
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.logger.Info("ws reject origin", zap.String("origin", r.Header.Get("Origin")), zap.Error(err))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	token := handshakeToken(r)
	if token == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	claims, err := g.verifier.Verify(r.Context(), token, domain.TokenTypeAccess)
	if err != nil {
		g.logger.Info("ws reject auth", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.anyOrigin,
	})
	if err != nil {
		g.logger.Warn("ws accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(claims.Principal(), ulid.Make().String(), g.cfg.SendQueueSize)
	g.serve(r.Context(), conn, client)
}

func (g *Gateway) serve(parent context.Context, conn *websocket.Conn, client *Client) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	stop := context.AfterFunc(g.base, cancel)
	defer stop()

	log := g.logger.With(zap.String("principal_id", client.Principal.ID), zap.String("session_id", client.SessionID))

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.router.OnDisconnect(client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	g.router.OnConnect(client)
	log.Info("ws connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Outbound():
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					log.Info("ws write failed", zap.Error(err))
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				pingCtx, pingCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(pingCtx)
				pingCancel()
				if err != nil {
					failures++
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	limiter := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow, time.Now)

	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()
		if err != nil {
			if errors.Is(err, errMalformedFrame) {
				g.sendError(client, "bad_json", "invalid JSON")
				continue
			}
			if status := websocket.CloseStatus(err); status == -1 &&
				!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) &&
				!errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				log.Info("ws read failed", zap.Error(err))
			}
			break
		}

		if !limiter.Allow() {
			g.sendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break
		}

		g.dispatch(ctx, client, env)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone
	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
	log.Info("ws disconnected")
}

func (g *Gateway) dispatch(ctx context.Context, client *Client, env Envelope) {
	switch env.Event {
	case EventGetUsers:
		peers, err := g.router.ListReachablePeers(ctx, client.Principal)
		if err != nil {
			g.sendFailure(client, err)
			return
		}
		g.reply(client, EventUsers, NewPeerPayloads(peers))

	case EventGetMessages:
		var req GetMessagesRequest
		if err := decodeData(env.Data, &req); err != nil {
			g.sendError(client, "bad_request", err.Error())
			return
		}
		msgs, err := g.router.GetMessages(ctx, client.Principal.ID, req.PeerID)
		if err != nil {
			g.sendFailure(client, err)
			return
		}
		g.reply(client, EventMessages, NewMessagePayloads(msgs))

	case EventSendMessage:
		var req SendMessageRequest
		if err := decodeData(env.Data, &req); err != nil {
			g.sendError(client, "bad_request", err.Error())
			return
		}
		if _, err := g.router.SendMessage(ctx, client.Principal.ID, req.RecipientID, req.Content); err != nil {
			g.sendFailure(client, err)
		}

	default:
		g.sendError(client, "unsupported", fmt.Sprintf("unsupported event: %s", env.Event))
	}
}

func (g *Gateway) reply(client *Client, event string, payload any) {
	env, err := NewEnvelope(event, payload, time.Now())
	if err != nil {
		g.logger.Error("encode reply", zap.String("event", event), zap.Error(err))
		return
	}
	client.Enqueue(env)
}

func (g *Gateway) sendError(client *Client, code, message string) {
	g.reply(client, EventError, ErrorPayload{Code: code, Message: message})
}

func (g *Gateway) sendFailure(client *Client, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidMessage):
		g.sendError(client, "invalid_message", err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		g.sendError(client, "not_found", "user not found")
	case errors.Is(err, domain.ErrPersistenceUnavailable):
		g.logger.Warn("realtime storage failure", zap.Error(err))
		g.sendError(client, "persistence_unavailable", "temporarily unavailable, retry")
	default:
		g.logger.Error("realtime handler failed", zap.Error(err))
		g.sendError(client, "internal_error", "internal error")
	}
}

func decodeData(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	return nil
}

// handshakeToken reads a bearer header first, then the token query parameter.
func handshakeToken(r *http.Request) string {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}
	if g.anyOrigin {
		return nil
	}
	host := originHost(origin)
	for _, allowed := range g.cfg.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == origin || (host != "" && host == originHost(allowed)) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHost(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// originPatterns derives the host patterns websocket.Accept checks
// cross-origin requests against, so both layers agree.
func originPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHost(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
		// Accept matches against host:port, so keep the port form too.
		if u, err := url.Parse(strings.TrimSpace(a)); err == nil && u.Host != "" {
			seen[strings.ToLower(u.Host)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
