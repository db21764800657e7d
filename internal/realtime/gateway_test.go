package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/tutorlink/session-core/internal/auth"
	"github.com/tutorlink/session-core/internal/domain"
	"github.com/tutorlink/session-core/internal/repository"
)

type gatewayFixture struct {
	*routerFixture
	lifecycle *auth.Lifecycle
	server    *httptest.Server
	gateway   *Gateway
}

func newGatewayFixture(t *testing.T, cfg GatewayConfig) *gatewayFixture {
	t.Helper()
	rf := newRouterFixture(t)
	tokens := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  "access-secret-access-secret-access-secret",
		RefreshSecret: "refresh-secret-refresh-secret-refresh-secret",
		Issuer:        "session-core-test",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
	})
	lifecycle := auth.NewLifecycle(tokens, repository.NewMemoryRevocationStore(), repository.NewMemoryAttemptStore(),
		auth.LifecycleConfig{StoreTimeout: time.Second, MaxLoginAttempts: 5, LoginWindow: time.Minute}, nil, nil)

	gw := NewGateway(lifecycle, rf.router, cfg, nil)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		gw.CloseAll()
		srv.Close()
	})
	return &gatewayFixture{routerFixture: rf, lifecycle: lifecycle, server: srv, gateway: gw}
}

func (f *gatewayFixture) wsURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
}

func (f *gatewayFixture) accessToken(t *testing.T, u *domain.User) string {
	t.Helper()
	pair, err := f.lifecycle.Issue(u.Principal())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return pair.AccessToken
}

func (f *gatewayFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, f.wsURL(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	env, err := NewEnvelope(event, data, time.Now())
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	b, _ := json.Marshal(env)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads frames until one carries the wanted event.
func readUntil(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		env, err := readEnvelope(ctx, conn)
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return env
		}
	}
}

func waitOnline(t *testing.T, reg Registry, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !reg.IsOnline(id) {
		if time.Now().After(deadline) {
			t.Fatalf("%s never came online", id)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGatewayRejectsMissingOrInvalidToken(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	refresh, _ := f.lifecycle.Issue(f.student.Principal())

	cases := map[string]string{
		"missing":       "",
		"garbage":       "not-a-jwt",
		"refresh token": refresh.RefreshToken,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			opts := &websocket.DialOptions{}
			if token != "" {
				opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
			}
			_, resp, err := websocket.Dial(ctx, f.wsURL(), opts)
			if err == nil {
				t.Fatalf("expected handshake failure")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %v", resp)
			}
		})
	}
	if f.router.Registry().Len() != 0 {
		t.Fatalf("rejected handshakes must not register connections")
	}
}

func TestGatewayRejectsRevokedToken(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	pair, _ := f.lifecycle.Issue(f.student.Principal())
	if err := f.lifecycle.Logout(context.Background(), pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, f.wsURL()+"?token="+pair.AccessToken, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked token, got err=%v resp=%v", err, resp)
	}
}

func TestGatewayRejectsDisallowedOrigin(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{AllowedOrigins: []string{"https://app.example.com"}})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, f.wsURL(), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + f.accessToken(t, f.student)},
			"Origin":        []string{"https://evil.example.org"},
		},
	})
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got err=%v resp=%v", err, resp)
	}
}

func TestGatewayQueryTokenAndGetUsers(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, f.wsURL()+"?token="+f.accessToken(t, f.student), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	send(t, conn, EventGetUsers, nil)
	env := readUntil(t, conn, EventUsers)
	var peers []PeerPayload
	if err := json.Unmarshal(env.Data, &peers); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(peers) != 1 || peers[0].ID != f.teacher.ID || peers[0].Role != "teacher" {
		t.Fatalf("unexpected peers %+v", peers)
	}
}

func TestGatewaySendMessageReachesBothParties(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	teacher := f.dial(t, f.accessToken(t, f.teacher))
	waitOnline(t, f.router.Registry(), f.teacher.ID)
	student := f.dial(t, f.accessToken(t, f.student))
	waitOnline(t, f.router.Registry(), f.student.ID)

	send(t, teacher, EventSendMessage, SendMessageRequest{RecipientID: f.student.ID, Content: "welcome"})

	for name, conn := range map[string]*websocket.Conn{"recipient": student, "sender": teacher} {
		env := readUntil(t, conn, EventMessage)
		var msg MessagePayload
		_ = json.Unmarshal(env.Data, &msg)
		if msg.Content != "welcome" || msg.SenderID != f.teacher.ID {
			t.Fatalf("%s got unexpected message %+v", name, msg)
		}
	}

	send(t, student, EventGetMessages, GetMessagesRequest{PeerID: f.teacher.ID})
	env := readUntil(t, student, EventMessages)
	var history []MessagePayload
	_ = json.Unmarshal(env.Data, &history)
	if len(history) != 1 || !history[0].Read {
		t.Fatalf("expected one read message, got %+v", history)
	}
	readUntil(t, teacher, EventMessagesRead)
}

func TestGatewayReportsInvalidMessage(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	conn := f.dial(t, f.accessToken(t, f.teacher))
	send(t, conn, EventSendMessage, SendMessageRequest{RecipientID: f.student.ID, Content: "   "})

	env := readUntil(t, conn, EventError)
	var payload ErrorPayload
	_ = json.Unmarshal(env.Data, &payload)
	if payload.Code != "invalid_message" {
		t.Fatalf("expected invalid_message, got %s", payload.Code)
	}
}

func TestGatewayAnswersUndecodableFramesAndStaysOpen(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	conn := f.dial(t, f.accessToken(t, f.teacher))

	frames := []string{
		`not json`,
		`{"event":"getUsers","ts":"yesterday"}`,
		`{"event":42}`,
	}
	for _, frame := range frames {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := conn.Write(ctx, websocket.MessageText, []byte(frame))
		cancel()
		if err != nil {
			t.Fatalf("write %q: %v", frame, err)
		}
		env := readUntil(t, conn, EventError)
		var payload ErrorPayload
		_ = json.Unmarshal(env.Data, &payload)
		if payload.Code != "bad_json" {
			t.Fatalf("frame %q: expected bad_json, got %s", frame, payload.Code)
		}
	}

	send(t, conn, EventGetUsers, nil)
	readUntil(t, conn, EventUsers)
}

func TestGatewayRateLimitClosesConnection(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{RateEvents: 3, RateWindow: time.Minute})
	conn := f.dial(t, f.accessToken(t, f.student))
	waitOnline(t, f.router.Registry(), f.student.ID)

	for i := 0; i < 4; i++ {
		send(t, conn, "ping", nil)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if ctx.Err() != nil {
				t.Fatalf("connection was not closed after exceeding the rate limit")
			}
			break
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for f.router.Registry().IsOnline(f.student.ID) {
		if time.Now().After(deadline) {
			t.Fatalf("rate-limited connection still registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGatewayCloseAllEndsConnections(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	conn := f.dial(t, f.accessToken(t, f.student))
	waitOnline(t, f.router.Registry(), f.student.ID)

	f.gateway.CloseAll()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if ctx.Err() != nil {
				t.Fatalf("connection survived CloseAll")
			}
			return
		}
	}
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"https://app.example.com:8443", "*", "localhost"})
	want := map[string]bool{"app.example.com": true, "app.example.com:8443": true, "localhost": true}
	if len(got) != len(want) {
		t.Fatalf("unexpected patterns %v", got)
	}
	for _, p := range got {
		if !want[p] {
			t.Fatalf("unexpected pattern %s", p)
		}
	}
}
