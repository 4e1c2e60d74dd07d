// Command wssmoke is a CI-friendly smoke test for a running chat server.
//
// It validates:
//   - sign-up (an existing account is fine) and sign-in
//   - handshake sid issuance with the access token
//   - socket connect with subprotocol selection
//   - fan-out round trip via the user's own presence event
//   - one-time sid semantics (replay closes with 1008)
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "github.com/haontuhcmut/chat-app/contracts/realtime/v1"

	"github.com/coder/websocket"
	"github.com/spf13/pflag"
)

const (
	defaultSubprotocol = "chat.realtime.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type options struct {
	baseURL  string
	origin   string
	username string
	email    string
	password string
	timeout  time.Duration
	verbose  bool
}

func main() {
	var o options
	pflag.StringVar(&o.baseURL, "url", "http://127.0.0.1:8080", "server base URL")
	pflag.StringVar(&o.origin, "origin", "http://localhost", "Origin header to send on the socket handshake")
	pflag.StringVar(&o.username, "username", "smoke", "account username (created when missing)")
	pflag.StringVar(&o.email, "email", "smoke@example.com", "account email")
	pflag.StringVar(&o.password, "password", "smoke-test-password", "account password")
	pflag.DurationVar(&o.timeout, "timeout", 7*time.Second, "per-step timeout")
	pflag.BoolVarP(&o.verbose, "verbose", "v", false, "verbose output")
	pflag.Parse()

	base, err := validateBaseURL(o.baseURL)
	if err != nil {
		fatalf("invalid --url: %v", err)
	}
	if err := validateOrigin(o.origin); err != nil {
		fatalf("invalid --origin: %v", err)
	}

	root := context.Background()
	client := &http.Client{Timeout: o.timeout}

	mustSignUp(client, base, o)
	access, userID := mustSignIn(client, base, o)
	if o.verbose {
		fmt.Printf("signed in: user_id=%s\n", userID)
	}

	sid := mustHandshake(client, base, access)
	wsURL := wsURLFor(base, sid)

	conn := mustConnect(root, wsURL, o.origin, o.timeout)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "smoke done") }()

	mustReadPresence(root, conn, userID, o.timeout)

	mustRejectReplay(root, wsURL, o.origin, o.timeout)

	fmt.Printf("OK: user_id=%s sid_replay=rejected\n", userID)
}

func validateBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func wsURLFor(base *url.URL, sid string) string {
	u := *base
	u.Scheme = "ws"
	if base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"sid": {sid}}.Encode()
	return u.String()
}

func mustSignUp(client *http.Client, base *url.URL, o options) {
	status, body := doJSON(client, http.MethodPost, base.JoinPath("/auth/signup").String(), "", map[string]string{
		"email":    o.email,
		"username": o.username,
		"password": o.password,
	})
	switch status {
	case http.StatusCreated, http.StatusConflict:
	default:
		fatalf("signup: status=%d body=%s", status, body)
	}
}

func mustSignIn(client *http.Client, base *url.URL, o options) (access, userID string) {
	status, body := doJSON(client, http.MethodPost, base.JoinPath("/auth/signin").String(), "", map[string]string{
		"login":    o.username,
		"password": o.password,
	})
	if status != http.StatusOK {
		fatalf("signin: status=%d body=%s", status, body)
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		fatalf("signin: decode: %v", err)
	}
	if resp.AccessToken == "" || resp.User.ID == "" {
		fatalf("signin: missing access_token or user.id")
	}
	return resp.AccessToken, resp.User.ID
}

func mustHandshake(client *http.Client, base *url.URL, access string) string {
	status, body := doJSON(client, http.MethodGet, base.JoinPath("/ws/handshake").String(), access, nil)
	if status != http.StatusOK {
		fatalf("handshake: status=%d body=%s", status, body)
	}

	var resp struct {
		SID       string `json:"sid"`
		ExpiresIn int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		fatalf("handshake: decode: %v", err)
	}
	if resp.SID == "" || resp.ExpiresIn <= 0 {
		fatalf("handshake: bad response %s", body)
	}
	return resp.SID
}

func doJSON(client *http.Client, method, target, bearer string, in any) (int, []byte) {
	var rd io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			fatalf("encode %s: %v", target, err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, target, rd)
	if err != nil {
		fatalf("request %s: %v", target, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		fatalf("read %s: %v", target, err)
	}
	return resp.StatusCode, body
}

func dial(parent context.Context, wsURL, origin string, stepTimeout time.Duration) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if got := conn.Subprotocol(); got != defaultSubprotocol {
		_ = conn.CloseNow()
		return nil, fmt.Errorf("subprotocol mismatch: got=%q want=%q", got, defaultSubprotocol)
	}
	conn.SetReadLimit(maxReadBytes)
	return conn, nil
}

func mustConnect(parent context.Context, wsURL, origin string, stepTimeout time.Duration) *websocket.Conn {
	conn, err := dial(parent, wsURL, origin, stepTimeout)
	if err != nil {
		fatalf("connect: %v", err)
	}
	return conn
}

// The server publishes presence to the user's own key on first connect, so
// seeing it proves publish -> bus -> listener -> registry -> socket.
func mustReadPresence(parent context.Context, conn *websocket.Conn, userID string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			fatalf("read presence: %v", err)
		}

		var ev v1.PresenceEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			fatalf("bad json: %v", err)
		}
		if ev.Event != v1.EventPresence {
			continue
		}
		if ev.UserID != userID || !ev.Online {
			fatalf("presence mismatch: got user_id=%q online=%v", ev.UserID, ev.Online)
		}
		return
	}
}

func mustRejectReplay(parent context.Context, wsURL, origin string, stepTimeout time.Duration) {
	conn, err := dial(parent, wsURL, origin, stepTimeout)
	if err != nil {
		fatalf("replay connect: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	_, _, err = conn.Read(ctx)
	if code := websocket.CloseStatus(err); code != websocket.StatusPolicyViolation {
		fatalf("replay: expected close 1008, got code=%d err=%v", code, err)
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
