package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/gravitas-games/economy/internal/catalog"
	"github.com/gravitas-games/economy/internal/network"
	"github.com/gravitas-games/economy/internal/shop"
)

func newTestServer(t *testing.T) (*httptest.Server, *TokenValidator) {
	t.Helper()
	cat, combos, err := catalog.Parse([]byte(testItems))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	defs, err := shop.Parse([]byte(testShops))
	if err != nil {
		t.Fatalf("parse shops: %v", err)
	}
	cfg := testConfig()
	cfg.Auth = testAuthConfig()
	world, err := NewWorld(cfg, cat, combos, defs, WithWorldLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	validator, err := NewTokenValidator(cfg.Auth, nil, quietLogger())
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	srv := NewWithWorld(cfg, world, validator, quietLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})
	return ts, validator
}

func dial(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, msgType string, payload any) {
	t.Helper()
	data, err := network.Encode(msgType, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// await reads until a message of msgType arrives.
func await(t *testing.T, ws *websocket.Conn, msgType string) network.Envelope {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		env, err := network.Decode(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Type == msgType {
			return env
		}
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	ts, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, err)
	if assert.NotNil(t, resp) {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer nonsense")
	_, resp, err = websocket.DefaultDialer.Dial(url, header)
	assert.Error(t, err)
	if assert.NotNil(t, resp) {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestWebSocketJoinAndTrade(t *testing.T) {
	ts, validator := newTestServer(t)
	tok1, _ := validator.IssueToken("p1", "alice")
	tok2, _ := validator.IssueToken("p2", "bob")

	a := dial(t, ts, tok1)
	send(t, a, network.MsgTypeBuyRequest, network.BuyRequest{RequestID: "early", ShopID: "general", ItemID: "apple", Quantity: 1})
	var e network.ErrorPayload
	assert.NoError(t, await(t, a, network.MsgTypeError).Into(&e))
	assert.Equal(t, network.CodeNotAuthenticated, e.Code, "requests before join are refused")

	send(t, a, network.MsgTypeJoin, struct{}{})
	var welcome network.WelcomePayload
	assert.NoError(t, await(t, a, network.MsgTypeWelcome).Into(&welcome))
	assert.Equal(t, "p1", welcome.PlayerID)
	assert.Equal(t, "alice", welcome.Username)
	await(t, a, network.MsgTypeFloorState)

	b := dial(t, ts, tok2)
	send(t, b, network.MsgTypeJoin, struct{}{})
	await(t, b, network.MsgTypeFloorState)
	var joined network.PlayerJoinedPayload
	assert.NoError(t, await(t, a, network.MsgTypePlayerJoined).Into(&joined))
	assert.Equal(t, "p2", joined.PlayerID)

	send(t, a, network.MsgTypeBuyRequest, network.BuyRequest{RequestID: "r1", ShopID: "general", ItemID: "apple", Quantity: 1})
	var confirmed network.TradeConfirmed
	assert.NoError(t, await(t, a, network.MsgTypeBuyConfirmed).Into(&confirmed))
	assert.Equal(t, "r1", confirmed.RequestID)

	var update network.ShopUpdate
	assert.NoError(t, await(t, b, network.MsgTypeShopUpdate).Into(&update))
	assert.Equal(t, 4, update.Stock["apple"].Quantity)

	a.Close()
	var left network.PlayerLeftPayload
	assert.NoError(t, await(t, b, network.MsgTypePlayerLeft).Into(&left))
	assert.Equal(t, "p1", left.PlayerID)
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["players"])
}
