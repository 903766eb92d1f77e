package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"ecorelease/core"
	"ecorelease/core/events"
	"ecorelease/crypto"
	"ecorelease/indexer"
	"ecorelease/storage"
)

const testSecret = "test-secret"

type testEnv struct {
	server      *httptest.Server
	broadcaster *events.Broadcaster
	auth        AuthConfig
	owner       string
	oracle      string
	beneficiary string
}

type rpcReply struct {
	ID     interface{}     `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, limit RateLimit) *testEnv {
	t.Helper()
	codec := crypto.NewCodec("eco")
	human := func(fill byte) string {
		addr, err := codec.Humanize(bytes.Repeat([]byte{fill}, crypto.AddressLength))
		require.NoError(t, err)
		return addr
	}

	db, err := indexer.Open(indexer.DriverSQLite, filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	idx, err := indexer.New(db, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	broadcaster := events.NewBroadcaster(16)
	host := core.NewHost(storage.NewMemDB(), codec,
		core.WithEmitter(events.Multi{idx, broadcaster}),
		core.WithLogger(quietLogger()))

	auth := AuthConfig{HMACSecret: testSecret, Issuer: "ecorelease", Audience: "ecod"}
	srv := NewServer(Config{
		Host:        host,
		Events:      idx,
		Broadcaster: broadcaster,
		Auth:        auth,
		RateLimit:   limit,
		Logger:      quietLogger(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		server:      ts,
		broadcaster: broadcaster,
		auth:        auth,
		owner:       human(0x01),
		oracle:      human(0x02),
		beneficiary: human(0x03),
	}
}

func (e *testEnv) token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := IssueToken(e.auth, subject, time.Minute)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) call(t *testing.T, token, method string, params ...interface{}) (int, rpcReply) {
	t.Helper()
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		require.NoError(t, err)
		raw = append(raw, encoded)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: raw, ID: 1})
	require.NoError(t, err)
	return e.post(t, token, body)
}

func (e *testEnv) post(t *testing.T, token string, body []byte) (int, rpcReply) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var reply rpcReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	return resp.StatusCode, reply
}

func (e *testEnv) initMsg() map[string]interface{} {
	return map[string]interface{}{
		"region":              "delta",
		"beneficiary":         e.beneficiary,
		"oracle":              e.oracle,
		"ecostate":            5000,
		"total_tokens":        1000,
		"payout_start_height": 1,
		"payout_end_height":   100,
	}
}

func (e *testEnv) instantiate(t *testing.T) {
	t.Helper()
	status, reply := e.call(t, e.token(t, e.owner), MethodInstantiate, map[string]interface{}{"height": 1, "msg": e.initMsg()})
	require.Equal(t, http.StatusOK, status, "%+v", reply.Error)
	require.Nil(t, reply.Error)
}

func TestServerInvocationFlow(t *testing.T) {
	env := newTestEnv(t, RateLimit{})
	env.instantiate(t)

	status, reply := env.call(t, env.token(t, env.oracle), MethodExecute, map[string]interface{}{
		"height": 5,
		"msg":    map[string]interface{}{"updateecostate": map[string]interface{}{"ecostate": 5150}},
	})
	require.Equal(t, http.StatusOK, status)
	var res core.Result
	require.NoError(t, json.Unmarshal(reply.Result, &res))
	require.Equal(t, "update_ecostate", res.Action)
	require.True(t, strings.HasPrefix(res.Receipt, "0x"))

	status, reply = env.call(t, "", MethodQuery, map[string]interface{}{
		"msg": map[string]interface{}{"balance": map[string]string{"address": env.beneficiary}},
	})
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"balance":"150"}`, string(reply.Result))

	_, reply = env.call(t, "", MethodHeight)
	require.JSONEq(t, `{"height":5}`, string(reply.Result))

	_, reply = env.call(t, "", MethodEvents, map[string]interface{}{"limit": 10})
	var evts []EventResult
	require.NoError(t, json.Unmarshal(reply.Result, &evts))
	require.Len(t, evts, 2)
	require.Equal(t, "update_ecostate", evts[0].Action)
	require.Equal(t, "150", evts[0].Attributes["release_tokens"])
	require.Equal(t, "instantiated", evts[1].Action)
}

func TestServerRejectsUnauthenticatedCalls(t *testing.T) {
	env := newTestEnv(t, RateLimit{})

	status, reply := env.call(t, "", MethodInstantiate, map[string]interface{}{"height": 1, "msg": env.initMsg()})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, reply.Error.Code)

	other := env.auth
	other.HMACSecret = "other-secret"
	forged, err := IssueToken(other, env.owner, time.Minute)
	require.NoError(t, err)
	status, _ = env.call(t, forged, MethodInstantiate, map[string]interface{}{"height": 1, "msg": env.initMsg()})
	require.Equal(t, http.StatusUnauthorized, status)

	wrongAudience := env.auth
	wrongAudience.Audience = "somebody-else"
	tok, err := IssueToken(wrongAudience, env.owner, time.Minute)
	require.NoError(t, err)
	status, _ = env.call(t, tok, MethodInstantiate, map[string]interface{}{"height": 1, "msg": env.initMsg()})
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestServerMapsContractErrors(t *testing.T) {
	env := newTestEnv(t, RateLimit{})
	env.instantiate(t)

	// The oracle may not lock the contract.
	status, reply := env.call(t, env.token(t, env.oracle), MethodExecute, map[string]interface{}{
		"height": 2, "msg": map[string]interface{}{"lock": map[string]interface{}{}},
	})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeUnauthorized, reply.Error.Code)

	status, reply = env.call(t, env.token(t, env.oracle), MethodExecute, map[string]interface{}{
		"height": 500, "msg": map[string]interface{}{"updateecostate": map[string]interface{}{"ecostate": 6000}},
	})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeBusinessState, reply.Error.Code)

	status, _ = env.call(t, env.token(t, env.owner), MethodExecute, map[string]interface{}{
		"height": 50, "msg": map[string]interface{}{"unlock": map[string]interface{}{}},
	})
	require.Equal(t, http.StatusOK, status)

	status, reply = env.call(t, env.token(t, env.owner), MethodExecute, map[string]interface{}{
		"height": 3, "msg": map[string]interface{}{"lock": map[string]interface{}{}},
	})
	require.Equal(t, http.StatusConflict, status, "height regressed below 50")
	require.Equal(t, codeHostRejected, reply.Error.Code)

	status, reply = env.call(t, env.token(t, env.owner), MethodExecute, map[string]interface{}{
		"height": 600, "msg": map[string]interface{}{"mint": map[string]interface{}{}},
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, reply.Error.Code)

	status, reply = env.call(t, env.token(t, env.owner), MethodExecute, map[string]interface{}{
		"msg": map[string]interface{}{"lock": map[string]interface{}{}},
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "height is required", reply.Error.Message)

	status, reply = env.call(t, env.token(t, env.owner), MethodInstantiate, map[string]interface{}{"height": 700, "msg": env.initMsg()})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeLifecycle, reply.Error.Code)
}

func TestServerProtocolErrors(t *testing.T) {
	env := newTestEnv(t, RateLimit{})

	status, reply := env.post(t, "", []byte(`{not json`))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeParseError, reply.Error.Code)

	status, reply = env.call(t, "", "eco_unknown")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, reply.Error.Code)

	status, reply = env.call(t, "", MethodQuery, map[string]interface{}{
		"msg": map[string]interface{}{"state": map[string]interface{}{}},
	})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeLifecycle, reply.Error.Code)
}

func TestServerRateLimit(t *testing.T) {
	env := newTestEnv(t, RateLimit{RequestsPerMinute: 1, Burst: 2})

	for i := 0; i < 2; i++ {
		status, _ := env.call(t, "", MethodHeight)
		require.Equal(t, http.StatusOK, status)
	}
	status, reply := env.call(t, "", MethodHeight)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, reply.Error.Code)
}

func TestHealthzAndRequestID(t *testing.T) {
	env := newTestEnv(t, RateLimit{})

	resp, err := env.server.Client().Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "fixed-id")
	resp2, err := env.server.Client().Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, "fixed-id", resp2.Header.Get(requestIDHeader))
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, RateLimit{})
	env.instantiate(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/events?action=lock"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return env.broadcaster.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	for _, msg := range []string{"lock", "unlock", "lock"} {
		status, _ := env.call(t, env.token(t, env.owner), MethodExecute, map[string]interface{}{
			"height": 2, "msg": map[string]interface{}{msg: map[string]interface{}{}},
		})
		require.Equal(t, http.StatusOK, status)
	}

	for i := 0; i < 2; i++ {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var evt events.ContractEvent
		require.NoError(t, json.Unmarshal(data, &evt))
		require.Equal(t, "ecorelease.lock", evt.Type, fmt.Sprintf("message %d", i))
		require.Equal(t, env.owner, evt.Signer)
	}
}
