package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, metrics http.Handler) (*Server, *httptest.Server) {
	t.Helper()
	s, err := NewServer(Config{Handler: newTestHandler(t), Metrics: metrics, Logger: testLogger()})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{Logger: testLogger()})
	assert.Error(t, err)

	_, err = NewServer(Config{Handler: newTestHandler(t), Port: 70000, Logger: testLogger()})
	assert.Error(t, err)
}

func TestServer_HTTPRPC(t *testing.T) {
	_, ts := newTestServer(t, nil)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"message":"over http"}}}`
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/rpc", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(TraceHeader, "trace-123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "trace-123", resp.Header.Get(TraceHeader))

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Nil(t, out.Error)
	assert.Equal(t, "1", string(out.ID))
	assert.Contains(t, fmt.Sprint(out.Result), "over http")
}

func TestServer_HTTPRPCGeneratesTraceID(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/rpc", "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(TraceHeader))
}

func TestServer_HTTPRPCNotification(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/rpc", "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestServer_HTTPRPCRejectsGet(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/rpc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_Healthz(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServer_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("tools_registered 2\n"))
	})
	_, ts := newTestServer(t, metrics)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tools_registered 2")

	_, bare := newTestServer(t, nil)
	resp, err = http.Get(bare.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServer_WebSocket(t *testing.T) {
	_, ts := newTestServer(t, nil)
	conn := dialWS(t, ts)

	messages := []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{}}}`,
	}
	for _, msg := range messages {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	byID := make(map[string]Response)
	for len(byID) < 3 {
		var resp Response
		require.NoError(t, conn.ReadJSON(&resp))
		byID[string(resp.ID)] = resp
	}

	assert.Nil(t, byID["1"].Error)
	assert.Nil(t, byID["2"].Error)
	require.NotNil(t, byID["3"].Error)
	assert.Equal(t, -32602, byID["3"].Error.Code)
}

func TestServer_StartStop(t *testing.T) {
	s, err := NewServer(Config{Host: "127.0.0.1", Port: 0, Handler: newTestHandler(t), Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	_, err = http.Get("http://" + s.Addr() + "/healthz")
	assert.Error(t, err)
}
