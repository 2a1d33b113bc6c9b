package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driverkit/pkg/connection"
	"driverkit/pkg/driver"
	"driverkit/pkg/drivers/custom"
	"driverkit/pkg/observer"
	"driverkit/pkg/observer/observertest"
	"driverkit/pkg/poll/polltest"
)

type testEnv struct {
	srv *httptest.Server
	hub *Hub
	rec *observertest.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	l := log.New()
	l.SetOutput(io.Discard)

	loop := driver.NewLoop()
	hub := NewHub(l)
	rec := &observertest.Recorder{}
	metrics := observer.NewMetrics()

	drv, err := driver.New(custom.New(), driver.Options{
		Connection:  connection.DefaultConfig(),
		Simulation:  true,
		Broadcaster: observer.NewFanout(hub, rec, metrics),
		Clock:       &polltest.Clock{},
		Dispatch:    loop.Dispatch,
		Logger:      l,
	})
	require.NoError(t, err)
	require.NoError(t, drv.GetProperties())

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	s := NewServer(Description{Name: "test"}, loop, []*driver.Driver{drv}, hub, l)
	s.SetMetrics(metrics.Registry())
	srv := httptest.NewServer(s.AddRoutes())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		cancel()
	})
	return &testEnv{srv: srv, hub: hub, rec: rec}
}

type response struct {
	ErrorNumber  int             `json:"error_number"`
	ErrorMessage string          `json:"error_message"`
	Value        json.RawMessage `json:"value"`
}

func (e *testEnv) call(t *testing.T, method, path, body string) (int, response) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func element(t *testing.T, raw json.RawMessage, name string) any {
	t.Helper()
	var snap struct {
		State    string `json:"state"`
		Elements []struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
		} `json:"elements"`
	}
	require.NoError(t, json.Unmarshal(raw, &snap))
	for _, e := range snap.Elements {
		if e.Name == name {
			return e.Value
		}
	}
	t.Fatalf("no element %s", name)
	return nil
}

func state(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var snap struct {
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(raw, &snap))
	return snap.State
}

const device = "/api/v1/My%20Custom%20Driver"

func TestDevices(t *testing.T) {
	e := newTestEnv(t)

	code, res := e.call(t, http.MethodGet, "/management/v1/devices", "")
	require.Equal(t, http.StatusOK, code)

	var infos []DeviceInfo
	require.NoError(t, json.Unmarshal(res.Value, &infos))
	assert.Equal(t, []DeviceInfo{{Name: "My Custom Driver", Interfaces: "0", State: "Disconnected", Simulated: true}}, infos)
}

func TestUnknownDevice(t *testing.T) {
	e := newTestEnv(t)
	code, res := e.call(t, http.MethodGet, "/api/v1/nope/properties", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, http.StatusNotFound, res.ErrorNumber)
}

func TestPropertiesFollowConnection(t *testing.T) {
	e := newTestEnv(t)

	code, _ := e.call(t, http.MethodGet, device+"/properties/SAY_COUNT", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, res := e.call(t, http.MethodGet, device+"/properties", "")
	require.Equal(t, http.StatusOK, code)
	var snaps []json.RawMessage
	require.NoError(t, json.Unmarshal(res.Value, &snaps))
	assert.Len(t, snaps, 5)

	code, _ = e.call(t, http.MethodPut, device+"/connect", "")
	require.Equal(t, http.StatusOK, code)

	code, res = e.call(t, http.MethodGet, device+"/properties/SAY_COUNT", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.0, element(t, res.Value, "SAY_COUNT"))

	code, _ = e.call(t, http.MethodPut, device+"/disconnect", "")
	require.Equal(t, http.StatusOK, code)
	code, _ = e.call(t, http.MethodGet, device+"/properties/SAY_COUNT", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSetProperty(t *testing.T) {
	e := newTestEnv(t)
	code, _ := e.call(t, http.MethodPut, device+"/connect", "")
	require.Equal(t, http.StatusOK, code)

	code, res := e.call(t, http.MethodPut, device+"/properties/SAY_HELLO", `{"switches":[{"name":"SAY_HELLO_DEFAULT","on":true}]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Idle", state(t, res.Value))
	assert.Equal(t, false, element(t, res.Value, "SAY_HELLO_DEFAULT"))

	_, res = e.call(t, http.MethodGet, device+"/properties/SAY_COUNT", "")
	assert.Equal(t, 1.0, element(t, res.Value, "SAY_COUNT"))
	assert.Equal(t, 1, e.rec.Count(observertest.OpUpdate, "SAY_HELLO"))
}

func TestSetPropertyErrors(t *testing.T) {
	e := newTestEnv(t)
	code, _ := e.call(t, http.MethodPut, device+"/connect", "")
	require.Equal(t, http.StatusOK, code)

	tests := []struct {
		name  string
		path  string
		body  string
		code  int
		alert bool
	}{
		{"Read only", "SAY_COUNT", `{"numbers":[{"name":"SAY_COUNT","value":3}]}`, http.StatusUnprocessableEntity, true},
		{"Kind mismatch", "WHAT_TO_SAY", `{"numbers":[{"name":"WHAT_TO_SAY","value":3}]}`, http.StatusUnprocessableEntity, true},
		{"Unknown", "NOPE", `{}`, http.StatusNotFound, false},
		{"Bad body", "SAY_HELLO", `{`, http.StatusBadRequest, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, res := e.call(t, http.MethodPut, device+"/properties/"+tc.path, tc.body)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.code, res.ErrorNumber)
			assert.NotEmpty(t, res.ErrorMessage)
			if tc.alert {
				assert.Equal(t, "Alert", state(t, res.Value))
			}
		})
	}
}

func TestSetPropertyNotPublished(t *testing.T) {
	e := newTestEnv(t)
	code, res := e.call(t, http.MethodPut, device+"/properties/SAY_HELLO", `{"switches":[{"name":"SAY_HELLO_DEFAULT","on":true}]}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Empty(t, res.Value)
}

type streamEvent struct {
	Type     string          `json:"type"`
	Name     string          `json:"name"`
	Snapshot json.RawMessage `json:"snapshot"`
}

func readEvent(t *testing.T, conn *websocket.Conn) streamEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev streamEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestStream(t *testing.T) {
	e := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var initial []string
	for i := 0; i < 5; i++ {
		ev := readEvent(t, conn)
		assert.Equal(t, EventDefine, ev.Type)
		initial = append(initial, ev.Name)
	}
	assert.Equal(t, []string{"CONNECTION", "DRIVER_INFO", "SIMULATION", "POLLING_PERIOD", "CONFIG_PROCESS"}, initial)

	require.Eventually(t, func() bool { return e.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	code, _ := e.call(t, http.MethodPut, device+"/properties/POLLING_PERIOD", `{"numbers":[{"name":"PERIOD_MS","value":2000}]}`)
	require.Equal(t, http.StatusOK, code)

	ev := readEvent(t, conn)
	assert.Equal(t, EventUpdate, ev.Type)
	assert.Equal(t, "POLLING_PERIOD", ev.Name)
	assert.Equal(t, 2000.0, element(t, ev.Snapshot, "PERIOD_MS"))
}

func TestDiscovery(t *testing.T) {
	l := log.New()
	l.SetOutput(io.Discard)

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewDiscoveryResponder("127.0.0.1", 8090, l).Serve(ctx, conn)

	client, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = client.Write([]byte(DiscoveryQuery))
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 128)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ApiPort": 8090}`, string(buf[:n]))
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	code, _ := e.call(t, http.MethodPut, device+"/connect", "")
	require.Equal(t, http.StatusOK, code)
	code, _ = e.call(t, http.MethodPut, device+"/properties/SAY_COUNT", `{"numbers":[{"name":"SAY_COUNT","value":3}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)

	res, err := http.Get(e.srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `driverkit_observer_broadcasts_total{device="My Custom Driver",type="define"}`)
	assert.Contains(t, string(body), `driverkit_observer_alerts_total{device="My Custom Driver",property="SAY_COUNT"} 1`)
}
