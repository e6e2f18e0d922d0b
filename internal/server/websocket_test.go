package server

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/franckalain/healthwise/internal/config"
	"github.com/franckalain/healthwise/internal/database"
	"github.com/franckalain/healthwise/internal/ml/mltest"
	"github.com/franckalain/healthwise/internal/scan"
)

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *testEnv) dial(t *testing.T) *wsClient {
	t.Helper()
	d := *websocket.DefaultDialer
	d.Jar = e.http.Jar
	conn, resp, err := d.Dial("ws"+strings.TrimPrefix(e.ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	resp.Body.Close()
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(typ string, data any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(outbound{Type: typ, Data: data}))
}

// next reads the next message and requires its type.
func (c *wsClient) next(typ string) envelope {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg envelope
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	require.Equal(c.t, typ, msg.Type, "data: %s", msg.Data)
	return msg
}

func (c *wsClient) nextState(want scan.State, camera bool) {
	c.t.Helper()
	var d struct {
		State           string `json:"state"`
		CameraAvailable bool   `json:"cameraAvailable"`
	}
	require.NoError(c.t, json.Unmarshal(c.next("state").Data, &d))
	assert.Equal(c.t, want.String(), d.State)
	assert.Equal(c.t, camera, d.CameraAvailable)
}

func (c *wsClient) nextError(kind string) notice {
	c.t.Helper()
	var n notice
	require.NoError(c.t, json.Unmarshal(c.next("error").Data, &n))
	assert.Equal(c.t, kind, n.Kind)
	return n
}

func TestWebSocketScanSession(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	env := newTestEnv(t)
	env.saveJane(t)
	c := env.dial(t)

	c.next("camera_start")
	c.nextState(scan.Idle, true)

	// A slow analysis keeps the session in Loading long enough to be
	// refused a second submission.
	env.model.Push(mltest.Reply{Text: imageVerdict, Delay: 300 * time.Millisecond})
	c.send("scan", map[string]any{"image": jpegURI(), "source": "camera"})
	c.next("camera_stop")
	c.nextState(scan.Loading, false)

	c.send("scan", map[string]any{"productId": "prod1"})
	busy := c.nextError("validation")
	assert.Equal(t, scan.ErrBusy.Msg, busy.Message)

	c.nextState(scan.Result, false)
	var res struct {
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
		Record struct {
			ProductName string `json:"productName"`
		} `json:"record"`
		Saved bool `json:"saved"`
	}
	require.NoError(t, json.Unmarshal(c.next("scan_result").Data, &res))
	assert.Equal(t, "risky", res.Result.Status)
	assert.Equal(t, "Choco Crunch", res.Record.ProductName)
	assert.True(t, res.Saved)

	c.send("voice", map[string]any{})
	c.next("voice_response")
	voice := env.model.Calls()[env.model.CallCount()-1]
	assert.Equal(t, "processVoiceCommand", voice.Name)
	assert.Contains(t, voice.Prompt.Text(), "Choco Crunch: calories 380 kcal")

	c.send("chat", map[string]any{"query": "Is honey better?"})
	var chat struct {
		Question struct{ Text string } `json:"question"`
		Answer   struct{ Text string } `json:"answer"`
	}
	require.NoError(t, json.Unmarshal(c.next("chat_response").Data, &chat))
	assert.Equal(t, "Is honey better?", chat.Question.Text)
	assert.Equal(t, "Choose **whole fruit** over juice.", chat.Answer.Text)

	c.send("scan_another", nil)
	c.next("camera_start")
	c.nextState(scan.Idle, true)

	c.send("voice", map[string]any{})
	c.nextError("validation")

	// Denied camera: capture is disabled, manual entry still works.
	c.send("camera_status", map[string]any{"granted": false, "reason": "NotAllowedError"})
	c.next("camera_stop")
	c.nextError("device_access")
	c.nextState(scan.Idle, false)

	c.send("scan", map[string]any{"image": jpegURI(), "source": "camera"})
	c.nextError("device_access")

	c.send("scan", map[string]any{"productId": "prod2"})
	c.nextState(scan.Loading, false)
	c.nextState(scan.Result, false)
	c.next("scan_result")

	c.send("bogus", nil)
	c.nextError("validation")

	require.NoError(t, c.conn.Close())
	assert.Eventually(t, func() bool {
		n := 0
		env.srv.clients.Range(func(_, _ any) bool { n++; return true })
		return n == 0
	}, 3*time.Second, 10*time.Millisecond)

	_, body := env.do(t, "GET", "/api/history", nil)
	assert.Len(t, body["items"], 2)
}

func TestWebSocketIncompleteProfile(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	defer c.conn.Close()

	c.next("camera_start")
	c.nextState(scan.Idle, true)

	c.send("scan", map[string]any{"productId": "prod1"})
	n := c.nextError("validation")
	assert.Contains(t, n.Message, "health profile")
	assert.Zero(t, env.model.CallCount())
}

func TestWebSocketVoiceRightAfterResult(t *testing.T) {
	env := newTestEnvWith(t, config.ServerConfig{HistoryLimit: 10}, func(s database.Store) database.Store {
		return slowHistory{Store: s, delay: 300 * time.Millisecond}
	})
	env.saveJane(t)
	c := env.dial(t)
	defer c.conn.Close()

	c.next("camera_start")
	c.nextState(scan.Idle, true)

	c.send("scan", map[string]any{"productId": "prod2"})
	c.next("camera_stop")
	c.nextState(scan.Loading, false)
	c.nextState(scan.Result, false)

	// The history write is still running; the result must already be usable.
	c.send("voice", map[string]any{"command": "Can I drink this?"})
	c.next("voice_response")
	voice := env.model.Calls()[env.model.CallCount()-1]
	assert.Contains(t, voice.Prompt.Text(), "Fizzy Cola Drink (assessed as unsafe)")

	c.next("scan_result")
}

func TestSpawnAfterCloseIsRefused(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ws := &wsSession{}
	ran := make(chan struct{})
	require.True(t, ws.spawn(func() { close(ran) }))
	<-ran

	ws.stopSpawning()
	assert.False(t, ws.spawn(func() { t.Error("spawned after close") }))
	ws.wg.Wait()
}
