package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/franckalain/healthwise/internal/catalog"
	"github.com/franckalain/healthwise/internal/failure"
	"github.com/franckalain/healthwise/internal/flows"
	"github.com/franckalain/healthwise/internal/models"
	"github.com/franckalain/healthwise/internal/scan"
	"github.com/franckalain/healthwise/internal/session"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 12 << 20
)

// envelope is the wire format in both directions: {"type": ..., "data": ...}.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type cameraStatusData struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason"`
}

type scanData struct {
	Image     string      `json:"image"`
	Source    scan.Source `json:"source"`
	ProductID string      `json:"productId"`
}

type voiceData struct {
	Command string `json:"command"`
}

type chatData struct {
	Query string `json:"query"`
}

type stateData struct {
	State           scan.State `json:"state"`
	CameraAvailable bool       `json:"cameraAvailable"`
}

type scanResultData struct {
	Result *models.AnalysisResult    `json:"result"`
	Record *models.ScanHistoryRecord `json:"record"`
	Saved  bool                      `json:"saved"`
}

type chatResponseData struct {
	Question models.ChatTurn `json:"question"`
	Answer   models.ChatTurn `json:"answer"`
}

// wsSession is one scan-page connection: its scan machine, its chat
// transcript and the analyses it has in flight.
type wsSession struct {
	id      string
	srv     *Server
	conn    *websocket.Conn
	user    session.Context
	machine *scan.Machine
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	spawnMu sync.Mutex
	closing bool
	wg      sync.WaitGroup

	writeMu sync.Mutex

	mu          sync.Mutex
	transcript  models.Transcript
	lastProduct string

	closeOnce sync.Once
}

// wsCamera asks the browser to open or release its camera.
type wsCamera struct {
	ws *wsSession
}

func (c wsCamera) Start(context.Context) error {
	return c.ws.send("camera_start", nil)
}

func (c wsCamera) Stop() {
	if err := c.ws.send("camera_stop", nil); err != nil {
		c.ws.logger.Debug().Err(err).Msg("camera_stop not delivered")
	}
}

func (s *Server) handleWebSocket(c echo.Context) error {
	sc, err := userOf(c)
	if err != nil {
		return err
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		zerolog.Ctx(c.Request().Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return nil
	}

	ws := s.newSession(conn, sc, *zerolog.Ctx(c.Request().Context()))
	s.clients.Store(ws.id, ws)
	defer s.clients.Delete(ws.id)

	ws.run()
	return nil
}

func (s *Server) newSession(conn *websocket.Conn, sc session.Context, logger zerolog.Logger) *wsSession {
	ws := &wsSession{
		id:   uuid.New().String(),
		srv:  s,
		conn: conn,
		user: sc,
	}
	ws.logger = logger.With().Str("conn_id", ws.id).Logger()
	ws.ctx, ws.cancel = context.WithCancel(ws.logger.WithContext(context.Background()))
	ws.machine = scan.New(wsCamera{ws}, scan.WithLogger(ws.logger), scan.WithObserver(ws.sendState))
	return ws
}

func (ws *wsSession) run() {
	defer ws.close()
	ws.conn.SetReadLimit(maxMessageSize)
	// Clear the deadline inherited from the HTTP server's read timeout.
	ws.conn.SetReadDeadline(time.Time{})

	ws.logger.Info().Msg("WebSocket client connected")
	if err := ws.machine.Enter(ws.ctx); err != nil {
		ws.sendError(err)
	}
	ws.sendState(ws.machine.State())

	for {
		_, message, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Warn().Err(err).Msg("Error reading message")
			}
			return
		}

		var msg envelope
		if err := json.Unmarshal(message, &msg); err != nil {
			ws.sendError(failure.Validationf("ws.read", "invalid message format"))
			continue
		}
		ws.handleMessage(msg)
	}
}

func (ws *wsSession) handleMessage(msg envelope) {
	switch msg.Type {
	case "camera_status":
		var d cameraStatusData
		if err := decodeData(msg.Data, &d); err != nil {
			ws.sendError(err)
			return
		}
		if !d.Granted {
			reason := d.Reason
			if reason == "" {
				reason = "permission denied"
			}
			ws.sendError(ws.machine.CameraUnavailable(errors.New(reason)))
			ws.sendState(ws.machine.State())
		}
	case "scan":
		var d scanData
		if err := decodeData(msg.Data, &d); err != nil {
			ws.sendError(err)
			return
		}
		ws.handleScan(d)
	case "scan_another":
		if err := ws.machine.Reenter(ws.ctx); err != nil {
			ws.sendError(err)
		}
	case "voice":
		var d voiceData
		if err := decodeData(msg.Data, &d); err != nil {
			ws.sendError(err)
			return
		}
		ws.handleVoice(d)
	case "chat":
		var d chatData
		if err := decodeData(msg.Data, &d); err != nil {
			ws.sendError(err)
			return
		}
		ws.handleChat(d)
	default:
		ws.sendError(failure.Validationf("ws.read", "unknown message type %q", msg.Type))
	}
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return failure.Validationf("ws.read", "invalid message data")
	}
	return nil
}

// handleScan validates on the read loop, then analyzes in the background so
// that further submissions during Loading are seen and refused.
func (ws *wsSession) handleScan(d scanData) {
	const op = "ws.scan"
	var (
		analyze  func(context.Context, models.HealthProfile) (*models.AnalysisResult, error)
		fallback string
	)
	switch {
	case d.ProductID != "":
		p, ok := catalog.Lookup(d.ProductID)
		if !ok {
			ws.sendError(failure.Validationf(op, "unknown product %q", d.ProductID))
			return
		}
		d.Source, fallback = scan.SourceManual, p.Name
		analyze = func(ctx context.Context, hp models.HealthProfile) (*models.AnalysisResult, error) {
			return ws.srv.flows.AnalyzeProduct(ctx, flows.AnalyzeProductInput{HealthProfile: hp, ProductDetails: p.Details})
		}
	default:
		img, err := models.ParseDataURI(d.Image)
		if err != nil {
			ws.sendError(failure.Validationf(op, "Could not read the image: %s", err.Error()))
			return
		}
		if d.Source == "" {
			d.Source = scan.SourceCamera
		}
		fallback = "Unknown product"
		analyze = func(ctx context.Context, hp models.HealthProfile) (*models.AnalysisResult, error) {
			return ws.srv.flows.AnalyzeProductImage(ctx, flows.AnalyzeProductImageInput{HealthProfile: hp, Image: img})
		}
	}

	profile, err := ws.srv.loadProfile(ws.ctx, ws.user.UserID)
	if err != nil {
		ws.sendError(err)
		return
	}
	if err := ws.machine.Begin(profile, d.Source); err != nil {
		ws.sendError(err)
		return
	}

	started := ws.spawn(func() {
		res, err := analyze(ws.ctx, profile)
		if err == nil {
			// Voice commands are accepted as soon as Result is announced.
			name := res.HistoryRecord(fallback, time.Now()).ProductName
			ws.mu.Lock()
			ws.lastProduct = describeResult(name, res)
			ws.mu.Unlock()
		}
		if ferr := ws.machine.Finish(res, err); ferr != nil {
			ws.logger.Error().Err(ferr).Msg("Scan finished out of order")
			return
		}
		if err != nil {
			ws.sendError(err)
			return
		}

		rec, saved := ws.srv.record(ws.ctx, ws.user.UserID, fallback, res)
		ws.send("scan_result", scanResultData{Result: res, Record: rec, Saved: saved})
	})
	if !started {
		ws.machine.Finish(nil, context.Canceled)
	}
}

// describeResult renders an analyzed product for voice questions.
func describeResult(name string, res *models.AnalysisResult) string {
	var b strings.Builder
	b.WriteString(name)
	if d := res.Details; d != nil {
		fmt.Fprintf(&b, ": calories %g kcal, sugar %gg, sodium %gmg, fat %gg", d.Calories, d.Sugar, d.Sodium, d.Fat)
	}
	fmt.Fprintf(&b, " (assessed as %s)", res.Status)
	return b.String()
}

func (ws *wsSession) handleVoice(d voiceData) {
	ws.mu.Lock()
	product := ws.lastProduct
	ws.mu.Unlock()
	if ws.machine.State() != scan.Result || product == "" {
		ws.sendError(failure.Validationf("ws.voice", "Please scan a product before using voice commands."))
		return
	}
	command := d.Command
	if strings.TrimSpace(command) == "" {
		command = defaultVoiceCommand
	}

	ws.spawn(func() {
		profile := ws.srv.profileOrDefault(ws.ctx, ws.user.UserID)
		out, err := ws.srv.flows.ProcessVoiceCommand(ws.ctx, flows.ProcessVoiceCommandInput{
			VoiceCommand:   command,
			HealthProfile:  profile.Summary(),
			ProductDetails: product,
		})
		if err != nil {
			ws.sendError(err)
			return
		}
		ws.send("voice_response", out)
	})
}

func (ws *wsSession) handleChat(d chatData) {
	if strings.TrimSpace(d.Query) == "" {
		ws.sendError(failure.Validationf("ws.chat", "query must not be blank"))
		return
	}

	ws.spawn(func() {
		profile := ws.srv.profileOrDefault(ws.ctx, ws.user.UserID)
		out, err := ws.srv.flows.AnswerHealthQuery(ws.ctx, flows.AnswerHealthQueryInput{
			Query:            d.Query,
			HealthConditions: profile.MedicalConditions,
		})
		if err != nil {
			ws.sendError(err)
			return
		}

		ws.mu.Lock()
		question := ws.transcript.Append(models.SenderUser, d.Query)
		answer := ws.transcript.Append(models.SenderAssistant, out.Answer)
		ws.mu.Unlock()
		ws.send("chat_response", chatResponseData{Question: question, Answer: answer})
	})
}

func (ws *wsSession) send(messageType string, data any) error {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()

	ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.conn.WriteJSON(outbound{Type: messageType, Data: data}); err != nil {
		ws.logger.Debug().Err(err).Str("type", messageType).Msg("Error sending message")
		return err
	}
	return nil
}

func (ws *wsSession) sendState(st scan.State) {
	ws.send("state", stateData{State: st, CameraAvailable: ws.machine.CameraAvailable()})
}

func (ws *wsSession) sendError(err error) {
	_, n := noticeFor(err)
	if n.Kind == failure.Generation.String() || n.Kind == failure.Persistence.String() || n.Kind == "internal" {
		ws.logger.Error().Err(err).Msg("Scan session failure")
	} else {
		ws.logger.Debug().Err(err).Msg("Scan session request refused")
	}
	ws.send("error", n)
}

// spawn runs fn in the background unless the session is closing. It
// reports whether fn was started.
func (ws *wsSession) spawn(fn func()) bool {
	ws.spawnMu.Lock()
	defer ws.spawnMu.Unlock()
	if ws.closing {
		return false
	}
	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		fn()
	}()
	return true
}

// stopSpawning refuses further background work. After it returns no
// wg.Add can happen, so wg.Wait is safe.
func (ws *wsSession) stopSpawning() {
	ws.spawnMu.Lock()
	ws.closing = true
	ws.spawnMu.Unlock()
}

// close cancels in-flight analyses, waits for them and releases the camera.
func (ws *wsSession) close() {
	ws.closeOnce.Do(func() {
		ws.stopSpawning()
		ws.cancel()
		ws.conn.Close()
		ws.wg.Wait()
		ws.machine.Close()
		ws.logger.Info().Msg("WebSocket client disconnected")
	})
}
