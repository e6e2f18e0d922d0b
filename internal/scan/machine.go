// Package scan holds the interaction state machine of one scan session:
// Idle, Loading, then Result or Error, and back to Idle on "scan another".
// The machine owns the camera lease and guarantees it is released whenever
// the session leaves Idle or is torn down.
package scan

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/franckalain/healthwise/internal/failure"
	"github.com/franckalain/healthwise/internal/models"
)

// State is the machine state.
type State int

const (
	Idle State = iota
	Loading
	Result
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Result:
		return "result"
	case Error:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state name in JSON messages.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Source is where the product input came from.
type Source string

const (
	SourceCamera Source = "camera"
	SourceUpload Source = "upload"
	SourceManual Source = "manual"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceCamera, SourceUpload, SourceManual:
		return true
	}
	return false
}

// Camera is the capture device of the session.
type Camera interface {
	// Start acquires the device.
	Start(ctx context.Context) error
	// Stop releases the device. It is safe to call when not started.
	Stop()
}

// Sentinel refusals.
var (
	ErrBusy     = &failure.Error{Kind: failure.Validation, Op: "scan.Begin", Msg: "an analysis is already in progress"}
	ErrNotIdle  = &failure.Error{Kind: failure.Validation, Op: "scan", Msg: "scan session is not ready for a new scan"}
	ErrNotReady = &failure.Error{Kind: failure.Validation, Op: "scan.Reenter", Msg: "no finished scan to leave"}
	ErrClosed   = &failure.Error{Kind: failure.Validation, Op: "scan", Msg: "scan session is closed"}
)

// Machine is safe for concurrent use.
type Machine struct {
	mu       sync.Mutex
	cam      Camera
	state    State
	camOn    bool
	camErr   error
	result   *models.AnalysisResult
	err      error
	closed   bool
	observer func(State)
	logger   zerolog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithObserver registers fn to be called after every state change. It runs
// outside the machine lock.
func WithObserver(fn func(State)) Option {
	return func(m *Machine) { m.observer = fn }
}

// WithLogger sets the machine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// New returns a machine in Idle with the camera not yet acquired.
func New(cam Camera, opts ...Option) *Machine {
	m := &Machine{cam: cam, state: Idle, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enter acquires the camera for the Idle state. A failure is returned as a
// DeviceAccess failure; capture is then disabled but upload and manual
// entry remain available.
func (m *Machine) Enter(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.state != Idle {
		return ErrNotIdle
	}
	return m.acquireLocked(ctx)
}

func (m *Machine) acquireLocked(ctx context.Context) error {
	if m.cam == nil {
		m.camOn = false
		m.camErr = failure.DeviceAccessf("scan.Enter", nil, "no camera attached")
		return m.camErr
	}
	if m.camOn {
		return nil
	}
	if err := m.cam.Start(ctx); err != nil {
		m.cam.Stop()
		m.camOn = false
		m.camErr = failure.DeviceAccessf("scan.Enter", err, "camera access denied")
		m.logger.Warn().Err(err).Msg("Camera unavailable")
		return m.camErr
	}
	m.camOn, m.camErr = true, nil
	return nil
}

// CameraUnavailable records that the acquired camera was denied or lost
// after Start returned. The camera is released and capture disabled.
func (m *Machine) CameraUnavailable(reason error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cam != nil {
		m.cam.Stop()
	}
	m.camOn = false
	m.camErr = failure.DeviceAccessf("scan.Camera", reason, "camera access denied")
	m.logger.Warn().Err(reason).Msg("Camera unavailable")
	return m.camErr
}

// CameraAvailable reports whether capture is possible.
func (m *Machine) CameraAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camOn
}

// Begin starts an analysis. It is only allowed from Idle and with a
// complete profile. The camera is released before entering Loading.
func (m *Machine) Begin(profile models.HealthProfile, source Source) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.state == Loading:
		m.mu.Unlock()
		return ErrBusy
	case m.state != Idle:
		m.mu.Unlock()
		return ErrNotIdle
	case !source.Valid():
		m.mu.Unlock()
		return failure.Validationf("scan.Begin", "unknown scan source %q", source)
	case !profile.Complete():
		m.mu.Unlock()
		return failure.Validationf("scan.Begin", "complete your health profile (name and medical conditions) before scanning")
	case source == SourceCamera && !m.camOn:
		err := m.camErr
		m.mu.Unlock()
		return failure.DeviceAccessf("scan.Begin", err, "camera is unavailable, upload an image instead")
	}
	m.releaseLocked()
	m.state = Loading
	m.result, m.err = nil, nil
	m.logger.Debug().Str("source", string(source)).Msg("Scan started")
	m.mu.Unlock()
	m.notify(Loading)
	return nil
}

// Finish ends the running analysis with its outcome.
func (m *Machine) Finish(result *models.AnalysisResult, err error) error {
	m.mu.Lock()
	if m.state != Loading {
		m.mu.Unlock()
		return fmt.Errorf("scan: finish called in state %s", m.state)
	}
	next := Result
	if err != nil || result == nil {
		next = Error
		if err == nil {
			err = failure.Generationf("scan.Finish", nil, "analysis produced no result")
		}
		m.err = err
	} else {
		m.result = result
	}
	m.state = next
	m.mu.Unlock()
	m.notify(next)
	return nil
}

// Run is Begin, one call of fn, then Finish. The error of fn is returned
// unchanged after the machine has moved to Error.
func (m *Machine) Run(ctx context.Context, profile models.HealthProfile, source Source,
	fn func(context.Context) (*models.AnalysisResult, error)) (*models.AnalysisResult, error) {
	if err := m.Begin(profile, source); err != nil {
		return nil, err
	}
	res, err := fn(ctx)
	if ferr := m.Finish(res, err); ferr != nil {
		return nil, ferr
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Reenter leaves Result or Error for Idle and reacquires the camera.
// The state is Idle even when the camera cannot be acquired.
func (m *Machine) Reenter(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != Result && m.state != Error {
		m.mu.Unlock()
		return ErrNotReady
	}
	m.state = Idle
	m.result, m.err = nil, nil
	err := m.acquireLocked(ctx)
	m.mu.Unlock()
	m.notify(Idle)
	return err
}

// Close releases the camera and rejects further use.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.releaseLocked()
	m.closed = true
}

func (m *Machine) releaseLocked() {
	if m.cam != nil && m.camOn {
		m.cam.Stop()
	}
	m.camOn = false
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Outcome returns the result or error of the last finished scan.
func (m *Machine) Outcome() (*models.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result, m.err
}

func (m *Machine) notify(s State) {
	if m.observer != nil {
		m.observer(s)
	}
}
