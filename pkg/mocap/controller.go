package mocap

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
)

// DefaultTickRate is the tick rate used when Config.TickRate is zero. It
// matches the sensor's native frame rate.
const DefaultTickRate = 30

var (
	// ErrSessionActive is returned by Activate when a session is already
	// running.
	ErrSessionActive = errors.New("mocap: capture session already active")

	// ErrNotStreaming is returned by Tick outside the Streaming state.
	ErrNotStreaming = errors.New("mocap: capture session not streaming")
)

// State is the state of a Controller.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Config configures a capture session.
type Config struct {
	Endpoint kinectmotion.Endpoint

	// TickRate is the tick frequency in Hz. Zero means DefaultTickRate.
	TickRate float64

	// AutoRecord starts keyframe recording when a tracked body first
	// appears. Recording stops for good once the body is lost.
	AutoRecord bool

	Mapping  Mapping
	Kind     TargetKind
	Armature string

	// StartFrame is the frame the first tracked tick is keyed at.
	StartFrame int

	ClientOptions []kinectmotion.Option
}

func (c *Config) interval() time.Duration {
	rate := c.TickRate
	if rate == 0 {
		rate = DefaultTickRate
	}
	return time.Duration(float64(time.Second) / rate)
}

func (c *Config) validate() error {
	if c.TickRate < 0 {
		return fmt.Errorf("mocap: tick rate must not be negative, got %v", c.TickRate)
	}
	if c.Kind == TargetBone && c.Armature == "" {
		return errors.New("mocap: bone targets require an armature")
	}
	if err := c.Mapping.Validate(); err != nil {
		return err
	}
	return c.Endpoint.Validate()
}

// Ticker delivers tick times. *time.Ticker satisfies it through NewTimeTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker returns a Ticker backed by time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// TickInfo describes a completed tick.
type TickInfo struct {
	// Frame is the frame counter after the tick.
	Frame int
	// Bodies is the number of bodies in the received frame.
	Bodies int
	// Tracked reports whether a tracked body was applied.
	Tracked bool
	// Recording reports whether keyframes were inserted.
	Recording bool
	Result    Result
}

// Option configures a Controller.
type Option func(*Controller)

// WithReporter sets the status reporter.
func WithReporter(r Reporter) Option {
	return func(c *Controller) {
		c.reporter = r
	}
}

// WithTicker replaces the ticker factory used by Run.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(c *Controller) {
		c.newTicker = fn
	}
}

// WithTickHook registers a function called after every completed tick.
func WithTickHook(fn func(TickInfo)) Option {
	return func(c *Controller) {
		c.onTick = fn
	}
}

// session is the state of one activation. It is created by Activate and
// dropped by teardown.
type session struct {
	client *kinectmotion.Client
	ticker Ticker
	frame  int

	recording bool
	// latched is set once recording has stopped on body loss.
	latched bool

	priorMode   Mode
	modeChanged bool
}

// Controller drives a capture session: on each tick it receives one frame,
// selects the tracked body and maps it onto the host.
//
// Activate, Tick, Cancel and Run must be called from a single goroutine.
// Stop may be called from any goroutine.
type Controller struct {
	cfg       Config
	host      Host
	mapper    Mapper
	reporter  Reporter
	newTicker func(time.Duration) Ticker
	onTick    func(TickInfo)

	state   State
	session *session
	stopReq atomic.Bool
}

// NewController creates an idle Controller.
func NewController(cfg Config, host Host, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg,
		host:      host,
		reporter:  DefaultReporter(),
		newTicker: NewTimeTicker,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.mapper = Mapper{
		Kind:     cfg.Kind,
		Armature: cfg.Armature,
		Resolver: host,
		Reporter: c.reporter,
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Frame returns the frame counter of the active session.
func (c *Controller) Frame() int {
	if c.session == nil {
		return 0
	}
	return c.session.frame
}

// Recording reports whether the active session inserts keyframes.
func (c *Controller) Recording() bool {
	return c.session != nil && c.session.recording
}

// Activate starts a session: bone targets switch the host into pose mode,
// then the stream is connected and the ticker started.
func (c *Controller) Activate(ctx context.Context) error {
	if c.state != StateIdle {
		return fmt.Errorf("%w (%s)", ErrSessionActive, c.state)
	}
	if err := c.cfg.validate(); err != nil {
		return err
	}

	c.stopReq.Store(false)
	s := &session{frame: c.cfg.StartFrame - 1}
	c.session = s

	if c.cfg.Kind == TargetBone {
		if prior := c.host.Mode(); prior != ModePose {
			if err := c.host.SetMode(ModePose); err != nil {
				c.teardown()
				return fmt.Errorf("mocap: enter pose mode: %w", err)
			}
			s.priorMode = prior
			s.modeChanged = true
		}
	}

	c.state = StateConnecting
	s.client = kinectmotion.NewClient(c.cfg.Endpoint, c.cfg.ClientOptions...)
	if err := s.client.EnsureConnected(ctx); err != nil {
		c.reporter.ErrorPrintf("connect %s: %v", c.cfg.Endpoint.URL, err)
		c.teardown()
		return err
	}

	c.state = StateStreaming
	s.ticker = c.newTicker(c.cfg.interval())
	c.reporter.InfoPrintf("capture started on %s (%d joints mapped to %s targets)",
		s.client.Endpoint().URL, c.cfg.Mapping.Len(), c.cfg.Kind)
	return nil
}

// Stop requests the session to stop at the start of the next tick.
func (c *Controller) Stop() {
	c.stopReq.Store(true)
}

// Tick runs one receive, select and apply pass. A stop request, a done ctx,
// or the host leaving pose mode ends the session cleanly and Tick returns
// nil. Any other failure ends the session and is returned after cleanup.
func (c *Controller) Tick(ctx context.Context) error {
	if c.state != StateStreaming {
		return ErrNotStreaming
	}
	if reason := c.cancelReason(ctx); reason != "" {
		c.reporter.InfoPrintf("capture stopped: %s", reason)
		c.teardown()
		return nil
	}

	info, err := c.step(ctx)
	if err != nil {
		if endedByContext(err) {
			c.reporter.InfoPrintf("capture stopped: %v", err)
		} else {
			c.reporter.ErrorPrintf("capture failed: %v", err)
		}
		c.teardown()
		return err
	}
	if c.onTick != nil {
		c.onTick(info)
	}
	return nil
}

// endedByContext reports whether a tick failed because its ctx was canceled
// or reached its deadline.
func endedByContext(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Controller) cancelReason(ctx context.Context) string {
	if c.stopReq.Load() {
		return "stop requested"
	}
	if err := ctx.Err(); err != nil {
		return err.Error()
	}
	if c.cfg.Kind == TargetBone && c.host.Mode() != ModePose {
		return "host left pose mode"
	}
	return ""
}

func (c *Controller) step(ctx context.Context) (TickInfo, error) {
	s := c.session
	if err := s.client.EnsureConnected(ctx); err != nil {
		return TickInfo{}, err
	}
	if err := s.client.ReceiveOnce(ctx); err != nil {
		return TickInfo{}, err
	}
	bodies := s.client.Bodies()
	body, err := kinectmotion.SelectTracked(bodies)
	if err != nil {
		return TickInfo{}, err
	}

	info := TickInfo{Bodies: len(bodies)}
	if body == nil {
		if s.recording {
			s.recording = false
			s.latched = true
			c.reporter.InfoPrintf("tracked body lost, keyframe recording stopped at frame %d", s.frame)
		}
		info.Frame = s.frame
		return info, nil
	}

	if c.cfg.AutoRecord && !s.recording && !s.latched {
		s.recording = true
		c.reporter.InfoPrintf("tracked body detected, recording keyframes from frame %d", s.frame+1)
	}
	s.frame++
	info.Frame = s.frame
	info.Tracked = true
	info.Recording = s.recording
	info.Result = c.mapper.Apply(body, c.cfg.Mapping, s.frame, s.recording)
	return info, nil
}

// Cancel ends the active session. Cancelling an idle controller is a no-op.
func (c *Controller) Cancel() {
	if c.session == nil {
		return
	}
	c.teardown()
}

// teardown releases the ticker and the connection and restores the host
// mode. Each step logs its own failure and never aborts the others.
func (c *Controller) teardown() {
	s := c.session
	if s == nil {
		c.state = StateIdle
		return
	}
	c.state = StateStopping

	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			c.reporter.WarnPrintf("close connection: %v", err)
		}
		s.client = nil
	}
	if s.modeChanged {
		if err := c.host.SetMode(s.priorMode); err != nil {
			c.reporter.WarnPrintf("restore %s mode: %v", s.priorMode, err)
		}
		s.modeChanged = false
	}

	c.session = nil
	c.state = StateIdle
}

// Run activates the controller if it is idle and ticks it until the session
// ends. It returns nil when the session was stopped by Stop, by ctx, or by
// the host leaving pose mode, and the fatal error otherwise.
func (c *Controller) Run(ctx context.Context) error {
	if c.state == StateIdle {
		if err := c.Activate(ctx); err != nil {
			return err
		}
	}
	for c.state == StateStreaming {
		select {
		case <-ctx.Done():
		case <-c.session.ticker.C():
		}
		if err := c.Tick(ctx); err != nil {
			if endedByContext(err) {
				return nil
			}
			return err
		}
	}
	return nil
}
