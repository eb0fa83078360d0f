package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/devroom-sh/devroom/internal/config"
	"github.com/devroom-sh/devroom/internal/domain"
	"github.com/rs/zerolog"
)

// State is the execution process lifecycle phase
type State string

const (
	StateIdle       State = "idle"
	StateMounting   State = "mounting"
	StateInstalling State = "installing"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateErrored    State = "errored"
)

// ErrSuperseded is returned from a run that was displaced by a newer
// run or an explicit stop before it finished.
var ErrSuperseded = errors.New("run superseded")

// EventKind classifies controller notifications
type EventKind string

const (
	EventState   EventKind = "state"
	EventOutput  EventKind = "output"
	EventPreview EventKind = "preview"
)

// Event is a controller notification for the owning session
type Event struct {
	Kind   EventKind
	State  State
	Chunk  string
	Origin string
}

// Notify receives controller events. It is called with the controller
// lock held and must be non-blocking; it must not call back into the
// controller.
type Notify func(Event)

// Controller owns zero-or-one running execution process for a session
// and drives it through mount, install, run, and stop. Starting a new
// run always kills any prior process first, so at most one live process
// ever exists per session.
type Controller struct {
	// runMu serializes run admission: the supersession check, the kill
	// of the prior process, the generation bump, and the mount are one
	// section, so two runs racing from Idle can neither both pass the
	// check nor mount concurrently into the shared directory.
	runMu sync.Mutex

	mu     sync.Mutex
	state  State
	output []string
	origin string
	proc   Process
	gen    uint64

	runner Runner
	cfg    config.SandboxConfig
	notify Notify
	logger zerolog.Logger
}

// NewController creates an idle controller over the given runner
func NewController(runner Runner, cfg config.SandboxConfig, notify Notify, logger zerolog.Logger) *Controller {
	if notify == nil {
		notify = func(Event) {}
	}
	return &Controller{
		state:  StateIdle,
		runner: runner,
		cfg:    cfg,
		notify: notify,
		logger: logger.With().Str("component", "sandbox").Logger(),
	}
}

// Run mounts the tree and drives it through install and start. Any
// process from a prior run is killed first. Run returns once the
// program is started (or the attempt failed); output and the preview
// origin continue to stream through notifications.
func (c *Controller) Run(ctx context.Context, tree domain.FileTree) error {
	c.runMu.Lock()

	c.mu.Lock()
	superseding := c.state != StateIdle
	if superseding {
		c.appendLocked("[sandbox] terminating previous process before restart")
	}
	c.mu.Unlock()

	if superseding {
		if err := c.Stop(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("kill of superseded process failed")
		}
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.setStateLocked(StateMounting)
	c.mu.Unlock()

	if err := c.runner.Mount(ctx, tree); err != nil {
		c.runMu.Unlock()
		return c.fail(gen, fmt.Errorf("mount failed: %w", err))
	}
	c.runMu.Unlock()

	if !c.advance(gen, StateInstalling) {
		return ErrSuperseded
	}
	proc, err := c.runner.Install(ctx)
	if err != nil {
		return c.fail(gen, fmt.Errorf("install failed to start: %w", err))
	}
	if !c.track(gen, proc) {
		c.killQuietly(proc)
		return ErrSuperseded
	}

	exit, err := c.drain(gen, proc, c.cfg.InstallTimeout)
	if err != nil {
		if errors.Is(err, ErrSuperseded) {
			return err
		}
		c.killQuietly(proc)
		return c.fail(gen, err)
	}
	if exit != 0 {
		return c.fail(gen, fmt.Errorf("install exited with status %d", exit))
	}

	if !c.advance(gen, StateRunning) {
		return ErrSuperseded
	}
	proc, err = c.runner.Start(ctx)
	if err != nil {
		return c.fail(gen, fmt.Errorf("program failed to start: %w", err))
	}
	if !c.track(gen, proc) {
		c.killQuietly(proc)
		return ErrSuperseded
	}

	go c.stream(gen, proc)

	select {
	case origin := <-proc.Ready():
		c.setOrigin(gen, origin)
		return nil
	case <-time.After(c.cfg.ReadyTimeout):
		c.killQuietly(proc)
		return c.fail(gen, fmt.Errorf("server not reachable within %s", c.cfg.ReadyTimeout))
	case <-ctx.Done():
		c.killQuietly(proc)
		return c.fail(gen, ctx.Err())
	}
}

// Stop terminates the active process, if any, and always lands in Idle
// so a later run is never blocked by a failed kill. Stopping an idle
// controller is a successful no-op with no side effects.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	proc := c.proc
	c.proc = nil
	c.setStateLocked(StateStopping)
	c.mu.Unlock()

	var killErr error
	if proc != nil {
		killCtx, cancel := context.WithTimeout(ctx, c.cfg.StopTimeout)
		killErr = proc.Kill(killCtx)
		cancel()
	}

	c.mu.Lock()
	if killErr != nil {
		c.appendLocked("[sandbox] failed to kill process: " + killErr.Error())
	}
	c.origin = ""
	c.setStateLocked(StateIdle)
	c.mu.Unlock()

	return killErr
}

// Dispose stops any process and releases the runner. Called on session
// engine teardown, not on disconnect: the sandbox outlives the socket.
func (c *Controller) Dispose(ctx context.Context) {
	if err := c.Stop(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("stop during dispose failed")
	}
	if err := c.runner.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("runner close failed")
	}
}

// CurrentState returns the lifecycle phase
func (c *Controller) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PreviewOrigin returns the recorded origin, empty unless Running and ready
func (c *Controller) PreviewOrigin() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.origin
}

// OutputLog returns a copy of the append-only output log
func (c *Controller) OutputLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.output))
	copy(out, c.output)
	return out
}

// ClearOutput empties the output log. Cosmetic; not a state transition.
func (c *Controller) ClearOutput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output = nil
}

// drain consumes install output until exit, bounded by timeout
func (c *Controller) drain(gen uint64, proc Process, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	output := proc.Output()
	for {
		select {
		case chunk, ok := <-output:
			if !ok {
				output = nil
				continue
			}
			if !c.append(gen, chunk) {
				return 0, ErrSuperseded
			}
		case exit := <-proc.Done():
			// The exit code can become readable while output is still
			// buffered; take every remaining chunk before reporting,
			// or install diagnostics vanish from the log.
			if output != nil {
				for chunk := range output {
					if !c.append(gen, chunk) {
						return 0, ErrSuperseded
					}
				}
			}
			return exit, nil
		case <-timer.C:
			return 0, fmt.Errorf("install did not finish within %s", timeout)
		}
	}
}

// stream consumes run output in the background and watches for exit
func (c *Controller) stream(gen uint64, proc Process) {
	for chunk := range proc.Output() {
		if !c.append(gen, chunk) {
			return
		}
	}

	exit := <-proc.Done()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != StateRunning {
		// A stop or a newer run already owns the state
		return
	}
	c.proc = nil
	c.origin = ""
	if exit != 0 {
		c.appendLocked(fmt.Sprintf("[sandbox] process exited with status %d", exit))
		c.setStateLocked(StateErrored)
		return
	}
	c.appendLocked("[sandbox] process exited")
	c.setStateLocked(StateIdle)
}

func (c *Controller) advance(gen uint64, state State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.setStateLocked(state)
	return true
}

func (c *Controller) track(gen uint64, proc Process) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.proc = proc
	return true
}

func (c *Controller) setOrigin(gen uint64, origin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.origin = origin
	c.notify(Event{Kind: EventPreview, Origin: origin})
}

func (c *Controller) append(gen uint64, chunk string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.appendLocked(chunk)
	return true
}

// fail records the error and parks the controller in Errored; the
// session stays usable and a later run or stop recovers to Idle.
func (c *Controller) fail(gen uint64, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return ErrSuperseded
	}
	c.proc = nil
	c.origin = ""
	c.appendLocked("[sandbox] " + err.Error())
	c.setStateLocked(StateErrored)
	return err
}

func (c *Controller) killQuietly(proc Process) {
	killCtx, cancel := context.WithTimeout(context.Background(), c.cfg.StopTimeout)
	defer cancel()
	if err := proc.Kill(killCtx); err != nil {
		c.logger.Warn().Err(err).Msg("process kill failed")
	}
}

func (c *Controller) appendLocked(chunk string) {
	c.output = append(c.output, chunk)
	c.notify(Event{Kind: EventOutput, Chunk: chunk})
}

func (c *Controller) setStateLocked(state State) {
	c.state = state
	c.notify(Event{Kind: EventState, State: state})
}
