package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devroom-sh/devroom/internal/domain"
)

// fakeProcess is a scriptable Process for controller tests
type fakeProcess struct {
	output chan string
	done   chan int
	ready  chan string

	mu      sync.Mutex
	killed  bool
	exited  bool
	killErr error
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{
		output: make(chan string, 16),
		done:   make(chan int, 1),
		ready:  make(chan string, 1),
	}
}

func (p *fakeProcess) Output() <-chan string { return p.output }
func (p *fakeProcess) Done() <-chan int      { return p.done }
func (p *fakeProcess) Ready() <-chan string  { return p.ready }

func (p *fakeProcess) Kill(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killErr != nil {
		return p.killErr
	}
	if !p.killed {
		p.killed = true
		if !p.exited {
			p.exited = true
			close(p.output)
			p.done <- -1
		}
	}
	return nil
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// emit pushes output lines and then exits with the given code
func (p *fakeProcess) emit(lines []string, exit int) {
	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()
	for _, l := range lines {
		p.output <- l
	}
	close(p.output)
	p.done <- exit
}

// fakeRunner scripts a sequence of install/start processes
type fakeRunner struct {
	mu          sync.Mutex
	mounts      []domain.FileTree
	installs    []*fakeProcess
	starts      []*fakeProcess
	installAt   int
	startAt     int
	mountErr    error
	closed      bool
	mountActive bool
	overlapped  bool
}

func (r *fakeRunner) Mount(_ context.Context, tree domain.FileTree) error {
	r.mu.Lock()
	if r.mountErr != nil {
		r.mu.Unlock()
		return r.mountErr
	}
	if r.mountActive {
		r.overlapped = true
	}
	r.mountActive = true
	r.mounts = append(r.mounts, tree)
	r.mu.Unlock()

	// Hold the shared directory briefly so overlapping mounts collide
	time.Sleep(time.Millisecond)

	r.mu.Lock()
	r.mountActive = false
	r.mu.Unlock()
	return nil
}

func (r *fakeRunner) overlappedMount() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overlapped
}

func (r *fakeRunner) Install(context.Context) (Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.installAt >= len(r.installs) {
		return nil, fmt.Errorf("unexpected install")
	}
	p := r.installs[r.installAt]
	r.installAt++
	return p, nil
}

func (r *fakeRunner) Start(context.Context) (Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startAt >= len(r.starts) {
		return nil, fmt.Errorf("unexpected start")
	}
	p := r.starts[r.startAt]
	r.startAt++
	return p, nil
}

func (r *fakeRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// recorder captures controller events in order
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, ev := range r.events {
		if ev.Kind == EventState {
			out = append(out, ev.State)
		}
	}
	return out
}
