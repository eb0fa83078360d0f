package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/devroom-sh/devroom/internal/config"
	"github.com/devroom-sh/devroom/internal/domain"
)

const readyPollInterval = 250 * time.Millisecond

// ExecRunner runs sandbox commands as local child processes against a
// throwaway working directory. Each runner owns one directory and one
// allocated preview port for its whole lifetime.
type ExecRunner struct {
	cfg  config.SandboxConfig
	dir  string
	port int
}

// NewExecRunner allocates a working directory and a free preview port
func NewExecRunner(cfg config.SandboxConfig) (*ExecRunner, error) {
	dir, err := os.MkdirTemp(cfg.WorkDir, "devroom-sandbox-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox directory: %w", err)
	}

	port, err := findFreePort()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to allocate preview port: %w", err)
	}

	return &ExecRunner{cfg: cfg, dir: dir, port: port}, nil
}

// findFreePort finds an available TCP port on the local machine
func findFreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("failed to get TCP address")
	}

	return addr.Port, nil
}

// Mount writes the tree into the working directory, replacing any
// previous mount except installed node_modules, which survive so
// re-runs do not reinstall the world.
func (r *ExecRunner) Mount(ctx context.Context, tree domain.FileTree) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("failed to read sandbox directory: %w", err)
	}
	for _, e := range entries {
		if e.Name() == "node_modules" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(r.dir, e.Name())); err != nil {
			return fmt.Errorf("failed to clear sandbox directory: %w", err)
		}
	}

	return writeTree(r.dir, tree)
}

func writeTree(dir string, tree domain.FileTree) error {
	for name, node := range tree {
		path, err := containedPath(dir, name)
		if err != nil {
			return err
		}
		switch node.Kind {
		case domain.NodeFile:
			if err := os.WriteFile(path, []byte(node.Contents), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", name, err)
			}
		case domain.NodeDirectory:
			if err := os.MkdirAll(path, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", name, err)
			}
			if err := writeTree(path, domain.FileTree(node.Children)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown node kind %q at %s", node.Kind, name)
		}
	}
	return nil
}

// containedPath joins a tree name onto dir and rejects anything that
// resolves outside it. Tree names arrive from the wire and from model
// output, so "../"-style names must never reach the filesystem.
func containedPath(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if path == dir || !strings.HasPrefix(path, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid tree name %q: escapes sandbox directory", name)
	}
	return path, nil
}

// Install runs the dependency-install command
func (r *ExecRunner) Install(ctx context.Context) (Process, error) {
	return r.spawn(ctx, r.cfg.InstallCommand, false)
}

// Start runs the program and watches for its server to become reachable
func (r *ExecRunner) Start(ctx context.Context) (Process, error) {
	return r.spawn(ctx, r.cfg.StartCommand, true)
}

// Close removes the working directory
func (r *ExecRunner) Close() error {
	return os.RemoveAll(r.dir)
}

func (r *ExecRunner) spawn(ctx context.Context, command []string, detectReady bool) (Process, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("no command configured")
	}

	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	cmd := exec.CommandContext(procCtx, command[0], command[1:]...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), fmt.Sprintf("PORT=%d", r.port))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start %s: %w", command[0], err)
	}

	p := &execProcess{
		cancel: cancel,
		output: make(chan string, 64),
		done:   make(chan int, 1),
		ready:  make(chan string, 1),
	}

	go p.pump(cmd, stdout)
	if detectReady {
		go p.pollReady(procCtx, r.port)
	}

	return p, nil
}

type execProcess struct {
	cancel context.CancelFunc
	output chan string
	done   chan int
	ready  chan string
}

func (p *execProcess) Output() <-chan string { return p.output }
func (p *execProcess) Done() <-chan int      { return p.done }
func (p *execProcess) Ready() <-chan string  { return p.ready }

// Kill cancels the process context and waits for exit within ctx
func (p *execProcess) Kill(ctx context.Context) error {
	p.cancel()
	select {
	case code := <-p.done:
		// Put the code back for any other waiter
		p.done <- code
		return nil
	case <-ctx.Done():
		return fmt.Errorf("process did not exit in time: %w", ctx.Err())
	}
}

func (p *execProcess) pump(cmd *exec.Cmd, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case p.output <- scanner.Text():
		default:
			// Consumer fell behind; drop rather than stall the child
		}
	}
	close(p.output)

	code := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	p.done <- code
}

// pollReady probes the preview port until the server accepts a
// connection, then announces the origin.
func (p *execProcess) pollReady(ctx context.Context, port int) {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn, err := net.DialTimeout("tcp", addr, readyPollInterval)
			if err != nil {
				continue
			}
			conn.Close()
			p.ready <- fmt.Sprintf("http://%s", addr)
			return
		}
	}
}
