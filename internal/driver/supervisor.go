package driver

import (
	"bufio"
	"fmt"
	"os/exec"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/grantcarthew/pwctl/internal/transport"
)

// waitTimeout bounds how long Close waits for the engine child to exit
// after its stdin closes.
const waitTimeout = 10 * time.Second

// Options configures how the engine subprocess is started.
type Options struct {
	// DriverPath overrides engine cli.js lookup.
	DriverPath string
	// NodePath overrides node interpreter lookup.
	NodePath string

	Logger *zap.Logger
}

// Supervisor holds a running engine child and its pipe transport.
type Supervisor struct {
	cmd  *exec.Cmd
	pipe *transport.Pipe
	log  *zap.Logger

	keepRunning atomic.Bool
	closed      atomic.Bool
}

// Start spawns the engine in run-driver mode with stdin/stdout captured
// for the pipe transport and stderr logged at debug severity.
func Start(opts Options) (*Supervisor, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	nodePath := opts.NodePath
	if nodePath == "" {
		var err error
		if nodePath, err = FindNode(); err != nil {
			return nil, err
		}
	}
	driverPath := opts.DriverPath
	if driverPath == "" {
		var err error
		if driverPath, err = FindDriver(); err != nil {
			return nil, err
		}
	}

	cmd := exec.Command(nodePath, driverPath, "run-driver")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}

	log.Debug("engine started",
		zap.String("node", nodePath),
		zap.String("driver", driverPath),
		zap.Int("pid", cmd.Process.Pid))

	// Drain stderr so the child never blocks on a full pipe.
	go func() {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			log.Debug("engine stderr", zap.String("line", scanner.Text()))
		}
	}()

	return &Supervisor{
		cmd:  cmd,
		pipe: transport.NewPipe(stdin, stdout),
		log:  log,
	}, nil
}

// Transport returns the pipe transport bound to the engine's stdio.
func (s *Supervisor) Transport() *transport.Pipe {
	return s.pipe
}

// PID returns the engine child's process id.
func (s *Supervisor) PID() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// SetKeepRunning controls whether Close leaves the engine child alive.
// Used in launch-server mode, where the server must outlive this
// process.
func (s *Supervisor) SetKeepRunning(keep bool) {
	s.keepRunning.Store(keep)
}

// Close shuts the engine down. Standard input is closed first; some
// platforms hang on Wait if the pipes are still open. If the child does
// not exit within waitTimeout it is killed, unless SetKeepRunning(true)
// was called, in which case the child is released instead.
func (s *Supervisor) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	_ = s.pipe.Close()

	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}

	if s.keepRunning.Load() {
		s.log.Debug("releasing engine child", zap.Int("pid", s.cmd.Process.Pid))
		return s.cmd.Process.Release()
	}

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(waitTimeout):
		s.log.Debug("engine did not exit; killing", zap.Int("pid", s.cmd.Process.Pid))
		_ = s.cmd.Process.Kill()
		<-done
		return nil
	}
}
