// Package supervisor manages the frontend server's full lifecycle: detached
// start, liveness-probed single instance, a monitoring loop with crash-rate
// protection, signal-driven shutdown, and status reporting. The daemon's
// only wire protocol is a pid file, two log files, and SIGTERM/SIGINT.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ErrAlreadyRunning = errors.New("frontend daemon is already running")

// State describes the observable daemon state derived from the pid lease.
type State string

const (
	StateNotRunning State = "not_running"
	StateRunning    State = "running"
	StateStale      State = "stale"
)

// StopOutcome classifies what Stop had to do.
type StopOutcome string

const (
	StopNotRunning StopOutcome = "not_running"
	StopStale      StopOutcome = "stale"
	StopGraceful   StopOutcome = "stopped"
	StopForced     StopOutcome = "forced"
)

// Child is one monitored process. Terminate is best-effort and never
// reports failure; the shutdown path must always complete.
type Child interface {
	PID() int
	Wait() error
	Terminate()
}

// LaunchFunc starts the monitored child process.
type LaunchFunc func() (Child, error)

// Manager drives the daemon lifecycle. Liveness probing, signalling,
// sleeping, clock and child launch are injectable so tests run without
// real processes.
type Manager struct {
	cfg    Config
	pid    PIDFile
	logger *zap.Logger

	alive  func(pid int) bool
	signal func(pid int, sig syscall.Signal) error
	sleep  func(d time.Duration)
	now    func() time.Time
	launch LaunchFunc
}

func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		pid:    PIDFile{Path: cfg.PIDPath()},
		logger: logger,
		alive:  processAlive,
		signal: func(pid int, sig syscall.Signal) error { return syscall.Kill(pid, sig) },
		sleep:  time.Sleep,
		now:    time.Now,
	}
	m.launch = m.launchChild
	return m
}

// RunningPID reports the recorded pid when it responds to a liveness probe.
func (m *Manager) RunningPID() (int, bool) {
	pid, ok := m.pid.Read()
	if !ok {
		return 0, false
	}
	return pid, m.alive(pid)
}

// Start launches the detached daemon through launchDaemon, waits briefly,
// and confirms the new daemon responds to a liveness probe. It refuses to
// start a second instance over a live pid.
func (m *Manager) Start(launchDaemon func() error) (int, error) {
	if pid, ok := m.RunningPID(); ok {
		return pid, ErrAlreadyRunning
	}
	if err := launchDaemon(); err != nil {
		return 0, fmt.Errorf("launch daemon: %w", err)
	}
	for i := 0; i < 10; i++ {
		m.sleep(200 * time.Millisecond)
		if pid, ok := m.RunningPID(); ok {
			return pid, nil
		}
	}
	return 0, errors.New("daemon failed to start")
}

// Stop terminates the daemon: a missing pid file is "not running", a dead
// pid is "stale" and only cleans up, a live one gets SIGTERM with a bounded
// wait and SIGKILL as the fallback.
func (m *Manager) Stop() (StopOutcome, int, error) {
	pid, ok := m.pid.Read()
	if !ok {
		return StopNotRunning, 0, nil
	}
	if !m.alive(pid) {
		m.pid.Remove()
		return StopStale, pid, nil
	}

	if err := m.signal(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			m.pid.Remove()
			return StopGraceful, pid, nil
		}
		return "", pid, fmt.Errorf("signal daemon %d: %w", pid, err)
	}

	for i := 0; i < 10; i++ {
		if !m.alive(pid) {
			m.pid.Remove()
			return StopGraceful, pid, nil
		}
		m.sleep(500 * time.Millisecond)
	}

	_ = m.signal(pid, syscall.SIGKILL)
	m.sleep(500 * time.Millisecond)
	if !m.alive(pid) {
		m.pid.Remove()
		return StopForced, pid, nil
	}
	return "", pid, fmt.Errorf("failed to stop daemon (pid %d)", pid)
}

// Restart stops the daemon if needed, settles, and starts it again.
func (m *Manager) Restart(launchDaemon func() error) (int, error) {
	if _, _, err := m.Stop(); err != nil {
		return 0, err
	}
	m.sleep(time.Second)
	return m.Start(launchDaemon)
}

// Status captures the daemon state plus a tail of the manager log.
type Status struct {
	State   State
	PID     int
	LogTail []string
}

func (m *Manager) Status() Status {
	status := Status{State: StateNotRunning}
	if pid, ok := m.pid.Read(); ok {
		status.PID = pid
		if m.alive(pid) {
			status.State = StateRunning
		} else {
			status.State = StateStale
		}
	}
	status.LogTail, _ = TailLines(m.cfg.LogPath(), 10)
	return status
}

// Run is the daemon entry point: it acquires the single-instance lock,
// records its pid, and supervises the child until the context is cancelled
// or the restart breaker trips. The pid file is removed on every exit path.
func (m *Manager) Run(ctx context.Context) error {
	lock := flock.New(m.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	defer func() { _ = lock.Unlock() }()

	if err := m.pid.Write(os.Getpid()); err != nil {
		return err
	}
	defer m.pid.Remove()

	m.logger.Info("daemon started", zap.Int("pid", os.Getpid()))

	breaker := newRestartBreaker(m.cfg.MaxRestartAttempts, m.cfg.RestartWindow())
	for {
		child, err := m.launch()
		if err != nil {
			m.logger.Error("failed to start frontend server", zap.Error(err))
			return err
		}
		m.logger.Info("frontend server started", zap.Int("child_pid", child.PID()))
		startedAt := m.now()

		waitCh := make(chan error, 1)
		go func() { waitCh <- child.Wait() }()

		select {
		case <-ctx.Done():
			m.logger.Info("received shutdown signal, terminating frontend server")
			child.Terminate()
			<-waitCh
			m.logger.Info("monitoring loop ended")
			return nil
		case waitErr := <-waitCh:
			uptime := m.now().Sub(startedAt)
			m.logger.Warn("frontend server stopped",
				zap.Duration("uptime", uptime),
				zap.Error(waitErr),
			)

			attempts := breaker.Record(m.now())
			if uptime < m.cfg.MinUptime() {
				m.logger.Warn("fast crash",
					zap.Duration("uptime", uptime),
					zap.Int("attempt", attempts),
					zap.Int("max_attempts", m.cfg.MaxRestartAttempts),
				)
			}
			if breaker.Tripped() {
				m.logger.Error("too many restarts, giving up",
					zap.Int("attempts", attempts),
					zap.Duration("window", m.cfg.RestartWindow()),
				)
				m.logger.Info("monitoring loop ended")
				return nil
			}

			m.logger.Info("restarting frontend server", zap.Duration("delay", m.cfg.RestartDelay()))
			m.sleep(m.cfg.RestartDelay())
			select {
			case <-ctx.Done():
				m.logger.Info("monitoring loop ended")
				return nil
			default:
			}
		}
	}
}

// launchChild starts the configured frontend command with output appended
// to the log files, in its own process group so shutdown can signal the
// whole subtree.
func (m *Manager) launchChild() (Child, error) {
	logFile, err := os.OpenFile(m.cfg.LogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	errFile, err := os.OpenFile(m.cfg.ErrorLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("open error log file: %w", err)
	}

	fmt.Fprintf(logFile, "\n============================================================\n")
	fmt.Fprintf(logFile, "Frontend Server Started: %s\n", m.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(logFile, "============================================================\n\n")

	cmd := exec.Command(m.cfg.Command, m.cfg.Args...)
	cmd.Stdout = logFile
	cmd.Stderr = errFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		logFile.Close()
		errFile.Close()
		return nil, fmt.Errorf("start %s: %w", m.cfg.Command, err)
	}
	return &execChild{cmd: cmd, files: []*os.File{logFile, errFile}}, nil
}

type execChild struct {
	cmd   *exec.Cmd
	files []*os.File
}

func (c *execChild) PID() int {
	return c.cmd.Process.Pid
}

func (c *execChild) Wait() error {
	err := c.cmd.Wait()
	for _, f := range c.files {
		f.Close()
	}
	return err
}

// Terminate signals the child's process group. Errors are swallowed so the
// shutdown path always completes.
func (c *execChild) Terminate() {
	if c.cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-c.cmd.Process.Pid, syscall.SIGTERM)
}

// NewLogger builds the daemon logger writing to the manager log file.
func NewLogger(logPath string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = isoTimeEncoder
	cfg.OutputPaths = []string{"stdout", logPath}
	cfg.ErrorOutputPaths = []string{"stderr", logPath}
	return cfg.Build()
}

func isoTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05"))
}

// TailLines returns up to n trailing lines of the file at path.
func TailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, scanner.Err()
}
