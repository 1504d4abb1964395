package encoder

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const (
	// stderrTailLines bounds the in-memory stderr capture.
	stderrTailLines = 100

	// finalizeWait is how long Stop waits for the encoder to flush and
	// exit after its input streams close, before escalating to signals.
	finalizeWait = 10 * time.Second
	// termWait is the grace period between SIGTERM and SIGKILL.
	termWait = 3 * time.Second
)

// Process is a running encoder subprocess. Video frames are written to its
// stdin and audio frames to an extra pipe the child sees as fd 3. The
// writers are not safe for concurrent use; the recorder serializes all
// writes under its state lock.
type Process struct {
	cmd       *exec.Cmd
	video     io.WriteCloser
	audio     *os.File
	logger    *slog.Logger
	startedAt time.Time

	closeOnce sync.Once
	closeErr  error

	stderrMu    sync.RWMutex
	stderrLines []string

	done    chan struct{}
	waitErr error
}

// StartProcess spawns cmd with both input pipes attached and begins
// collecting stderr. The child runs in its own process group so terminal
// signals reach only the parent; shutdown is driven by closing the input
// streams, not by signalling.
func StartProcess(cmd Command, logger *slog.Logger) (*Process, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := exec.Command(cmd.Binary, cmd.Args...)
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	video, err := c.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating video pipe: %w", err)
	}
	audioRead, audioWrite, err := os.Pipe()
	if err != nil {
		video.Close()
		return nil, fmt.Errorf("creating audio pipe: %w", err)
	}
	c.ExtraFiles = []*os.File{audioRead}

	stderr, err := c.StderrPipe()
	if err != nil {
		video.Close()
		audioRead.Close()
		audioWrite.Close()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	p := &Process{
		cmd:       c,
		video:     video,
		audio:     audioWrite,
		logger:    logger,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	if err := c.Start(); err != nil {
		video.Close()
		audioRead.Close()
		audioWrite.Close()
		return nil, fmt.Errorf("starting encoder: %w", err)
	}
	// The child holds its own copy of the audio read end now.
	audioRead.Close()

	go p.reap(stderr)

	logger.Debug("encoder process started", "pid", c.Process.Pid, "command", cmd.String())
	return p, nil
}

// reap drains stderr to the tail buffer, waits for the process, and
// records the outcome. Reading to EOF before Wait keeps the pipe valid for
// the whole child lifetime.
func (p *Process) reap(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		p.appendStderr(scanner.Text())
	}

	p.waitErr = p.cmd.Wait()
	close(p.done)

	if p.waitErr != nil {
		p.logger.Error("encoder process exited with error",
			"pid", p.cmd.Process.Pid, "error", p.waitErr, "stderr", p.lastStderr())
	} else {
		p.logger.Debug("encoder process exited", "pid", p.cmd.Process.Pid)
	}
}

func (p *Process) appendStderr(line string) {
	p.stderrMu.Lock()
	if len(p.stderrLines) >= stderrTailLines {
		p.stderrLines = p.stderrLines[1:]
	}
	p.stderrLines = append(p.stderrLines, line)
	p.stderrMu.Unlock()
}

// StderrTail returns a copy of the most recent stderr lines.
func (p *Process) StderrTail() []string {
	p.stderrMu.RLock()
	defer p.stderrMu.RUnlock()
	tail := make([]string, len(p.stderrLines))
	copy(tail, p.stderrLines)
	return tail
}

func (p *Process) lastStderr() string {
	p.stderrMu.RLock()
	defer p.stderrMu.RUnlock()
	if len(p.stderrLines) == 0 {
		return ""
	}
	return p.stderrLines[len(p.stderrLines)-1]
}

// VideoWriter returns the stream the encoder reads video frames from.
func (p *Process) VideoWriter() io.Writer { return p.video }

// AudioWriter returns the stream the encoder reads audio frames from.
func (p *Process) AudioWriter() io.Writer { return p.audio }

// PID returns the child process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// StartedAt returns when the process was spawned.
func (p *Process) StartedAt() time.Time { return p.startedAt }

// Running reports whether the process has not exited yet.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// CloseInputs closes both input streams exactly once. End of input is the
// encoder's signal to flush, finalize the output file, and exit.
func (p *Process) CloseInputs() error {
	p.closeOnce.Do(func() {
		verr := p.video.Close()
		aerr := p.audio.Close()
		if verr != nil {
			p.closeErr = verr
		} else {
			p.closeErr = aerr
		}
	})
	return p.closeErr
}

// Stop closes the inputs and waits for the encoder to finalize, escalating
// to SIGTERM and then SIGKILL if it does not exit on its own. Returns the
// process exit error, nil for a clean finalize.
func (p *Process) Stop() error {
	p.CloseInputs()

	select {
	case <-p.done:
		return p.waitErr
	case <-time.After(finalizeWait):
	}

	p.logger.Warn("encoder still running after input close, sending SIGTERM", "pid", p.PID())
	_ = p.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-p.done:
		return p.waitErr
	case <-time.After(termWait):
	}

	p.logger.Warn("encoder ignored SIGTERM, killing", "pid", p.PID())
	_ = p.cmd.Process.Kill()
	<-p.done
	return p.waitErr
}
