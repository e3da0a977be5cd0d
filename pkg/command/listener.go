package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/realtime-ai/asr-indicator/pkg/metrics"
)

const (
	// DefaultBuffer is the number of accepted commands held for the machine.
	DefaultBuffer = 16

	readTimeout = 2 * time.Second
	maxLineLen  = 256
)

// ListenerConfig configures the command socket.
type ListenerConfig struct {
	SocketPath string
	Buffer     int
}

// Listener accepts commands on a Unix socket and forwards them, in arrival
// order, on C.
type Listener struct {
	cfg     ListenerConfig
	ln      net.Listener
	cmds    chan Command
	logger  *slog.Logger
	metrics *metrics.Metrics

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Listen creates the socket, replacing a stale socket file left by a
// previous run. A live socket owned by another process is not touched.
func Listen(cfg ListenerConfig, logger *slog.Logger, m *metrics.Metrics) (*Listener, error) {
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}

	if err := removeStale(cfg.SocketPath); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.SocketPath, err)
	}
	if err := os.Chmod(cfg.SocketPath, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	return &Listener{
		cfg:     cfg,
		ln:      ln,
		cmds:    make(chan Command, cfg.Buffer),
		logger:  logger.With("component", "command"),
		metrics: m,
	}, nil
}

func removeStale(path string) error {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if conn, err := net.DialTimeout("unix", path, 200*time.Millisecond); err == nil {
		conn.Close()
		return fmt.Errorf("socket %s is in use by a running service", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

// C returns the channel of accepted commands. It is closed when Serve
// returns.
func (l *Listener) C() <-chan Command {
	return l.cmds
}

// Path returns the socket path.
func (l *Listener) Path() string {
	return l.cfg.SocketPath
}

// Serve accepts connections until ctx is done or the listener is closed.
func (l *Listener) Serve(ctx context.Context) error {
	defer close(l.cmds)
	defer l.wg.Wait()

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	l.logger.Info("command socket listening", "path", l.cfg.SocketPath)

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(ctx, conn)
		}()
	}
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(readTimeout)); err != nil {
		l.logger.Warn("set deadline failed", "error", err)
	}

	r := bufio.NewReader(io.LimitReader(conn, maxLineLen))
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		l.logger.Debug("command connection closed without data", "error", err)
		return
	}

	cmd, err := Parse(line)
	if err != nil {
		l.metrics.MalformedCommands.Inc()
		l.logger.Warn("rejecting command", "error", err)
		reply(conn, err)
		return
	}

	// Wait for room rather than drop: a command sent while the machine is
	// busy must still arrive.
	select {
	case l.cmds <- cmd:
		l.logger.Debug("command accepted", "command", cmd)
		reply(conn, nil)
	case <-ctx.Done():
		reply(conn, errors.New("service shutting down"))
	}
}

func reply(conn net.Conn, err error) {
	msg := "ok\n"
	if err != nil {
		msg = "error: " + err.Error() + "\n"
	}
	// The enqueue may have waited past the read deadline.
	_ = conn.SetWriteDeadline(time.Now().Add(readTimeout))
	_, _ = conn.Write([]byte(msg))
}

// Close stops accepting and removes the socket file.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.ln.Close()
		if rmErr := os.Remove(l.cfg.SocketPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
