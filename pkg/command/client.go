package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrNotRunning is returned by Send when nothing listens on the socket.
var ErrNotRunning = errors.New("asr-indicator service is not running")

// Send delivers cmd to the service at socketPath and waits for its reply.
func Send(ctx context.Context, socketPath string, cmd Command) error {
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return fmt.Errorf("write command: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read reply: %w", err)
	}

	line = strings.TrimSpace(line)
	if line == "ok" {
		return nil
	}
	if reason, found := strings.CutPrefix(line, "error: "); found {
		return fmt.Errorf("service rejected %s: %s", cmd, reason)
	}
	return fmt.Errorf("unexpected reply %q", line)
}
