// Package command carries start/stop requests from the hotkey trigger to the
// running service over a Unix domain socket.
//
// The wire format is one line per connection: "start" or "stop". The
// service answers with "ok" or "error: <reason>".
package command

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Command is a control request.
type Command int

const (
	Start Command = iota + 1
	Stop
)

// ErrMalformedCommand is returned for input that is not exactly a command.
var ErrMalformedCommand = errors.New("malformed command")

// SocketName is the socket file created in the runtime directory.
const SocketName = "asr-indicator.sock"

// String returns the wire form of the command.
func (c Command) String() string {
	switch c {
	case Start:
		return "start"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Parse decodes one wire line. Surrounding whitespace is ignored; anything
// else must match exactly.
func Parse(line string) (Command, error) {
	switch s := strings.TrimSpace(line); s {
	case "start":
		return Start, nil
	case "stop":
		return Stop, nil
	default:
		if len(s) > 32 {
			s = s[:32] + "..."
		}
		return 0, fmt.Errorf("%w: %q", ErrMalformedCommand, s)
	}
}

// DefaultSocketPath returns $XDG_RUNTIME_DIR/asr-indicator.sock, falling back
// to the temp directory when XDG_RUNTIME_DIR is unset.
func DefaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, SocketName)
}
