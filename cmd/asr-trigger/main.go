// Command asr-trigger sends a start or stop command to the running
// asr-indicator service. Bind it to hotkeys.
//
//	asr-trigger start
//	asr-trigger stop
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/realtime-ai/asr-indicator/pkg/command"
)

func main() {
	defaultSocket := command.DefaultSocketPath()
	if p := os.Getenv("ASR_COMMAND_SOCKET_PATH"); p != "" {
		defaultSocket = p
	}
	socket := flag.String("socket", defaultSocket, "command socket of the service")
	timeout := flag.Duration("timeout", 5*time.Second, "how long to wait for the service")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] start|stop\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, err := command.Parse(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "asr-trigger: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := command.Send(ctx, *socket, cmd); err != nil {
		fmt.Fprintf(os.Stderr, "asr-trigger: %v\n", err)
		if errors.Is(err, command.ErrNotRunning) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}
