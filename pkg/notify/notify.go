// Package notify turns status events into desktop notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/realtime-ai/asr-indicator/pkg/pipeline"
)

// Icons maps notification kinds to icon names or paths. Empty uses the
// desktop default.
type Icons struct {
	App        string
	Listening  string
	Paused     string
	Processing string
	Success    string
	Error      string
}

// Config configures the notifier.
type Config struct {
	Enabled bool
	AppName string
	Icons   Icons
}

// Notification is one message shown to the user.
type Notification struct {
	Title    string
	Message  string
	Icon     string
	Critical bool
}

// SendFunc displays a notification.
type SendFunc func(n Notification) error

// Desktop shows n with beeep; critical notifications also play the alert
// sound.
func Desktop(n Notification) error {
	if n.Critical {
		return beeep.Alert(n.Title, n.Message, n.Icon)
	}
	return beeep.Notify(n.Title, n.Message, n.Icon)
}

// Notifier subscribes to the bus and shows one notification per status
// event. Failures are logged only.
type Notifier struct {
	cfg    Config
	bus    pipeline.Bus
	send   SendFunc
	events chan pipeline.Event
	logger *slog.Logger
}

// New creates a notifier. A nil send uses Desktop.
func New(cfg Config, bus pipeline.Bus, send SendFunc, logger *slog.Logger) *Notifier {
	if send == nil {
		send = Desktop
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AppName == "" {
		cfg.AppName = "ASR"
	}
	return &Notifier{
		cfg:    cfg,
		bus:    bus,
		send:   send,
		events: make(chan pipeline.Event, 32),
		logger: logger.With("component", "notify"),
	}
}

// Run shows notifications until ctx is done. It returns immediately when
// notifications are disabled.
func (n *Notifier) Run(ctx context.Context) error {
	if !n.cfg.Enabled {
		return nil
	}

	for _, t := range []pipeline.EventType{
		pipeline.EventActivated,
		pipeline.EventPaused,
		pipeline.EventProcessing,
		pipeline.EventSuccess,
		pipeline.EventFailure,
		pipeline.EventDeviceError,
	} {
		n.bus.Subscribe(t, n.events)
	}
	defer n.bus.Unsubscribe(n.events)

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-n.events:
			msg, ok := n.format(evt)
			if !ok {
				continue
			}
			start := time.Now()
			if err := n.send(msg); err != nil {
				n.logger.Warn("notification failed", "event", evt.Type, "error", err)
				continue
			}
			n.logger.Debug("notification shown", "event", evt.Type, "took", time.Since(start))
		}
	}
}

func (n *Notifier) format(evt pipeline.Event) (Notification, bool) {
	icons := n.cfg.Icons
	switch evt.Type {
	case pipeline.EventActivated:
		return Notification{Title: n.cfg.AppName, Message: "Listening", Icon: icons.Listening}, true
	case pipeline.EventPaused:
		return Notification{Title: n.cfg.AppName, Message: "Paused", Icon: icons.Paused}, true
	case pipeline.EventProcessing:
		return Notification{Title: n.cfg.AppName, Message: "Transcribing audio...", Icon: icons.Processing}, true
	case pipeline.EventSuccess:
		p, _ := evt.Payload.(pipeline.SuccessPayload)
		return Notification{Title: "ASR Result", Message: successMessage(p), Icon: icons.Success}, true
	case pipeline.EventFailure:
		p, _ := evt.Payload.(pipeline.FailurePayload)
		return Notification{Title: failureTitle(p.Stage), Message: p.Reason, Icon: icons.Error}, true
	case pipeline.EventDeviceError:
		p, _ := evt.Payload.(pipeline.FailurePayload)
		return Notification{Title: "Audio Error", Message: p.Reason, Icon: icons.Error, Critical: true}, true
	default:
		return Notification{}, false
	}
}

func successMessage(p pipeline.SuccessPayload) string {
	switch p.Sink {
	case "clipboard":
		return "Text copied"
	case "type":
		return "Text typed"
	case "file":
		return fmt.Sprintf("Text saved to %s", filepath.Base(p.Target))
	default:
		return "Text delivered"
	}
}

func failureTitle(stage string) string {
	switch stage {
	case pipeline.StageDeliver:
		return "Output Error"
	case pipeline.StageCapture:
		return "Audio Error"
	default:
		return "ASR Error"
	}
}
