package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// CaptureConfig describes the input device and the frame format produced.
type CaptureConfig struct {
	// Device is the capture device name; empty or "default" selects the
	// system default input.
	Device string

	// SampleRate is the rate of the produced frames.
	SampleRate int
	// Channels is the device channel count. Frames are always mono.
	Channels int
	// FrameMs is the duration of one produced frame.
	FrameMs int

	// DeviceSampleRate opens the device at a different rate and resamples
	// to SampleRate. Zero uses SampleRate directly.
	DeviceSampleRate int

	// BufferFrames bounds the number of frames waiting to be read. A reader
	// that falls this far behind interrupts the stream.
	BufferFrames int
}

// DefaultCaptureConfig returns 16 kHz mono with 32 ms frames.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Device:       "default",
		SampleRate:   16000,
		Channels:     1,
		FrameMs:      32,
		BufferFrames: 256,
	}
}

// FrameSamples returns the number of samples in one frame.
func (c CaptureConfig) FrameSamples() int {
	return c.SampleRate * c.FrameMs / 1000
}

func (c CaptureConfig) deviceRate() int {
	if c.DeviceSampleRate > 0 {
		return c.DeviceSampleRate
	}
	return c.SampleRate
}

// Capture reads frames from a microphone through miniaudio.
type Capture struct {
	cfg    CaptureConfig
	logger *slog.Logger

	mctx      *malgo.AllocatedContext
	device    *malgo.Device
	framer    *Framer
	resampler *Resampler

	frames chan Frame

	failed   chan struct{}
	failOnce sync.Once
	failErr  error

	closing   atomic.Bool
	closeOnce sync.Once
}

var _ FrameSource = (*Capture)(nil)

// OpenCapture opens and starts the configured input device. Failures are
// reported as ErrDeviceUnavailable.
func OpenCapture(cfg CaptureConfig, logger *slog.Logger) (*Capture, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferFrames <= 0 {
		cfg.BufferFrames = DefaultCaptureConfig().BufferFrames
	}

	c := &Capture{
		cfg:    cfg,
		logger: logger.With("component", "capture"),
		frames: make(chan Frame, cfg.BufferFrames),
		failed: make(chan struct{}),
	}

	framerChannels := cfg.Channels
	if cfg.deviceRate() != cfg.SampleRate {
		r, err := NewResampler(cfg.deviceRate(), cfg.SampleRate, cfg.Channels)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		c.resampler = r
		framerChannels = 1
	}

	framer, err := NewFramer(cfg.SampleRate, framerChannels, cfg.FrameSamples())
	if err != nil {
		c.freeResampler()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	c.framer = framer

	if err := c.start(); err != nil {
		c.teardown()
		return nil, err
	}

	c.logger.Info("capture started",
		"device", cfg.Device,
		"sample_rate", cfg.SampleRate,
		"device_sample_rate", cfg.deviceRate(),
		"channels", cfg.Channels,
		"frame_ms", cfg.FrameMs)
	return c, nil
}

func (c *Capture) start() error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: init context: %v", ErrDeviceUnavailable, err)
	}
	c.mctx = mctx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.PeriodSizeInMilliseconds = uint32(c.cfg.FrameMs)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(c.cfg.Channels)
	deviceConfig.SampleRate = uint32(c.cfg.deviceRate())
	deviceConfig.Alsa.NoMMap = 1

	if c.cfg.Device != "" && c.cfg.Device != "default" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			return fmt.Errorf("%w: enumerate devices: %v", ErrDeviceUnavailable, err)
		}
		found := false
		for _, info := range infos {
			if info.Name() == c.cfg.Device {
				deviceConfig.Capture.DeviceID = info.ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: no capture device named %q", ErrDeviceUnavailable, c.cfg.Device)
		}
	}

	c.device, err = malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: c.onData,
		Stop: c.onStop,
	})
	if err != nil {
		return fmt.Errorf("%w: init device: %v", ErrDeviceUnavailable, err)
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("%w: start device: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

// onData runs on the audio thread and must never block.
func (c *Capture) onData(_, input []byte, _ uint32) {
	if c.closing.Load() {
		return
	}

	data := input
	if c.resampler != nil {
		out, err := c.resampler.Resample(input)
		if err != nil {
			c.fail(fmt.Errorf("%w: resample: %v", ErrStreamInterrupted, err))
			return
		}
		data = out
	}

	for _, f := range c.framer.Write(data) {
		select {
		case c.frames <- f:
		default:
			c.fail(fmt.Errorf("%w: reader fell %d frames behind", ErrStreamInterrupted, cap(c.frames)))
			return
		}
	}
}

func (c *Capture) onStop() {
	if c.closing.Load() {
		return
	}
	c.fail(fmt.Errorf("%w: device stopped", ErrStreamInterrupted))
}

func (c *Capture) fail(err error) {
	c.failOnce.Do(func() {
		c.failErr = err
		close(c.failed)
		c.logger.Error("capture stream failed", "error", err)
	})
}

// ReadFrame implements FrameSource. Frames already buffered are still
// returned after the stream has failed.
func (c *Capture) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	default:
	}

	select {
	case f := <-c.frames:
		return f, nil
	case <-c.failed:
		return Frame{}, c.failErr
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// FrameDuration returns the duration of every produced frame.
func (c *Capture) FrameDuration() time.Duration {
	return SamplesDuration(c.cfg.FrameSamples(), c.cfg.SampleRate)
}

// Close stops the device and releases miniaudio resources.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.teardown()
		c.logger.Info("capture closed")
	})
	return nil
}

func (c *Capture) teardown() {
	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	if c.mctx != nil {
		_ = c.mctx.Uninit()
		c.mctx.Free()
		c.mctx = nil
	}
	c.freeResampler()
}

func (c *Capture) freeResampler() {
	if c.resampler != nil {
		c.resampler.Free()
		c.resampler = nil
	}
}

// ListCaptureDevices returns the names of the available input devices.
func ListCaptureDevices() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init context: %v", ErrDeviceUnavailable, err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}
