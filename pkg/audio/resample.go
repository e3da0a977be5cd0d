package audio

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// Resampler converts S16 device audio at one rate and channel layout into
// mono S16 at the pipeline rate using libswresample.
type Resampler struct {
	ctx      *astiav.SoftwareResampleContext
	inFrame  *astiav.Frame
	outFrame *astiav.Frame

	inLayout   astiav.ChannelLayout
	inChannels int
	inRate     int
	outRate    int
}

// NewResampler creates a resampler from inRate with inChannels (1 or 2) to
// mono outRate.
func NewResampler(inRate, outRate, inChannels int) (*Resampler, error) {
	if inRate <= 0 {
		return nil, fmt.Errorf("invalid input sample rate: %d", inRate)
	}
	if outRate <= 0 {
		return nil, fmt.Errorf("invalid output sample rate: %d", outRate)
	}

	r := &Resampler{
		inChannels: inChannels,
		inRate:     inRate,
		outRate:    outRate,
	}
	switch inChannels {
	case 1:
		r.inLayout = astiav.ChannelLayoutMono
	case 2:
		r.inLayout = astiav.ChannelLayoutStereo
	default:
		return nil, fmt.Errorf("unsupported channel count for resampling: %d", inChannels)
	}

	r.ctx = astiav.AllocSoftwareResampleContext()
	if r.ctx == nil {
		return nil, fmt.Errorf("failed to allocate resample context")
	}
	r.inFrame = astiav.AllocFrame()
	r.outFrame = astiav.AllocFrame()
	if r.inFrame == nil || r.outFrame == nil {
		r.Free()
		return nil, fmt.Errorf("failed to allocate resample frames")
	}
	return r, nil
}

// Free releases the underlying FFmpeg objects.
func (r *Resampler) Free() {
	if r.ctx != nil {
		r.ctx.Free()
		r.ctx = nil
	}
	if r.inFrame != nil {
		r.inFrame.Free()
		r.inFrame = nil
	}
	if r.outFrame != nil {
		r.outFrame.Free()
		r.outFrame = nil
	}
}

// Resample converts one block of interleaved S16LE input into mono S16LE.
func (r *Resampler) Resample(in []byte) ([]byte, error) {
	const align = 0

	numSamples := len(in) / (2 * r.inChannels)
	if numSamples == 0 {
		return nil, nil
	}

	r.inFrame.Unref()
	r.outFrame.Unref()

	r.inFrame.SetChannelLayout(r.inLayout)
	r.inFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.inFrame.SetSampleRate(r.inRate)
	r.inFrame.SetNbSamples(numSamples)

	outSamples := numSamples * r.outRate / r.inRate
	if outSamples == 0 {
		outSamples = 1
	}
	r.outFrame.SetChannelLayout(astiav.ChannelLayoutMono)
	r.outFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.outFrame.SetSampleRate(r.outRate)
	r.outFrame.SetNbSamples(outSamples)

	if err := r.inFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("allocate input buffer: %w", err)
	}
	if err := r.outFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("allocate output buffer: %w", err)
	}

	size, err := r.inFrame.SamplesBufferSize(align)
	if err != nil {
		return nil, fmt.Errorf("input buffer size: %w", err)
	}
	buf := in
	if len(buf) < size {
		buf = make([]byte, size)
		copy(buf, in)
	}
	if err := r.inFrame.Data().SetBytes(buf[:size], align); err != nil {
		return nil, fmt.Errorf("set input data: %w", err)
	}

	if err := r.ctx.ConvertFrame(r.inFrame, r.outFrame); err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}

	out, err := r.outFrame.Data().Bytes(align)
	if err != nil {
		return nil, fmt.Errorf("read output data: %w", err)
	}
	return out, nil
}
