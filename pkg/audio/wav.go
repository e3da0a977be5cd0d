package audio

import (
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SegmentDumper writes finalized segments to WAV files for debugging
// segmentation settings.
type SegmentDumper struct {
	dir string
}

// NewSegmentDumper creates dir if needed and returns a dumper writing into it.
func NewSegmentDumper(dir string) (*SegmentDumper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	return &SegmentDumper{dir: dir}, nil
}

// Dump writes seg as <dir>/<segment id>.wav and returns the file path.
func (d *SegmentDumper) Dump(seg *Segment) (string, error) {
	path := filepath.Join(d.dir, seg.ID.String()+".wav")
	if err := WriteWAV(path, seg.PCM(), seg.SampleRate); err != nil {
		return "", err
	}
	return path, nil
}

// WriteWAV writes mono 16-bit samples to a WAV file.
func WriteWAV(path string, samples []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// ReadWAV reads a mono 16-bit WAV file. It is used to replay recordings
// through the pipeline.
func ReadWAV(path string) ([]int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s is not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	out := make([]int16, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		out = append(out, int16(buf.Data[i]))
	}
	return out, buf.Format.SampleRate, nil
}

// FramesFromPCM cuts samples into frames of frameSamples, dropping any
// trailing partial frame.
func FramesFromPCM(samples []int16, sampleRate, frameSamples int) []Frame {
	n := len(samples) / frameSamples
	frames := make([]Frame, n)
	for i := range frames {
		s := make([]int16, frameSamples)
		copy(s, samples[i*frameSamples:])
		frames[i] = Frame{Seq: uint64(i), Samples: s, SampleRate: sampleRate}
	}
	return frames
}
