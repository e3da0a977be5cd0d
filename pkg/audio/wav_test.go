package audio

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestSegmentDumper_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dumps")
	d, err := NewSegmentDumper(dir)
	if err != nil {
		t.Fatalf("NewSegmentDumper failed: %v", err)
	}

	seg := &Segment{
		ID:         uuid.New(),
		Frames:     testFrames(3),
		SampleRate: 16000,
	}
	path, err := d.Dump(seg)
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}

	samples, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("Expected rate 16000, got %d", rate)
	}
	want := seg.PCM()
	if len(samples) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(samples))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("Sample %d: expected %d, got %d", i, want[i], samples[i])
		}
	}
}

func TestFramesFromPCM(t *testing.T) {
	frames := FramesFromPCM(make([]int16, 1100), 16000, 512)
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if frames[1].Seq != 1 {
		t.Errorf("Expected seq 1, got %d", frames[1].Seq)
	}
}
