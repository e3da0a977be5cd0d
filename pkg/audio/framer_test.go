package audio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestFramer_ExactFrames(t *testing.T) {
	fr, err := NewFramer(16000, 1, 4)
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}

	// 10 samples: two full frames, two samples pending
	in := Int16ToBytes([]int16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	frames := fr.Write(in)
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if fr.Buffered() != 2 {
		t.Errorf("Expected 2 buffered samples, got %d", fr.Buffered())
	}

	frames = fr.Write(Int16ToBytes([]int16{11, 12}))
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	want := []int16{9, 10, 11, 12}
	for i, s := range frames[0].Samples {
		if s != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], s)
		}
	}
	if frames[0].Seq != 2 {
		t.Errorf("Expected seq 2, got %d", frames[0].Seq)
	}
}

func TestFramer_SplitSampleBytes(t *testing.T) {
	fr, _ := NewFramer(16000, 1, 2)
	b := Int16ToBytes([]int16{100, -100})

	if got := fr.Write(b[:3]); len(got) != 0 {
		t.Fatalf("Expected no frame from partial write, got %d", len(got))
	}
	got := fr.Write(b[3:])
	if len(got) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(got))
	}
	if got[0].Samples[0] != 100 || got[0].Samples[1] != -100 {
		t.Errorf("Unexpected samples %v", got[0].Samples)
	}
}

func TestFramer_DownmixKeepsFirstChannel(t *testing.T) {
	fr, _ := NewFramer(16000, 2, 3)
	// L/R interleaved
	frames := fr.Write(Int16ToBytes([]int16{1, -1, 2, -2, 3, -3}))
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	want := []int16{1, 2, 3}
	for i, s := range frames[0].Samples {
		if s != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], s)
		}
	}
}

func TestNewFramer_InvalidArgs(t *testing.T) {
	if _, err := NewFramer(0, 1, 512); err == nil {
		t.Error("Expected error for zero sample rate")
	}
	if _, err := NewFramer(16000, 0, 512); err == nil {
		t.Error("Expected error for zero channels")
	}
	if _, err := NewFramer(16000, 1, 0); err == nil {
		t.Error("Expected error for zero frame size")
	}
}

func TestFrame_Duration(t *testing.T) {
	f := Frame{Samples: make([]int16, 512), SampleRate: 16000}
	if f.Duration() != 32*time.Millisecond {
		t.Errorf("Expected 32ms, got %v", f.Duration())
	}
}

func TestSegment_PCM(t *testing.T) {
	seg := &Segment{Frames: []Frame{
		{Samples: []int16{1, 2}, SampleRate: 16000},
		{Samples: []int16{3}, SampleRate: 16000},
	}}
	pcm := seg.PCM()
	if len(pcm) != 3 || pcm[0] != 1 || pcm[2] != 3 {
		t.Errorf("Unexpected PCM %v", pcm)
	}
}

func TestSliceSource(t *testing.T) {
	src := NewSliceSource(testFrames(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		f, err := src.ReadFrame(ctx)
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if f.Seq != uint64(i) {
			t.Errorf("Expected seq %d, got %d", i, f.Seq)
		}
	}

	if _, err := src.ReadFrame(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}

	src = NewSliceSource(nil)
	src.Err = ErrStreamInterrupted
	if _, err := src.ReadFrame(ctx); !errors.Is(err, ErrStreamInterrupted) {
		t.Errorf("Expected ErrStreamInterrupted, got %v", err)
	}
}

func TestSliceSource_Hold(t *testing.T) {
	src := NewSliceSource(nil)
	src.Hold = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := src.ReadFrame(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
