package audio

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacedSource_RealTimeInterval(t *testing.T) {
	// 10 ms frames at 16 kHz.
	src := NewSliceSource(ToneFrames(6, 160, 16000, 100))
	paced := NewPacedSource(src)

	start := time.Now()
	for i := 0; i < 6; i++ {
		f, err := paced.ReadFrame(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(i), f.Seq)
	}
	// The first frame is immediate; five intervals follow.
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)

	_, err := paced.ReadFrame(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestPacedSource_NoBurstAfterStall(t *testing.T) {
	clock := time.Unix(0, 0)
	src := NewSliceSource(ToneFrames(3, 160, 16000, 100))
	paced := NewPacedSource(src)
	paced.now = func() time.Time { return clock }

	_, err := paced.ReadFrame(context.Background())
	require.NoError(t, err)

	// The consumer stalls for a second; the next read is not delayed and the
	// schedule restarts from there.
	clock = clock.Add(time.Second)
	_, err = paced.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Add(10*time.Millisecond), paced.next)
}

func TestPacedSource_Cancelled(t *testing.T) {
	src := NewSliceSource(ToneFrames(2, 16000, 16000, 100)) // 1 s frames
	paced := NewPacedSource(src)

	_, err := paced.ReadFrame(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = paced.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.wav")
	samples := make([]int16, 16000/10*3+50) // three 100 ms frames plus a partial
	require.NoError(t, WriteWAV(path, samples, 16000))

	_, err := OpenReplay(path, 8000, 800)
	assert.Error(t, err, "sample rate mismatch")

	paced, err := OpenReplay(path, 16000, 1600)
	require.NoError(t, err)
	paced.now = func() time.Time { return time.Unix(0, 0) }

	for i := 0; i < 3; i++ {
		// Pretend each read happens on schedule.
		paced.next = time.Time{}
		f, err := paced.ReadFrame(context.Background())
		require.NoError(t, err)
		assert.Len(t, f.Samples, 1600)
	}

	// A finished recording goes quiet rather than ending the stream.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = paced.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
