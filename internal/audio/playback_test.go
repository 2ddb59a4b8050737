package audio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScale(t *testing.T) {
	clip := Clip{Samples: []int16{1000, -1000, 3}, SampleRate: 8000}

	require.Equal(t, clip, Scale(clip, 1))
	require.Equal(t, []int16{500, -500, 2}, Scale(clip, 0.5).Samples)
	require.Equal(t, []int16{0, 0, 0}, Scale(clip, -1).Samples)
	require.Equal(t, []int16{1000, -1000, 3}, clip.Samples)
}

func TestClipDuration(t *testing.T) {
	require.InDelta(t, 0.5, Clip{Samples: make([]int16, 8000), SampleRate: 16000}.Duration(), 1e-9)
	require.Zero(t, Clip{Samples: make([]int16, 10)}.Duration())
}

func TestPCM16LE(t *testing.T) {
	require.Equal(t, []int16{-1200, 300}, PCM16LE([]byte{0x50, 0xFB, 0x2C, 0x01, 0x7F}))
}

func TestPlayShortCircuits(t *testing.T) {
	require.NoError(t, Play(context.Background(), Clip{}, "empty"))

	err := Play(context.Background(), Clip{Samples: []int16{1}}, "bad rate")
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Play(ctx, Clip{Samples: []int16{1}, SampleRate: 16000}, "cancelled"), context.Canceled)
}

func TestPlayFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	err := Play(context.Background(), Clip{Samples: []int16{1, 2}, SampleRate: 16000}, "cue")
	require.Error(t, err)
}
