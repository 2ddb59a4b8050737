package audio

import (
	"context"
	"fmt"
	"math"

	"github.com/jfreymuth/pulse"
)

// Clip is mono s16 PCM at a fixed sample rate.
type Clip struct {
	Samples    []int16
	SampleRate int
}

// Duration is the clip's playback length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Scale returns a copy of clip with every sample multiplied by gain in [0, 1].
func Scale(clip Clip, gain float64) Clip {
	if gain >= 1 {
		return clip
	}
	gain = math.Max(gain, 0)
	out := make([]int16, len(clip.Samples))
	for i, s := range clip.Samples {
		out[i] = int16(math.Round(float64(s) * gain))
	}
	return Clip{Samples: out, SampleRate: clip.SampleRate}
}

// Play blocks until clip finishes or ctx ends. Cancellation stops feeding the
// stream, so only the ~20ms already buffered remains audible.
func Play(ctx context.Context, clip Clip, mediaName string) error {
	if len(clip.Samples) == 0 {
		return nil
	}
	if clip.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", clip.SampleRate)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := newClient("audio-speakers")
	if err != nil {
		return err
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if ctx.Err() != nil || cursor >= len(clip.Samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, clip.Samples[cursor:])
		cursor += n
		if cursor >= len(clip.Samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(clip.SampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName(mediaName),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play %s: %w", mediaName, err)
	}
	return ctx.Err()
}

// PCM16LE decodes little-endian s16 bytes into samples. A trailing odd byte is dropped.
func PCM16LE(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
	}
	return out
}
