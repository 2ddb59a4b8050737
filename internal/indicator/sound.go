package indicator

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/go-audio/wav"

	"github.com/rbright/colloquy/internal/audio"
	"github.com/rbright/colloquy/internal/config"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueError
)

func (k cueKind) String() string {
	switch k {
	case cueStart:
		return "start"
	case cueStop:
		return "stop"
	case cueError:
		return "error"
	default:
		return fmt.Sprintf("cue(%d)", int(k))
	}
}

const (
	cueSampleRate = 16000
	// maxCueLength caps decoded cue files; longer files are truncated.
	maxCueLength = 3 * time.Second
)

var errUnsupportedCue = errors.New("unsupported cue file format")

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var (
	startCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
	})
	stopCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 620, duration: 120 * time.Millisecond, volume: 0.18},
	})
	errorCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 480, duration: 75 * time.Millisecond, volume: 0.18},
		{frequencyHz: 360, duration: 90 * time.Millisecond, volume: 0.18},
	})
)

func cuePath(kind cueKind, cfg config.IndicatorConfig) string {
	var raw string
	switch kind {
	case cueStart:
		raw = cfg.SoundStartFile
	case cueStop:
		raw = cfg.SoundStopFile
	case cueError:
		raw = cfg.SoundErrorFile
	default:
		return ""
	}
	return expandUserPath(raw)
}

func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(raw, "~"), "/"))
}

// decodeCueFile reads an mp3, wav, or ogg file into a mono clip at the
// file's native sample rate. WAV goes through go-audio so 16-bit samples
// keep full scale.
func decodeCueFile(path string) (audio.Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("open cue file: %w", err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".wav" {
		clip, err := decodeWAVCue(f)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("decode cue file %q: %w", path, err)
		}
		return clip, nil
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".ogg", ".oga":
		streamer, format, err = vorbis.Decode(f)
	default:
		return audio.Clip{}, fmt.Errorf("%w: %q", errUnsupportedCue, filepath.Ext(path))
	}
	if err != nil {
		return audio.Clip{}, fmt.Errorf("decode cue file %q: %w", path, err)
	}
	defer streamer.Close()

	samples := downmix(streamer, format.SampleRate.N(maxCueLength))
	if err := streamer.Err(); err != nil {
		return audio.Clip{}, fmt.Errorf("stream cue file %q: %w", path, err)
	}
	if len(samples) == 0 {
		return audio.Clip{}, fmt.Errorf("cue file %q has no audio", path)
	}
	return audio.Clip{Samples: samples, SampleRate: int(format.SampleRate)}, nil
}

// decodeWAVCue reads up to maxCueLength of 16-bit PCM and averages the
// channels.
func decodeWAVCue(r io.ReadSeeker) (audio.Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return audio.Clip{}, errors.New("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return audio.Clip{}, err
	}
	if buf == nil || buf.Format == nil || buf.Format.SampleRate <= 0 {
		return audio.Clip{}, errors.New("wav has no format")
	}
	if buf.SourceBitDepth != 16 {
		return audio.Clip{}, fmt.Errorf("unsupported wav bit depth %d", buf.SourceBitDepth)
	}

	channels := max(buf.Format.NumChannels, 1)
	limit := int(maxCueLength.Seconds() * float64(buf.Format.SampleRate))
	samples := make([]int16, 0, min(len(buf.Data)/channels, limit))
	for i := 0; i+channels <= len(buf.Data) && len(samples) < limit; i += channels {
		sum := 0
		for c := range channels {
			sum += buf.Data[i+c]
		}
		samples = append(samples, int16(sum/channels))
	}
	if len(samples) == 0 {
		return audio.Clip{}, errors.New("wav has no audio")
	}
	return audio.Clip{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// downmix averages both channels of up to limit frames into s16 samples.
func downmix(streamer beep.Streamer, limit int) []int16 {
	buf := make([][2]float64, 512)
	out := make([]int16, 0, min(limit, 1<<16))
	for len(out) < limit {
		n, ok := streamer.Stream(buf)
		for _, frame := range buf[:min(n, limit-len(out))] {
			mono := math.Max(-1, math.Min(1, (frame[0]+frame[1])/2))
			out = append(out, int16(math.Round(mono*32767)))
		}
		if !ok {
			break
		}
	}
	return out
}

func synthCue(kind cueKind) audio.Clip {
	var samples []int16
	switch kind {
	case cueStart:
		samples = startCuePCM
	case cueStop:
		samples = stopCuePCM
	case cueError:
		samples = errorCuePCM
	}
	return audio.Clip{Samples: samples, SampleRate: cueSampleRate}
}

func synthesizeCue(parts []toneSpec) []int16 {
	if len(parts) == 0 {
		return nil
	}
	gapSamples := samplesForDuration(22 * time.Millisecond)
	total := 0
	for i, part := range parts {
		total += samplesForDuration(part.duration)
		if i < len(parts)-1 {
			total += gapSamples
		}
	}

	pcm := make([]int16, 0, total)
	for i, part := range parts {
		pcm = append(pcm, synthesizeTone(part)...)
		if i < len(parts)-1 && gapSamples > 0 {
			pcm = append(pcm, make([]int16, gapSamples)...)
		}
	}
	return pcm
}

func synthesizeTone(spec toneSpec) []int16 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	// 5ms ramps at each edge avoid clicks.
	ramp := max(1, min(n/10, cueSampleRate/200))

	pcm := make([]int16, n)
	for i := range n {
		envelope := math.Min(1, math.Min(float64(i)/float64(ramp), float64(n-i-1)/float64(ramp)))
		t := float64(i) / cueSampleRate
		sample := math.Sin(2 * math.Pi * spec.frequencyHz * t)
		pcm[i] = int16(math.Round(sample * spec.volume * envelope * 32767))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
