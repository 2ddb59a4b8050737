package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/go-audio/wav"

	"github.com/rbright/colloquy/internal/audio"
)

const (
	espeakDefaultWPM   = 175
	espeakDefaultPitch = 50
	espeakDefaultAmp   = 100
)

type runFunc func(ctx context.Context, argv []string, stdin string) ([]byte, error)

// Espeak drives the espeak-ng command line synthesizer.
type Espeak struct {
	command       []string
	voicesCommand []string
	run           runFunc
}

// NewEspeak builds an engine from the synthesize and list-voices argv.
func NewEspeak(command []string, voicesCommand []string) *Espeak {
	return &Espeak{command: command, voicesCommand: voicesCommand, run: runCommand}
}

// Voices parses the table printed by `espeak-ng --voices`.
func (e *Espeak) Voices(ctx context.Context) ([]Voice, error) {
	if len(e.voicesCommand) == 0 {
		return nil, nil
	}
	out, err := e.run(ctx, e.voicesCommand, "")
	if err != nil {
		return nil, fmt.Errorf("list espeak voices: %w", err)
	}
	return parseEspeakVoices(string(out)), nil
}

// Synthesize renders text through espeak-ng and decodes its WAV output.
func (e *Espeak) Synthesize(ctx context.Context, text string, params Params) (audio.Clip, error) {
	if len(e.command) == 0 {
		return audio.Clip{}, errors.New("espeak command is not configured")
	}
	out, err := e.run(ctx, espeakArgv(e.command, params), text)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("run espeak: %w", err)
	}
	return decodeWAV(out)
}

func espeakArgv(base []string, params Params) []string {
	argv := append([]string(nil), base...)
	if params.Voice != "" {
		argv = append(argv, "-v", params.Voice)
	}
	argv = append(argv,
		"-s", strconv.Itoa(scale(espeakDefaultWPM, params.Rate, 80, 500)),
		"-p", strconv.Itoa(scale(espeakDefaultPitch, params.Pitch, 0, 99)),
		"-a", strconv.Itoa(scale(espeakDefaultAmp, params.Volume, 0, 200)),
		"--stdin",
	)
	return argv
}

func scale(base int, factor float64, lo int, hi int) int {
	v := int(math.Round(float64(base) * factor))
	return min(max(v, lo), hi)
}

// parseEspeakVoices reads rows like:
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  en-gb           --/M      English_(Great_Britain) gmw/en
func parseEspeakVoices(table string) []Voice {
	var voices []Voice
	for i, line := range strings.Split(table, "\n") {
		fields := strings.Fields(line)
		if i == 0 || len(fields) < 5 {
			continue
		}
		voices = append(voices, Voice{
			Name: fields[4],
			Lang: fields[1],
		})
	}
	return voices
}

func decodeWAV(data []byte) (audio.Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return audio.Clip{}, errors.New("synthesizer produced invalid wav output")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return audio.Clip{}, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return audio.Clip{}, errors.New("synthesizer produced no audio")
	}
	if buf.SourceBitDepth != 16 {
		return audio.Clip{}, fmt.Errorf("unsupported wav bit depth %d", buf.SourceBitDepth)
	}

	channels := max(buf.Format.NumChannels, 1)
	samples := make([]int16, 0, len(buf.Data)/channels)
	for i := 0; i+channels <= len(buf.Data); i += channels {
		sum := 0
		for c := range channels {
			sum += buf.Data[i+c]
		}
		samples = append(samples, int16(sum/channels))
	}
	return audio.Clip{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

func runCommand(ctx context.Context, argv []string, stdin string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
