package voice

import (
	"bytes"
	"context"
	"errors"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

const voicesTable = `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 5  en-gb           --/M      English_(Great_Britain) gmw/en               (en 2)
 2  en-us           --/M      English_(America)  gmw/en-US            (en 3)
 5  fr-fr           --/M      French_(France)    roa/fr               (fr 5)
`

func TestParseEspeakVoices(t *testing.T) {
	voices := parseEspeakVoices(voicesTable)
	require.Equal(t, []Voice{
		{Name: "gmw/af", Lang: "af"},
		{Name: "gmw/en", Lang: "en-gb"},
		{Name: "gmw/en-US", Lang: "en-us"},
		{Name: "roa/fr", Lang: "fr-fr"},
	}, voices)
}

func TestVoiceMatchesLocale(t *testing.T) {
	v := Voice{Name: "gmw/en-US", Lang: "en_US"}
	require.True(t, v.Matches("en"))
	require.True(t, v.Matches("EN-us"))
	require.True(t, v.Matches(""))
	require.False(t, v.Matches("fr"))
	require.False(t, Voice{Name: "alloy"}.Matches("en"))
}

func TestEspeakArgvMapsProsody(t *testing.T) {
	argv := espeakArgv([]string{"espeak-ng", "--stdout"}, Params{Voice: "gmw/en", Rate: 0.9, Pitch: 1, Volume: 1})
	require.Equal(t, []string{"espeak-ng", "--stdout", "-v", "gmw/en", "-s", "158", "-p", "50", "-a", "100", "--stdin"}, argv)

	argv = espeakArgv([]string{"espeak-ng"}, Params{Rate: 10, Pitch: 2, Volume: 0})
	require.Equal(t, []string{"espeak-ng", "-s", "500", "-p", "99", "-a", "0", "--stdin"}, argv)
}

func TestEspeakSynthesizeDecodesWAV(t *testing.T) {
	wavBytes := encodeTestWAV(t, []int{100, -100, 200}, 22050)

	var gotArgv []string
	var gotStdin string
	e := NewEspeak([]string{"espeak-ng", "--stdout"}, nil)
	e.run = func(_ context.Context, argv []string, stdin string) ([]byte, error) {
		gotArgv, gotStdin = argv, stdin
		return wavBytes, nil
	}

	clip, err := e.Synthesize(context.Background(), "-dash first", Params{Rate: 1, Pitch: 1, Volume: 1})
	require.NoError(t, err)
	require.Equal(t, 22050, clip.SampleRate)
	require.Equal(t, []int16{100, -100, 200}, clip.Samples)
	require.Equal(t, "-dash first", gotStdin)
	require.Equal(t, "--stdin", gotArgv[len(gotArgv)-1])
}

func TestEspeakSynthesizeErrors(t *testing.T) {
	_, err := NewEspeak(nil, nil).Synthesize(context.Background(), "hi", Params{})
	require.Error(t, err)

	e := NewEspeak([]string{"espeak-ng"}, nil)
	e.run = func(context.Context, []string, string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}
	_, err = e.Synthesize(context.Background(), "hi", Params{})
	require.ErrorContains(t, err, "run espeak")

	e.run = func(context.Context, []string, string) ([]byte, error) {
		return []byte("not a wav"), nil
	}
	_, err = e.Synthesize(context.Background(), "hi", Params{})
	require.ErrorContains(t, err, "invalid wav")
}

func TestEspeakVoicesUsesVoicesCommand(t *testing.T) {
	e := NewEspeak([]string{"espeak-ng"}, []string{"espeak-ng", "--voices"})
	e.run = func(_ context.Context, argv []string, _ string) ([]byte, error) {
		require.Equal(t, []string{"espeak-ng", "--voices"}, argv)
		return []byte(voicesTable), nil
	}
	voices, err := e.Voices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 4)

	voices, err = NewEspeak([]string{"espeak-ng"}, nil).Voices(context.Background())
	require.NoError(t, err)
	require.Empty(t, voices)
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	var buf seekBuffer
	enc := wav.NewEncoder(&buf, 8000, 16, 2, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           []int{100, 300, -50, -150},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())

	clip, err := decodeWAV(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, []int16{200, -100}, clip.Samples)
}

func encodeTestWAV(t *testing.T, samples []int, rate int) []byte {
	t.Helper()
	var buf seekBuffer
	enc := wav.NewEncoder(&buf, rate, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return buf.Bytes()
}

// seekBuffer is an in-memory io.WriteSeeker for the wav encoder.
type seekBuffer struct {
	data []byte
	pos  int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if end := s.pos + len(p); end > len(s.data) {
		s.data = append(s.data, make([]byte, end-len(s.data))...)
	}
	copy(s.data[s.pos:], p)
	s.pos += len(p)
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		s.pos = int(offset)
	case 1:
		s.pos += int(offset)
	case 2:
		s.pos = len(s.data) + int(offset)
	}
	if s.pos < 0 {
		return 0, errors.New("negative seek")
	}
	return int64(s.pos), nil
}

func (s *seekBuffer) Bytes() []byte {
	return bytes.Clone(s.data)
}
