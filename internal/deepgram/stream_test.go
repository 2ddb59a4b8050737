package deepgram

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/listen"
}

func TestBuildListenURL(t *testing.T) {
	raw, err := BuildListenURL(Config{
		URL:           "wss://api.deepgram.com/v1/listen",
		Model:         "nova-2",
		Language:      "en-US",
		SmartFormat:   true,
		EndpointingMS: 300,
	})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "/v1/listen", u.Path)
	require.Equal(t, "linear16", q.Get("encoding"))
	require.Equal(t, "16000", q.Get("sample_rate"))
	require.Equal(t, "nova-2", q.Get("model"))
	require.Equal(t, "en-US", q.Get("language"))
	require.Equal(t, "true", q.Get("smart_format"))
	require.Equal(t, "300", q.Get("endpointing"))
	require.Equal(t, "false", q.Get("interim_results"))

	_, err = BuildListenURL(Config{URL: "https://api.deepgram.com"})
	require.Error(t, err)
}

func TestDecodeEvent(t *testing.T) {
	event, ok := decodeEvent([]byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"who is the narrator","confidence":0.9}]}}`))
	require.True(t, ok)
	require.Equal(t, EventResults, event.Kind)
	require.Equal(t, "who is the narrator", event.Transcript)
	require.True(t, event.IsFinal)
	require.True(t, event.SpeechFinal)

	event, ok = decodeEvent([]byte(`{"type":"SpeechStarted","timestamp":0.4}`))
	require.True(t, ok)
	require.Equal(t, EventSpeechStarted, event.Kind)

	_, ok = decodeEvent([]byte(`{"type":"Mystery"}`))
	require.False(t, ok)
	_, ok = decodeEvent([]byte(`not json`))
	require.False(t, ok)
}

func TestDialStreamsAudioAndReceivesResults(t *testing.T) {
	gotAudio := make(chan []byte, 1)
	gotControl := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Token secret", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			msgType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.BinaryMessage {
				gotAudio <- payload
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SpeechStarted"}`))
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"hello"}]}}`))
				continue
			}
			gotControl <- string(payload)
			if strings.Contains(string(payload), "CloseStream") {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
	defer srv.Close()

	var dump bytes.Buffer
	stream, err := Dial(context.Background(), Config{URL: wsURL(srv), APIKey: "secret", Dump: &dump})
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.SendAudio([]byte{1, 2, 3, 4}))
	require.Equal(t, []byte{1, 2, 3, 4}, <-gotAudio)

	first := <-stream.Events()
	require.Equal(t, EventSpeechStarted, first.Kind)
	second := <-stream.Events()
	require.Equal(t, "hello", second.Transcript)

	require.NoError(t, stream.CloseSend())
	require.Contains(t, <-gotControl, `"type":"CloseStream"`)

	select {
	case _, ok := <-stream.Events():
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel did not close")
	}
	require.NoError(t, stream.Err())
	require.Contains(t, dump.String(), `"transcript":"hello"`)
}

func TestDialUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), Config{URL: wsURL(srv)})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestDialUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := wsURL(srv)
	srv.Close()

	_, err := Dial(context.Background(), Config{URL: addr})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnauthorized)
}
