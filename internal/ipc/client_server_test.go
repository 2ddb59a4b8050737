package ipc

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"

	"github.com/rbright/colloquy/internal/transcript"
)

func serveOn(t *testing.T, socketPath string, handler Handler) (context.CancelFunc, <-chan error) {
	t.Helper()
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, handler)
	}()
	return cancel, serveDone
}

func TestSendRoundTripCarriesTextAndTranscript(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")

	gotCh := make(chan Request, 1)
	cancel, serveDone := serveOn(t, socketPath, HandlerFunc(func(_ context.Context, req Request) Response {
		gotCh <- req
		return Response{
			OK:    true,
			State: "ready",
			Transcript: []transcript.Message{
				{Role: transcript.RoleUser, Content: "Who is Moriarty?", Timestamp: "09:15 PM"},
			},
		}
	}))
	defer cancel()

	resp, err := Send(context.Background(), socketPath, Request{Command: CommandAsk, Text: "Who is Moriarty?", Confirmed: true}, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "ready", resp.State)
	require.Len(t, resp.Transcript, 1)
	require.Equal(t, transcript.RoleUser, resp.Transcript[0].Role)

	got := <-gotCh
	require.Equal(t, CommandAsk, got.Command)
	require.Equal(t, "Who is Moriarty?", got.Text)
	require.True(t, got.Confirmed)

	cancel()
	require.NoError(t, <-serveDone)
}

func TestSendDecodeResponseError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()

		_, _ = bufio.NewReader(conn).ReadBytes('\n')
		_, _ = conn.Write([]byte("not-json\n"))
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.ErrorContains(t, err, "decode response")
}

func TestSendReadResponseError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		_ = conn.Close()
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.ErrorContains(t, err, "read response")
}

func TestSendHonorsContextCancel(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")

	release := make(chan struct{})
	cancelServe, serveDone := serveOn(t, socketPath, HandlerFunc(func(context.Context, Request) Response {
		<-release
		return Response{OK: true}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	started := time.Now()
	_, err := Send(ctx, socketPath, Request{Command: CommandAsk, Text: "slow"}, 5*time.Second)
	require.Error(t, err)
	require.Less(t, time.Since(started), 2*time.Second)

	close(release)
	cancelServe()
	require.NoError(t, <-serveDone)
}

func TestServeDecodeRequestErrorResponse(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")

	cancel, serveDone := serveOn(t, socketPath, HandlerFunc(func(context.Context, Request) Response {
		return Response{OK: true}
	}))
	defer cancel()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not-json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, sonic.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "decode request")

	cancel()
	require.NoError(t, <-serveDone)
}

func TestServeDropsSilentClientAfterReadTimeout(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")

	cancel, serveDone := serveOn(t, socketPath, HandlerFunc(func(context.Context, Request) Response {
		return Response{OK: true}
	}))
	defer cancel()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(requestReadTimeout+3*time.Second)))

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, sonic.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "read request")

	cancel()
	require.NoError(t, <-serveDone)
}

func TestProbe(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")

	cancel, serveDone := serveOn(t, socketPath, HandlerFunc(func(_ context.Context, req Request) Response {
		if req.Command == CommandStatus {
			return Response{OK: true, State: "ready"}
		}
		return Response{OK: false, Error: "bad"}
	}))
	defer cancel()

	alive, probeErr := Probe(context.Background(), socketPath, 200*time.Millisecond)
	require.NoError(t, probeErr)
	require.True(t, alive)

	cancel()
	require.NoError(t, <-serveDone)

	alive, probeErr = Probe(context.Background(), socketPath, 100*time.Millisecond)
	require.NoError(t, probeErr)
	require.False(t, alive)
}
