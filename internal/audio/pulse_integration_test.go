//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListDevicesIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	devices, err := ListDevices(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)
}

func TestCaptureIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	selection, err := SelectDevice(ctx, "default", "default")
	require.NoError(t, err)

	capture, err := StartCapture(ctx, selection.Device, CaptureOptions{})
	require.NoError(t, err)

	select {
	case chunk := <-capture.Chunks():
		require.NotEmpty(t, chunk)
	case <-time.After(2 * time.Second):
		t.Fatal("no audio chunk received")
	}
	require.NoError(t, capture.Stop())
}
