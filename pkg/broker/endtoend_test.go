package broker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// These tests run the broker against its real asynchronous collaborators:
// the fake provider answers enumerations and opens on its own goroutines,
// the auto-accept UI resolves prompts by policy

func newFakeStack(t *testing.T) (*Broker, *FakeProvider) {
	t.Helper()

	logger := zap.NewNop().Sugar()

	provider := NewFakeProvider(logger, map[StreamType][]StreamDeviceInfo{
		StreamTypeDeviceAudioCapture: {audioDevice("mic-1", "Microphone")},
		StreamTypeDeviceVideoCapture: {videoDevice("cam-1", "Webcam")},
	})

	b, err := New(logger, nil, provider, provider, NewAutoAcceptUI(logger, nil), nil, nil)
	require.NoError(t, err)

	b.Start()
	t.Cleanup(b.Stop)

	return b, provider
}

func TestGenerateStreamEndToEnd(t *testing.T) {
	b, provider := newFakeStack(t)
	requester := newRecordingRequester()

	options := StreamOptions{
		Audio: StreamTypeDeviceAudioCapture,
		Video: StreamTypeDeviceVideoCapture,
	}

	label, err := b.GenerateStream(requester, options, testOrigin())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(requester.generatedEvents()) == 1
	}, waitTimeout, waitInterval)

	generated := requester.generatedEvents()[0]
	assert.Equal(t, label, generated.label)
	require.Len(t, generated.audio, 1)
	require.Len(t, generated.video, 1)
	assert.Equal(t, "mic-1", generated.audio[0].DeviceID)
	assert.Equal(t, "cam-1", generated.video[0].DeviceID)

	assert.Equal(t, 2, provider.OpenSessionCount())

	b.StopGeneratedStream(label)

	assert.Equal(t, 0, provider.OpenSessionCount())
	assert.Empty(t, requester.failedLabels())
}

func TestOpenDeviceEndToEndWithScriptedFailure(t *testing.T) {
	b, provider := newFakeStack(t)
	provider.FailOpens("mic-1", errors.New("claimed by another process"))

	requester := newRecordingRequester()

	label, err := b.OpenDevice(requester, "mic-1", StreamTypeDeviceAudioCapture, testOrigin())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(requester.failedLabels()) == 1
	}, waitTimeout, waitInterval)

	assert.Equal(t, label, requester.failedLabels()[0])
	assert.Empty(t, requester.openedEvents())
}

func TestEnumerateDevicesEndToEndWithHotplug(t *testing.T) {
	b, provider := newFakeStack(t)
	requester := newRecordingRequester()

	_, err := b.EnumerateDevices(requester, StreamTypeDeviceAudioCapture, testOrigin())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(requester.inventoryEvents()) == 1
	}, waitTimeout, waitInterval)

	require.Len(t, requester.inventoryEvents()[0].devices, 1)

	// a device appears; the hotplug signal triggers re-enumeration
	provider.SetDevices(StreamTypeDeviceAudioCapture, []StreamDeviceInfo{
		audioDevice("mic-1", "Microphone"),
		audioDevice("mic-2", "Headset"),
	})
	b.DevicesChanged(StreamTypeDeviceAudioCapture)

	require.Eventually(t, func() bool {
		return len(requester.inventoryEvents()) == 2
	}, waitTimeout, waitInterval)

	assert.Len(t, requester.inventoryEvents()[1].devices, 2)
}
