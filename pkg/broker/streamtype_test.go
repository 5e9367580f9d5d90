package broker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestStreamTypeClassification(t *testing.T) {
	assert.True(t, StreamTypeDeviceAudioCapture.IsAudio())
	assert.True(t, StreamTypeTabAudioCapture.IsAudio())
	assert.False(t, StreamTypeDeviceVideoCapture.IsAudio())

	assert.True(t, StreamTypeDeviceVideoCapture.IsVideo())
	assert.True(t, StreamTypeTabVideoCapture.IsVideo())
	assert.False(t, StreamTypeDeviceAudioCapture.IsVideo())

	assert.False(t, StreamTypeNone.IsAudio())
	assert.False(t, StreamTypeNone.IsVideo())
}

func TestStreamOptionsRequested(t *testing.T) {
	options := StreamOptions{
		Audio: StreamTypeDeviceAudioCapture,
		Video: StreamTypeTabVideoCapture,
	}

	assert.True(t, options.Requested(StreamTypeDeviceAudioCapture))
	assert.True(t, options.Requested(StreamTypeTabVideoCapture))
	assert.False(t, options.Requested(StreamTypeDeviceVideoCapture))
	assert.False(t, options.Requested(StreamTypeNone))
}

func TestDevicesEqualIsOrderSensitive(t *testing.T) {
	mic1 := audioDevice("mic-1", "Microphone 1")
	mic2 := audioDevice("mic-2", "Microphone 2")

	assert.True(t, devicesEqual(nil, nil))
	assert.True(t, devicesEqual([]StreamDeviceInfo{mic1, mic2}, []StreamDeviceInfo{mic1, mic2}))
	assert.False(t, devicesEqual([]StreamDeviceInfo{mic1, mic2}, []StreamDeviceInfo{mic2, mic1}))
	assert.False(t, devicesEqual([]StreamDeviceInfo{mic1}, []StreamDeviceInfo{mic1, mic2}))
}

func TestSameDeviceIgnoresSessionFields(t *testing.T) {
	a := audioDevice("mic-1", "Microphone")

	b := a
	b.SessionID = "session-9"
	b.InUse = true

	assert.True(t, sameDevice(a, b))

	c := a
	c.Name = "Renamed Microphone"
	assert.False(t, sameDevice(a, c))
}

func TestPartitionDevices(t *testing.T) {
	mic := audioDevice("mic-1", "Microphone")
	cam := videoDevice("cam-1", "Webcam")
	tab := StreamDeviceInfo{Type: StreamTypeTabAudioCapture, DeviceID: "tab-1", Name: "Tab"}

	audio, video := partitionDevices([]StreamDeviceInfo{cam, mic, tab})

	if diff := cmp.Diff([]StreamDeviceInfo{mic, tab}, audio); diff != "" {
		t.Errorf("audio partition mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]StreamDeviceInfo{cam}, video); diff != "" {
		t.Errorf("video partition mismatch (-want +got):\n%s", diff)
	}
}
