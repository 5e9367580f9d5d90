package broker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLabelShape(t *testing.T) {
	seen := make(map[Label]bool)

	for i := 0; i < 100; i++ {
		label, err := newLabel()
		require.NoError(t, err)

		assert.Len(t, string(label), labelLength)
		assert.False(t, seen[label], "duplicate label %q", label)
		seen[label] = true

		for _, c := range string(label) {
			assert.True(t, strings.ContainsRune(labelAlphabet, c),
				"label %q contains %q outside the alphabet", label, c)
		}
	}
}

func TestRegistryAddGetRemove(t *testing.T) {
	registry := newRequestRegistry(zap.NewNop().Sugar())

	request := newDeviceRequest(KindGenerateStream, StreamOptions{Audio: StreamTypeDeviceAudioCapture}, OriginContext{}, nil)

	label, err := registry.add(request)
	require.NoError(t, err)
	assert.Equal(t, 1, registry.count())

	got, ok := registry.get(label)
	require.True(t, ok)
	assert.Same(t, request, got)

	registry.remove(label)
	assert.Equal(t, 0, registry.count())

	_, ok = registry.get(label)
	assert.False(t, ok)

	// removing twice is harmless
	registry.remove(label)
}

func TestRegistryHasEnumerationRequest(t *testing.T) {
	registry := newRequestRegistry(zap.NewNop().Sugar())

	stream := newDeviceRequest(KindGenerateStream, StreamOptions{Audio: StreamTypeDeviceAudioCapture}, OriginContext{}, nil)
	_, err := registry.add(stream)
	require.NoError(t, err)

	// only EnumerateDevices requests count
	assert.False(t, registry.hasEnumerationRequest(StreamTypeNone))
	assert.False(t, registry.hasEnumerationRequest(StreamTypeDeviceAudioCapture))

	enum := newDeviceRequest(KindEnumerateDevices, StreamOptions{Audio: StreamTypeDeviceAudioCapture}, OriginContext{}, nil)
	label, err := registry.add(enum)
	require.NoError(t, err)

	assert.True(t, registry.hasEnumerationRequest(StreamTypeNone))
	assert.True(t, registry.hasEnumerationRequest(StreamTypeDeviceAudioCapture))
	assert.False(t, registry.hasEnumerationRequest(StreamTypeDeviceVideoCapture))

	registry.remove(label)
	assert.False(t, registry.hasEnumerationRequest(StreamTypeNone))
}

func TestRequestDoneDerivation(t *testing.T) {
	options := StreamOptions{
		Audio: StreamTypeDeviceAudioCapture,
		Video: StreamTypeDeviceVideoCapture,
	}
	request := newDeviceRequest(KindGenerateStream, options, OriginContext{}, nil)

	assert.False(t, request.done())

	request.setState(nil, StreamTypeDeviceAudioCapture, StateDone)
	assert.False(t, request.done(), "video still pending")

	// a failed type is terminal too
	request.setState(nil, StreamTypeDeviceVideoCapture, StateError)
	assert.True(t, request.done())

	// a device not yet confirmed live holds completion back
	request.devices = append(request.devices, StreamDeviceInfo{
		Type:      StreamTypeDeviceAudioCapture,
		DeviceID:  "mic-1",
		SessionID: "session-1",
	})
	assert.False(t, request.done())

	request.devices[0].InUse = true
	assert.True(t, request.done())
}
