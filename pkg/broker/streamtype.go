package broker

import "fmt"

// StreamType classifies a request or device as a specific capture source.
// Device types refer to physical capture hardware; tab types refer to
// browser-tab contents capture, which is gated behind the extension scheme.
type StreamType int

const (
	StreamTypeNone StreamType = iota
	StreamTypeDeviceAudioCapture
	StreamTypeDeviceVideoCapture
	StreamTypeTabAudioCapture
	StreamTypeTabVideoCapture

	numStreamTypes int = iota
)

func (t StreamType) String() string {
	switch t {
	case StreamTypeNone:
		return "none"
	case StreamTypeDeviceAudioCapture:
		return "audio"
	case StreamTypeDeviceVideoCapture:
		return "video"
	case StreamTypeTabAudioCapture:
		return "tab-audio"
	case StreamTypeTabVideoCapture:
		return "tab-video"
	}

	return fmt.Sprintf("stream-type(%d)", int(t))
}

// IsAudio returns true for any audio capture type
func (t StreamType) IsAudio() bool {
	return t == StreamTypeDeviceAudioCapture || t == StreamTypeTabAudioCapture
}

// IsVideo returns true for any video capture type
func (t StreamType) IsVideo() bool {
	return t == StreamTypeDeviceVideoCapture || t == StreamTypeTabVideoCapture
}

// StreamOptions describes which stream types a request is interested in.
// Either field may be StreamTypeNone
type StreamOptions struct {
	Audio StreamType
	Video StreamType
}

// Requested returns true if the given stream type is part of these options
func (o StreamOptions) Requested(t StreamType) bool {
	return t != StreamTypeNone && (o.Audio == t || o.Video == t)
}

// OriginContext identifies the caller a request was made on behalf of.
// It is only ever used for authorization checks, never for device logic
type OriginContext struct {
	ProcessID int
	ViewID    int

	// Origin is the caller's security origin, e.g. "https://example.com"
	// or "app-extension://abcdef"
	Origin string
}

// SessionID identifies one successfully opened device instance. It is
// assigned by the device provider on Open and is the only valid way to
// correlate provider callbacks with devices (arrival order carries no
// guarantees)
type SessionID string

// StreamDeviceInfo describes one capture device as seen by a request
type StreamDeviceInfo struct {
	Type     StreamType
	DeviceID string
	Name     string

	// SessionID is set once the provider has been asked to open the device
	SessionID SessionID

	// InUse is set once the provider confirms the session is live
	InUse bool
}

// sameDevice compares the provider-owned identity of two devices, ignoring
// the per-request session fields
func sameDevice(a, b StreamDeviceInfo) bool {
	return a.Type == b.Type && a.DeviceID == b.DeviceID && a.Name == b.Name
}

// devicesEqual is an order-sensitive element-wise snapshot comparison,
// used to decide whether a fresh enumeration actually changed anything
func devicesEqual(a, b []StreamDeviceInfo) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if !sameDevice(a[i], b[i]) {
			return false
		}
	}

	return true
}
