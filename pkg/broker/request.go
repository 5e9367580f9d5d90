package broker

import (
	"fmt"

	"go.uber.org/zap"
)

// RequestState is the lifecycle state of one stream type within a request.
// Legal transitions only ever move forward:
// NotRequested -> Requested -> PendingApproval -> Opening -> Done,
// with Closing reachable from Opening/Done during teardown and Error
// reachable from anywhere
type RequestState int

const (
	StateNotRequested RequestState = iota
	StateRequested
	StatePendingApproval
	StateOpening
	StateDone
	StateClosing
	StateError
)

func (s RequestState) String() string {
	switch s {
	case StateNotRequested:
		return "not-requested"
	case StateRequested:
		return "requested"
	case StatePendingApproval:
		return "pending-approval"
	case StateOpening:
		return "opening"
	case StateDone:
		return "done"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	}

	return fmt.Sprintf("request-state(%d)", int(s))
}

// RequestKind discriminates the mutually exclusive flavors of a request
type RequestKind int

const (
	KindDeviceAccess RequestKind = iota
	KindGenerateStream
	KindEnumerateDevices
	KindOpenDevice
)

func (k RequestKind) String() string {
	switch k {
	case KindDeviceAccess:
		return "device-access"
	case KindGenerateStream:
		return "generate-stream"
	case KindEnumerateDevices:
		return "enumerate-devices"
	case KindOpenDevice:
		return "open-device"
	}

	return fmt.Sprintf("request-kind(%d)", int(k))
}

// Requester receives the terminal notification for a request. Exactly one
// of these methods is invoked exactly once per request, except for
// caller-initiated Cancel/Stop which are intentionally silent
type Requester interface {
	// StreamGenerated delivers the opened devices of a GenerateStream request
	StreamGenerated(label Label, audioDevices, videoDevices []StreamDeviceInfo)

	// StreamGenerationFailed reports whole-request failure
	StreamGenerationFailed(label Label)

	// DevicesEnumerated delivers the device inventory of an
	// EnumerateDevices request; it may be re-delivered when the inventory
	// changes while the request is live
	DevicesEnumerated(label Label, devices []StreamDeviceInfo)

	// DeviceOpened delivers the single opened device of an OpenDevice request
	DeviceOpened(label Label, device StreamDeviceInfo)
}

// AccessResponseFunc is the terminal callback of a RequestAccess request.
// The selected device list may be empty if the user denied access
type AccessResponseFunc func(label Label, devices []StreamDeviceInfo)

// deviceRequest tracks one caller operation through its lifecycle.
// It is only ever touched from the broker's run loop
type deviceRequest struct {
	kind    RequestKind
	options StreamOptions
	origin  OriginContext

	// set only for OpenDevice and device-pinned GenerateStream
	requestedDeviceID string

	// devices accumulated as they are accepted/opened, both types interleaved
	devices []StreamDeviceInfo

	// one lifecycle state per stream type
	state [numStreamTypes]RequestState

	// requester may be nil (DeviceAccess uses accessCallback instead)
	requester      Requester
	accessCallback AccessResponseFunc

	// notified is set once the terminal callback has fired, so a request
	// can never notify its caller twice
	notified bool
}

func newDeviceRequest(kind RequestKind, options StreamOptions, origin OriginContext, requester Requester) *deviceRequest {
	return &deviceRequest{
		kind:      kind,
		options:   options,
		origin:    origin,
		requester: requester,
	}
}

func (r *deviceRequest) getState(t StreamType) RequestState {
	return r.state[t]
}

func (r *deviceRequest) setState(logger *zap.SugaredLogger, t StreamType, s RequestState) {
	if logger != nil {
		logger.Debugw("Request state transition",
			"kind", r.kind,
			"streamType", t,
			"from", r.state[t],
			"to", s)
	}

	r.state[t] = s
}

// devicesOfType returns the request's devices of one stream type
func (r *deviceRequest) devicesOfType(t StreamType) []StreamDeviceInfo {
	var out []StreamDeviceInfo
	for _, device := range r.devices {
		if device.Type == t {
			out = append(out, device)
		}
	}

	return out
}

// done derives overall completion: every requested stream type has reached
// a terminal state and every accumulated device is confirmed live. It is
// never stored, only computed
func (r *deviceRequest) done() bool {
	if r.options.Audio != StreamTypeNone {
		if s := r.getState(r.options.Audio); s != StateDone && s != StateError {
			return false
		}
	}

	if r.options.Video != StreamTypeNone {
		if s := r.getState(r.options.Video); s != StateDone && s != StateError {
			return false
		}
	}

	for _, device := range r.devices {
		if !device.InUse {
			return false
		}
	}

	return true
}
