package broker

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FakeProvider is a scriptable DeviceProvider with an in-memory device
// inventory. It backs media types that have no platform provider (video on
// every platform, audio where neither PulseAudio nor WASAPI is available)
// and doubles as the test double for the arbitration core
type FakeProvider struct {
	logger *zap.SugaredLogger

	mu       sync.Mutex
	sink     ProviderEventSink
	devices  map[StreamType][]StreamDeviceInfo
	sessions map[SessionID]StreamDeviceInfo
	openErrs map[string]error
}

// NewFakeProvider creates a fake provider with the given initial
// inventory; the map may be nil
func NewFakeProvider(logger *zap.SugaredLogger, devices map[StreamType][]StreamDeviceInfo) *FakeProvider {
	p := &FakeProvider{
		logger:   logger.Named("fake_provider"),
		devices:  make(map[StreamType][]StreamDeviceInfo),
		sessions: make(map[SessionID]StreamDeviceInfo),
		openErrs: make(map[string]error),
	}

	for t, list := range devices {
		p.devices[t] = append([]StreamDeviceInfo(nil), list...)
	}

	p.logger.Debug("Created fake device provider instance")

	return p
}

// SetDevices replaces the inventory of one stream type, simulating hotplug
func (p *FakeProvider) SetDevices(t StreamType, devices []StreamDeviceInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.devices[t] = append([]StreamDeviceInfo(nil), devices...)
}

// FailOpens makes future opens of the given device id fail with err
func (p *FakeProvider) FailOpens(deviceID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.openErrs[deviceID] = err
}

// Register implements DeviceProvider
func (p *FakeProvider) Register(sink ProviderEventSink) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

// Unregister implements DeviceProvider
func (p *FakeProvider) Unregister() {
	p.mu.Lock()
	p.sink = nil
	p.mu.Unlock()
}

// EnumerateDevices implements DeviceProvider; the result is delivered
// asynchronously, strictly after this call returns
func (p *FakeProvider) EnumerateDevices(t StreamType) {
	p.mu.Lock()
	sink := p.sink
	devices := append([]StreamDeviceInfo(nil), p.devices[t]...)
	p.mu.Unlock()

	if sink == nil {
		return
	}

	go sink.DevicesEnumerated(t, devices)
}

// Open implements DeviceProvider, assigning a fresh session ID. The
// session comes live (or fails, if scripted to) asynchronously
func (p *FakeProvider) Open(device StreamDeviceInfo) SessionID {
	session := SessionID(uuid.NewString())

	p.mu.Lock()
	sink := p.sink
	openErr := p.openErrs[device.DeviceID]
	p.sessions[session] = device
	p.mu.Unlock()

	p.logger.Debugw("Opening fake device",
		"deviceID", device.DeviceID, "streamType", device.Type, "sessionID", session)

	if sink == nil {
		return session
	}

	if openErr != nil {
		go sink.Error(device.Type, session, fmt.Errorf("open fake device %s: %w", device.DeviceID, openErr))
	} else {
		go sink.Opened(device.Type, session)
	}

	return session
}

// Close implements DeviceProvider
func (p *FakeProvider) Close(session SessionID) {
	p.mu.Lock()
	sink := p.sink
	device, ok := p.sessions[session]
	delete(p.sessions, session)
	p.mu.Unlock()

	if !ok {
		p.logger.Warnw("Close for unknown fake session", "sessionID", session)
		return
	}

	p.logger.Debugw("Closed fake device",
		"deviceID", device.DeviceID, "sessionID", session)

	if sink != nil {
		go sink.Closed(device.Type, session)
	}
}

// OpenSessionCount returns the number of sessions currently open, for
// leak checks
func (p *FakeProvider) OpenSessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.sessions)
}
