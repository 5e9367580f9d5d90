//go:build windows
// +build windows

package broker

import (
	"fmt"
	"runtime"
	"sync"

	ole "github.com/go-ole/go-ole"
	"github.com/google/uuid"
	wca "github.com/moutend/go-wca"
	"go.uber.org/zap"
)

// wcaProvider is the Windows audio DeviceProvider, enumerating active
// WASAPI capture endpoints. Like the PulseAudio provider it brokers
// inventory and session bookkeeping only
type wcaProvider struct {
	logger *zap.SugaredLogger

	mu       sync.Mutex
	sink     ProviderEventSink
	sessions map[SessionID]StreamDeviceInfo
}

// NewWCAProvider creates an audio device provider on top of the Windows
// Core Audio APIs
func NewWCAProvider(logger *zap.SugaredLogger) (DeviceProvider, error) {
	p := &wcaProvider{
		logger:   logger.Named("wca_provider"),
		sessions: make(map[SessionID]StreamDeviceInfo),
	}

	p.logger.Debug("Created WCA device provider instance")

	return p, nil
}

func (p *wcaProvider) Register(sink ProviderEventSink) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

func (p *wcaProvider) Unregister() {
	p.mu.Lock()
	p.sink = nil
	p.mu.Unlock()
}

func (p *wcaProvider) EnumerateDevices(t StreamType) {
	go func() {
		devices, err := p.captureEndpoints(t)
		if err != nil {
			p.logger.Warnw("Failed to enumerate capture endpoints", "error", err)
		}

		p.mu.Lock()
		sink := p.sink
		p.mu.Unlock()

		if sink != nil {
			sink.DevicesEnumerated(t, devices)
		}
	}()
}

// captureEndpoints lists active WASAPI capture endpoints. COM is
// initialized per call since we run on an arbitrary goroutine
func (p *wcaProvider) captureEndpoints(t StreamType) ([]StreamDeviceInfo, error) {
	devices := []StreamDeviceInfo{}

	if !t.IsAudio() {
		p.logger.Warnw("WCA provider asked for non-audio devices", "streamType", t)
		return devices, nil
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		return devices, fmt.Errorf("call CoInitializeEx: %w", err)
	}
	defer ole.CoUninitialize()

	var deviceEnumerator *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(
		wca.CLSID_MMDeviceEnumerator,
		0,
		wca.CLSCTX_ALL,
		wca.IID_IMMDeviceEnumerator,
		&deviceEnumerator,
	); err != nil {
		return devices, fmt.Errorf("create device enumerator: %w", err)
	}
	defer deviceEnumerator.Release()

	var deviceCollection *wca.IMMDeviceCollection
	if err := deviceEnumerator.EnumAudioEndpoints(
		wca.ECapture,
		wca.DEVICE_STATE_ACTIVE,
		&deviceCollection,
	); err != nil {
		return devices, fmt.Errorf("enumerate audio endpoints: %w", err)
	}
	defer deviceCollection.Release()

	var count uint32
	if err := deviceCollection.GetCount(&count); err != nil {
		return devices, fmt.Errorf("get endpoint count: %w", err)
	}

	for i := uint32(0); i < count; i++ {
		var endpoint *wca.IMMDevice
		if err := deviceCollection.Item(i, &endpoint); err != nil {
			p.logger.Warnw("Failed to get audio endpoint", "index", i, "error", err)
			continue
		}

		device, err := p.describeEndpoint(t, endpoint)
		endpoint.Release()

		if err != nil {
			p.logger.Warnw("Failed to describe audio endpoint", "index", i, "error", err)
			continue
		}

		devices = append(devices, device)
	}

	return devices, nil
}

func (p *wcaProvider) describeEndpoint(t StreamType, endpoint *wca.IMMDevice) (StreamDeviceInfo, error) {
	var deviceID string
	if err := endpoint.GetId(&deviceID); err != nil {
		return StreamDeviceInfo{}, fmt.Errorf("get endpoint id: %w", err)
	}

	var propertyStore *wca.IPropertyStore
	if err := endpoint.OpenPropertyStore(wca.STGM_READ, &propertyStore); err != nil {
		return StreamDeviceInfo{}, fmt.Errorf("open property store: %w", err)
	}
	defer propertyStore.Release()

	var value wca.PROPVARIANT
	if err := propertyStore.GetValue(&wca.PKEY_Device_FriendlyName, &value); err != nil {
		return StreamDeviceInfo{}, fmt.Errorf("get friendly name: %w", err)
	}

	return StreamDeviceInfo{
		Type:     t,
		DeviceID: deviceID,
		Name:     value.String(),
	}, nil
}

func (p *wcaProvider) Open(device StreamDeviceInfo) SessionID {
	session := SessionID(uuid.NewString())

	p.mu.Lock()
	sink := p.sink
	p.sessions[session] = device
	p.mu.Unlock()

	p.logger.Debugw("Opening capture endpoint",
		"deviceID", device.DeviceID, "sessionID", session)

	if sink != nil {
		go sink.Opened(device.Type, session)
	}

	return session
}

func (p *wcaProvider) Close(session SessionID) {
	p.mu.Lock()
	sink := p.sink
	device, ok := p.sessions[session]
	delete(p.sessions, session)
	p.mu.Unlock()

	if !ok {
		p.logger.Warnw("Close for unknown session", "sessionID", session)
		return
	}

	p.logger.Debugw("Closed capture endpoint",
		"deviceID", device.DeviceID, "sessionID", session)

	if sink != nil {
		go sink.Closed(device.Type, session)
	}
}

// NewPlatformAudioProvider returns the native audio provider for this
// platform
func NewPlatformAudioProvider(logger *zap.SugaredLogger) (DeviceProvider, error) {
	return NewWCAProvider(logger)
}
