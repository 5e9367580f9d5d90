//go:build linux
// +build linux

package broker

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

// pulseProvider is the Linux audio DeviceProvider, backed by the native
// PulseAudio protocol. It brokers the capture source inventory and session
// bookkeeping only; actual capture I/O belongs to the pipeline layered on
// top of an opened session
type pulseProvider struct {
	logger *zap.SugaredLogger

	client *proto.Client
	conn   net.Conn

	mu       sync.Mutex
	sink     ProviderEventSink
	sessions map[SessionID]StreamDeviceInfo
}

// NewPulseProvider connects to the local PulseAudio daemon and returns an
// audio device provider on top of it
func NewPulseProvider(logger *zap.SugaredLogger) (DeviceProvider, error) {
	client, conn, err := proto.Connect("")
	if err != nil {
		logger.Warnw("Failed to establish PulseAudio connection", "error", err)
		return nil, fmt.Errorf("establish PulseAudio connection: %w", err)
	}

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString("mediabroker"),
		},
	}
	reply := proto.SetClientNameReply{}

	if err := client.Request(&request, &reply); err != nil {
		return nil, fmt.Errorf("set PulseAudio client name: %w", err)
	}

	p := &pulseProvider{
		logger:   logger.Named("pulse_provider"),
		client:   client,
		conn:     conn,
		sessions: make(map[SessionID]StreamDeviceInfo),
	}

	p.logger.Debug("Created PA device provider instance")

	return p, nil
}

func (p *pulseProvider) Register(sink ProviderEventSink) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

func (p *pulseProvider) Unregister() {
	p.mu.Lock()
	p.sink = nil
	p.mu.Unlock()

	if err := p.conn.Close(); err != nil {
		p.logger.Warnw("Failed to close PulseAudio connection", "error", err)
	}
}

func (p *pulseProvider) EnumerateDevices(t StreamType) {
	go func() {
		devices := p.captureSources(t)

		p.mu.Lock()
		sink := p.sink
		p.mu.Unlock()

		if sink != nil {
			sink.DevicesEnumerated(t, devices)
		}
	}()
}

// captureSources lists PulseAudio capture sources, skipping sink monitors
// (those are loopbacks of output devices, not capture hardware)
func (p *pulseProvider) captureSources(t StreamType) []StreamDeviceInfo {
	devices := []StreamDeviceInfo{}

	if !t.IsAudio() {
		p.logger.Warnw("PulseAudio provider asked for non-audio devices", "streamType", t)
		return devices
	}

	request := proto.GetSourceInfoList{}
	reply := proto.GetSourceInfoListReply{}
	if err := p.client.Request(&request, &reply); err != nil {
		p.logger.Warnw("Failed to get source info list", "error", err)
		return devices
	}

	for _, source := range reply {
		if source == nil {
			continue
		}

		if source.MonitorSourceIndex != proto.Undefined {
			continue
		}

		name := source.SourceName
		if name == "" {
			name = fmt.Sprintf("Source %d", source.SourceIndex)
		}

		friendly := name
		if source.Properties != nil {
			if descProp, ok := source.Properties["device.description"]; ok {
				if desc := descProp.String(); desc != "" {
					friendly = desc
				}
			}
		}

		devices = append(devices, StreamDeviceInfo{
			Type:     t,
			DeviceID: name,
			Name:     friendly,
		})
	}

	return devices
}

func (p *pulseProvider) Open(device StreamDeviceInfo) SessionID {
	session := SessionID(uuid.NewString())

	p.mu.Lock()
	sink := p.sink
	p.sessions[session] = device
	p.mu.Unlock()

	p.logger.Debugw("Opening capture source",
		"deviceID", device.DeviceID, "sessionID", session)

	if sink != nil {
		// the source exists per the last enumeration; claiming it needs no
		// further PA round trip until a capture stream is attached
		go sink.Opened(device.Type, session)
	}

	return session
}

func (p *pulseProvider) Close(session SessionID) {
	p.mu.Lock()
	sink := p.sink
	device, ok := p.sessions[session]
	delete(p.sessions, session)
	p.mu.Unlock()

	if !ok {
		p.logger.Warnw("Close for unknown session", "sessionID", session)
		return
	}

	p.logger.Debugw("Closed capture source",
		"deviceID", device.DeviceID, "sessionID", session)

	if sink != nil {
		go sink.Closed(device.Type, session)
	}
}

// NewPlatformAudioProvider returns the native audio provider for this
// platform
func NewPlatformAudioProvider(logger *zap.SugaredLogger) (DeviceProvider, error) {
	return NewPulseProvider(logger)
}
