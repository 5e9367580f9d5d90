package broker

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	waitTimeout  = 2 * time.Second
	waitInterval = 5 * time.Millisecond
)

// recordingProvider is a DeviceProvider that records every call and never
// responds on its own; tests drive the broker's sink methods directly
type recordingProvider struct {
	prefix string

	mu           sync.Mutex
	enumerations []StreamType
	opened       []StreamDeviceInfo
	sessions     []SessionID
	closed       []SessionID
	nextSession  int
}

func newRecordingProvider(prefix string) *recordingProvider {
	return &recordingProvider{prefix: prefix}
}

func (p *recordingProvider) Register(sink ProviderEventSink) {}
func (p *recordingProvider) Unregister()                     {}

func (p *recordingProvider) EnumerateDevices(t StreamType) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.enumerations = append(p.enumerations, t)
}

func (p *recordingProvider) Open(device StreamDeviceInfo) SessionID {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextSession++
	session := SessionID(fmt.Sprintf("%s-session-%d", p.prefix, p.nextSession))

	p.opened = append(p.opened, device)
	p.sessions = append(p.sessions, session)

	return session
}

func (p *recordingProvider) Close(session SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = append(p.closed, session)
}

func (p *recordingProvider) enumerationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.enumerations)
}

func (p *recordingProvider) openedDevices() []StreamDeviceInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]StreamDeviceInfo(nil), p.opened...)
}

func (p *recordingProvider) openSessions() []SessionID {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]SessionID(nil), p.sessions...)
}

func (p *recordingProvider) closedSessions() []SessionID {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]SessionID(nil), p.closed...)
}

// sessionFor returns the session Open handed out for the given device id
func (p *recordingProvider) sessionFor(t *testing.T, deviceID string) SessionID {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, device := range p.opened {
		if device.DeviceID == deviceID {
			return p.sessions[i]
		}
	}

	t.Fatalf("no open recorded for device %q", deviceID)
	return ""
}

// recordingRequester records terminal and enumeration callbacks
type recordingRequester struct {
	mu sync.Mutex

	generated []generatedEvent
	failed    []Label
	inventory []inventoryEvent
	opened    []openedEvent
}

type generatedEvent struct {
	label Label
	audio []StreamDeviceInfo
	video []StreamDeviceInfo
}

type inventoryEvent struct {
	label   Label
	devices []StreamDeviceInfo
}

type openedEvent struct {
	label  Label
	device StreamDeviceInfo
}

func newRecordingRequester() *recordingRequester {
	return &recordingRequester{}
}

func (r *recordingRequester) StreamGenerated(label Label, audioDevices, videoDevices []StreamDeviceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generated = append(r.generated, generatedEvent{label: label, audio: audioDevices, video: videoDevices})
}

func (r *recordingRequester) StreamGenerationFailed(label Label) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failed = append(r.failed, label)
}

func (r *recordingRequester) DevicesEnumerated(label Label, devices []StreamDeviceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inventory = append(r.inventory, inventoryEvent{label: label, devices: devices})
}

func (r *recordingRequester) DeviceOpened(label Label, device StreamDeviceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.opened = append(r.opened, openedEvent{label: label, device: device})
}

func (r *recordingRequester) generatedEvents() []generatedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]generatedEvent(nil), r.generated...)
}

func (r *recordingRequester) failedLabels() []Label {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Label(nil), r.failed...)
}

func (r *recordingRequester) inventoryEvents() []inventoryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]inventoryEvent(nil), r.inventory...)
}

func (r *recordingRequester) openedEvents() []openedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]openedEvent(nil), r.opened...)
}

// recordingUI records prompt traffic and never resolves anything; tests
// drive the broker's confirmation sink directly
type recordingUI struct {
	mu sync.Mutex

	confirmations []Label
	available     []availableEvent
	cancelled     []Label
}

type availableEvent struct {
	label   Label
	t       StreamType
	devices []StreamDeviceInfo
}

func newRecordingUI() *recordingUI {
	return &recordingUI{}
}

func (ui *recordingUI) Register(sink ConfirmationSink) {}

func (ui *recordingUI) RequestConfirmation(label Label, origin OriginContext, options StreamOptions) {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	ui.confirmations = append(ui.confirmations, label)
}

func (ui *recordingUI) AddAvailableDevices(label Label, t StreamType, devices []StreamDeviceInfo) {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	ui.available = append(ui.available, availableEvent{label: label, t: t, devices: devices})
}

func (ui *recordingUI) Cancel(label Label) {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	ui.cancelled = append(ui.cancelled, label)
}

func (ui *recordingUI) confirmationLabels() []Label {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	return append([]Label(nil), ui.confirmations...)
}

func (ui *recordingUI) availableEvents() []availableEvent {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	return append([]availableEvent(nil), ui.available...)
}

func (ui *recordingUI) cancelledLabels() []Label {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	return append([]Label(nil), ui.cancelled...)
}

// recordingMonitor records start/stop transitions
type recordingMonitor struct {
	mu         sync.Mutex
	startCount int
	stopCount  int
	sink       DeviceChangeSink
}

func (m *recordingMonitor) Start(sink DeviceChangeSink) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.startCount++
	m.sink = sink
}

func (m *recordingMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopCount++
	m.sink = nil
}

func (m *recordingMonitor) counts() (started, stopped int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.startCount, m.stopCount
}

// noopNotifier swallows notifications in tests
type noopNotifier struct{}

func (noopNotifier) Notify(title string, message string) {}

// brokerHarness wires a broker to recording collaborators
type brokerHarness struct {
	broker  *Broker
	audio   *recordingProvider
	video   *recordingProvider
	ui      *recordingUI
	monitor *recordingMonitor
}

func newBrokerHarness(t *testing.T) *brokerHarness {
	t.Helper()

	h := &brokerHarness{
		audio:   newRecordingProvider("audio"),
		video:   newRecordingProvider("video"),
		ui:      newRecordingUI(),
		monitor: &recordingMonitor{},
	}

	b, err := New(zap.NewNop().Sugar(), nil, h.audio, h.video, h.ui, h.monitor, nil)
	require.NoError(t, err)

	h.broker = b

	b.Start()
	t.Cleanup(b.Stop)

	return h
}

// drain waits until the run loop has processed everything posted so far
func (h *brokerHarness) drain(t *testing.T) {
	t.Helper()

	require.True(t, h.broker.do(func() {}))
}

// liveRequests reads the registry size on the run loop
func (h *brokerHarness) liveRequests(t *testing.T) int {
	t.Helper()

	var n int
	require.True(t, h.broker.do(func() { n = h.broker.registry.count() }))

	return n
}

func audioDevice(id, name string) StreamDeviceInfo {
	return StreamDeviceInfo{Type: StreamTypeDeviceAudioCapture, DeviceID: id, Name: name}
}

func videoDevice(id, name string) StreamDeviceInfo {
	return StreamDeviceInfo{Type: StreamTypeDeviceVideoCapture, DeviceID: id, Name: name}
}

func testOrigin() OriginContext {
	return OriginContext{ProcessID: 7, ViewID: 12, Origin: "https://app.example"}
}
