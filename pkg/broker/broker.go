// Package broker implements an arbitration engine that brokers access to
// audio/video capture devices on behalf of many concurrent, mutually
// distrusting callers. It multiplexes in-flight requests against the shared
// device inventory, tracks per-request per-stream-type lifecycle state
// through the asynchronous enumerate/open/close protocol, and guarantees
// each caller exactly one terminal notification.
package broker

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/thoas/go-funk"
	"go.uber.org/zap"
)

var (
	// ErrInvalidRequest is returned for malformed request options
	ErrInvalidRequest = errors.New("invalid stream request options")

	// ErrInvalidOrigin is returned when tab capture is requested from an
	// origin outside the extension scheme
	ErrInvalidOrigin = errors.New("tab capture requested outside extension origin")

	// ErrBrokerStopped is returned when an operation is issued against a
	// stopped broker
	ErrBrokerStopped = errors.New("broker is stopped")
)

const (
	// tab-capture media types are reserved for extension-scheme origins
	extensionScheme = "extension"

	// run loop task backlog; posting never blocks collaborator callbacks
	// for long in practice, the loop drains fast
	taskBacklog = 64
)

var allowedTabCaptureSchemes = []string{extensionScheme}

// Broker is the arbitration facade. All public operations are safe for
// concurrent use; internally every mutation of the registry, the
// enumeration caches and request lifecycle state happens on one run-loop
// goroutine, so none of those structures carry locks
type Broker struct {
	logger *zap.SugaredLogger
	config *CanonicalConfig

	audioProvider DeviceProvider
	videoProvider DeviceProvider
	ui            ConfirmationUI
	monitor       DeviceMonitor
	notifier      Notifier

	// run-loop confined state
	registry   *requestRegistry
	caches     [numStreamTypes]enumerationCache
	monitoring bool

	tasks       chan func()
	stopChannel chan struct{}
	loopDone    chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
}

// New creates a Broker instance. config, monitor and notifier may be nil;
// providers and ui must not be. The same provider may serve both media
// types
func New(
	logger *zap.SugaredLogger,
	config *CanonicalConfig,
	audioProvider DeviceProvider,
	videoProvider DeviceProvider,
	ui ConfirmationUI,
	monitor DeviceMonitor,
	notifier Notifier,
) (*Broker, error) {
	logger = logger.Named("broker")

	if audioProvider == nil || videoProvider == nil {
		return nil, fmt.Errorf("create broker: both device providers are required")
	}

	if ui == nil {
		return nil, fmt.Errorf("create broker: confirmation UI is required")
	}

	b := &Broker{
		logger:        logger,
		config:        config,
		audioProvider: audioProvider,
		videoProvider: videoProvider,
		ui:            ui,
		monitor:       monitor,
		notifier:      notifier,
		registry:      newRequestRegistry(logger),
		tasks:         make(chan func(), taskBacklog),
		stopChannel:   make(chan struct{}),
		loopDone:      make(chan struct{}),
	}

	logger.Debug("Created broker instance")

	return b, nil
}

// Start registers the broker with its collaborators and starts the run
// loop. It must be called before any public operation
func (b *Broker) Start() {
	b.startOnce.Do(func() {
		b.audioProvider.Register(b)
		if b.videoProvider != b.audioProvider {
			b.videoProvider.Register(b)
		}
		b.ui.Register(b)

		go b.run()

		b.logger.Info("Broker started")
	})
}

// Stop halts the run loop and detaches from collaborators. Callbacks
// arriving afterwards are dropped. Live requests are discarded without
// notification; callers are expected to cancel their requests first
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChannel)
		<-b.loopDone

		if b.monitoring {
			b.monitor.Stop()
			b.monitoring = false
		}

		b.audioProvider.Unregister()
		if b.videoProvider != b.audioProvider {
			b.videoProvider.Unregister()
		}

		if leftover := b.registry.count(); leftover > 0 {
			b.logger.Warnw("Stopped with live requests still registered", "count", leftover)
		}

		b.logger.Info("Broker stopped")
	})
}

func (b *Broker) run() {
	defer close(b.loopDone)

	for {
		select {
		case task := <-b.tasks:
			task()
		case <-b.stopChannel:
			return
		}
	}
}

// post marshals a task onto the run loop. Safe from any goroutine; tasks
// posted after Stop are dropped
func (b *Broker) post(task func()) {
	select {
	case b.tasks <- task:
	case <-b.stopChannel:
	}
}

// do posts a task and waits for it to run, so operations can hand results
// back to the caller. Never call from the run loop itself
func (b *Broker) do(task func()) bool {
	done := make(chan struct{})

	b.post(func() {
		task()
		close(done)
	})

	select {
	case <-done:
		return true
	case <-b.stopChannel:
		return false
	}
}

// RequestAccess performs a one-shot device access check. The response
// callback receives the accepted device list (possibly empty) exactly
// once; no stream stays open beyond device selection
func (b *Broker) RequestAccess(options StreamOptions, origin OriginContext, response AccessResponseFunc) (Label, error) {
	if options.Audio == StreamTypeNone && options.Video == StreamTypeNone {
		return "", ErrInvalidRequest
	}

	var label Label
	var err error

	ok := b.do(func() {
		request := newDeviceRequest(KindDeviceAccess, options, origin, nil)
		request.accessCallback = response

		label, err = b.startEnumeration(request)
		if err != nil {
			return
		}

		b.postRequestToUI(label)
	})
	if !ok {
		return "", ErrBrokerStopped
	}

	return label, err
}

// GenerateStream runs the full lifecycle for every requested stream type.
// The requester receives StreamGenerated or StreamGenerationFailed exactly
// once
func (b *Broker) GenerateStream(requester Requester, options StreamOptions, origin OriginContext) (Label, error) {
	if requester == nil || (options.Audio == StreamTypeNone && options.Video == StreamTypeNone) {
		return "", ErrInvalidRequest
	}

	var label Label
	var err error

	ok := b.do(func() {
		request := newDeviceRequest(KindGenerateStream, options, origin, requester)

		label, err = b.startEnumeration(request)
		if err != nil {
			return
		}

		b.postRequestToUI(label)
	})
	if !ok {
		return "", ErrBrokerStopped
	}

	return label, err
}

// GenerateStreamForDevice is GenerateStream pinned to one device id. The
// pinned device is fed straight to the confirmation UI without
// enumeration. Tab-capture media types may only be requested from an
// extension-scheme origin; violations are rejected synchronously before
// any provider or UI side effect
func (b *Broker) GenerateStreamForDevice(requester Requester, options StreamOptions, deviceID string, origin OriginContext) (Label, error) {
	if requester == nil || deviceID == "" {
		return "", ErrInvalidRequest
	}

	if options.Audio == StreamTypeNone && options.Video == StreamTypeNone {
		return "", ErrInvalidRequest
	}

	requestsTabCapture := options.Audio == StreamTypeTabAudioCapture ||
		options.Video == StreamTypeTabVideoCapture
	if requestsTabCapture && !originAllowsTabCapture(origin) {
		b.logger.Warnw("Rejected tab capture request from non-extension origin",
			"origin", origin.Origin)
		return "", ErrInvalidOrigin
	}

	var label Label
	var err error

	ok := b.do(func() {
		request := newDeviceRequest(KindGenerateStream, options, origin, requester)
		request.requestedDeviceID = deviceID

		label, err = b.addRequest(request)
		if err != nil {
			return
		}

		b.postRequestToUI(label)

		// skip enumeration, the caller already named its device
		for i := int(StreamTypeNone) + 1; i < numStreamTypes; i++ {
			t := StreamType(i)
			if !options.Requested(t) {
				continue
			}

			request.setState(b.logger, t, StateRequested)
			request.setState(b.logger, t, StatePendingApproval)
			b.ui.AddAvailableDevices(label, t, []StreamDeviceInfo{{
				Type:     t,
				DeviceID: deviceID,
				Name:     deviceID,
			}})
		}
	})
	if !ok {
		return "", ErrBrokerStopped
	}

	return label, err
}

// EnumerateDevices requests the device inventory of one capture type,
// answered via DevicesEnumerated — possibly from cache, always delivered
// asynchronously. The request stays live (and keeps receiving inventory
// updates) until cancelled
func (b *Broker) EnumerateDevices(requester Requester, t StreamType, origin OriginContext) (Label, error) {
	if requester == nil ||
		(t != StreamTypeDeviceAudioCapture && t != StreamTypeDeviceVideoCapture) {
		return "", ErrInvalidRequest
	}

	var label Label
	var err error

	ok := b.do(func() {
		var options StreamOptions
		if t.IsAudio() {
			options.Audio = t
		} else {
			options.Video = t
		}

		request := newDeviceRequest(KindEnumerateDevices, options, origin, requester)

		cache := &b.caches[t]
		if cache.valid {
			// answer from cache without a provider call. Delivery is
			// posted so it never runs on the caller's stack
			request.setState(b.logger, t, StateRequested)

			label, err = b.addRequest(request)
			if err != nil {
				return
			}

			metricCacheHitsTotal.WithLabelValues(t.String()).Inc()

			deliverTo := label
			go b.post(func() {
				b.sendCachedDeviceList(t, deliverTo)
			})

			return
		}

		label, err = b.startEnumeration(request)
		if err != nil {
			return
		}

		b.startMonitoring()
	})
	if !ok {
		return "", ErrBrokerStopped
	}

	return label, err
}

// OpenDevice opens one specific device by id once enumeration resolves it.
// The requester receives DeviceOpened exactly once, or a failure callback
// if the device id does not exist
func (b *Broker) OpenDevice(requester Requester, deviceID string, t StreamType, origin OriginContext) (Label, error) {
	if requester == nil || deviceID == "" ||
		(t != StreamTypeDeviceAudioCapture && t != StreamTypeDeviceVideoCapture) {
		return "", ErrInvalidRequest
	}

	var label Label
	var err error

	ok := b.do(func() {
		var options StreamOptions
		if t.IsAudio() {
			options.Audio = t
		} else {
			options.Video = t
		}

		request := newDeviceRequest(KindOpenDevice, options, origin, requester)
		request.requestedDeviceID = deviceID

		label, err = b.startEnumeration(request)
	})
	if !ok {
		return "", ErrBrokerStopped
	}

	return label, err
}

// CancelRequest withdraws a request. A request with no live device
// sessions is removed with no provider calls; a completed request is
// routed through StopGeneratedStream. Either way no terminal callback is
// delivered — cancellation is caller-initiated and intentionally silent
func (b *Broker) CancelRequest(label Label) {
	b.do(func() {
		b.cancelRequestOnLoop(label)
	})
}

// StopGeneratedStream closes every opened device of the request,
// transitions the affected stream types to Closing and removes the
// request. No terminal callback is delivered
func (b *Broker) StopGeneratedStream(label Label) {
	b.do(func() {
		b.stopGeneratedStreamOnLoop(label)
	})
}

// ---- run-loop internals. Everything below executes on the run loop only

func (b *Broker) cancelRequestOnLoop(label Label) {
	request, ok := b.registry.get(label)
	if !ok {
		return
	}

	// the prompt may still be in flight
	b.ui.Cancel(label)

	if request.done() {
		b.stopGeneratedStreamOnLoop(label)
		return
	}

	// Cancellation may race in-flight opens: close only the sessions
	// already confirmed live. Outstanding Opened callbacks for this label
	// land as no-ops against a removed request
	for _, device := range request.devices {
		if device.InUse {
			b.providerFor(device.Type).Close(device.SessionID)
		}
	}

	// silence the terminal callback permanently
	request.notified = true

	b.removeRequest(label, outcomeCancelled)
}

func (b *Broker) stopGeneratedStreamOnLoop(label Label) {
	request, ok := b.registry.get(label)
	if !ok {
		return
	}

	if request.kind == KindEnumerateDevices {
		b.removeRequest(label, outcomeCancelled)
		return
	}

	for _, device := range request.devices {
		if device.SessionID != "" {
			b.providerFor(device.Type).Close(device.SessionID)
		}
	}

	if request.kind == KindGenerateStream && request.done() {
		for i := int(StreamTypeNone) + 1; i < numStreamTypes; i++ {
			t := StreamType(i)
			if request.getState(t) != StateNotRequested {
				request.setState(b.logger, t, StateClosing)
			}
		}

		b.notifyDevicesClosed(request)
	}

	b.ui.Cancel(label)

	request.notified = true

	b.removeRequest(label, outcomeCancelled)
}

// startEnumeration marks every requested stream type as Requested,
// coalescing onto outstanding provider enumerations where possible, and
// registers the request
func (b *Broker) startEnumeration(request *deviceRequest) (Label, error) {
	for i := int(StreamTypeNone) + 1; i < numStreamTypes; i++ {
		t := StreamType(i)
		if !request.options.Requested(t) {
			continue
		}

		request.setState(b.logger, t, StateRequested)

		if b.caches[t].startEnumeration() {
			metricEnumerationsTotal.WithLabelValues(t.String()).Inc()
			b.providerFor(t).EnumerateDevices(t)
		} else {
			// another request is already enumerating this type; wait on it
			metricEnumerationsCoalescedTotal.WithLabelValues(t.String()).Inc()
		}
	}

	return b.addRequest(request)
}

func (b *Broker) addRequest(request *deviceRequest) (Label, error) {
	label, err := b.registry.add(request)
	if err != nil {
		return "", err
	}

	metricRequestsTotal.WithLabelValues(request.kind.String()).Inc()
	metricLiveRequests.Inc()

	return label, nil
}

func (b *Broker) removeRequest(label Label, outcome string) {
	request, ok := b.registry.get(label)
	if !ok {
		return
	}

	b.registry.remove(label)

	metricRequestsFinishedTotal.WithLabelValues(outcome).Inc()
	metricLiveRequests.Dec()

	// dropping the last enumeration-consuming request turns monitoring off
	// and invalidates the inventory snapshots
	if request.kind == KindEnumerateDevices {
		b.stopMonitoring()
	}
}

func (b *Broker) postRequestToUI(label Label) {
	request, ok := b.registry.get(label)
	if !ok {
		return
	}

	b.ui.RequestConfirmation(label, request.origin, request.options)
}

func (b *Broker) sendCachedDeviceList(t StreamType, label Label) {
	cache := &b.caches[t]
	if !cache.valid {
		return
	}

	request, ok := b.registry.get(label)
	if !ok || request.requester == nil {
		return
	}

	devices := append([]StreamDeviceInfo(nil), cache.devices...)
	request.requester.DevicesEnumerated(label, devices)
}

func (b *Broker) startMonitoring() {
	if b.monitoring || b.monitor == nil {
		return
	}

	b.monitoring = true
	b.monitor.Start(b)

	b.logger.Debug("Started device change monitoring")
}

// stopMonitoring turns monitoring off and invalidates both caches, but
// only once no enumeration-consuming request remains
func (b *Broker) stopMonitoring() {
	if b.registry.hasEnumerationRequest(StreamTypeNone) {
		return
	}

	if b.monitoring {
		b.monitor.Stop()
		b.monitoring = false

		b.logger.Debug("Stopped device change monitoring")
	}

	b.caches[StreamTypeDeviceAudioCapture].invalidate()
	b.caches[StreamTypeDeviceVideoCapture].invalidate()
}

func (b *Broker) providerFor(t StreamType) DeviceProvider {
	if t.IsVideo() {
		return b.videoProvider
	}

	return b.audioProvider
}

// ---- provider event sink (ProviderEventSink)

// DevicesEnumerated receives a provider enumeration result. Safe from any
// goroutine
func (b *Broker) DevicesEnumerated(t StreamType, devices []StreamDeviceInfo) {
	snapshot := append([]StreamDeviceInfo(nil), devices...)

	b.post(func() {
		b.handleDevicesEnumerated(t, snapshot)
	})
}

// Opened receives a provider confirmation that a session is live. Safe
// from any goroutine
func (b *Broker) Opened(t StreamType, session SessionID) {
	b.post(func() {
		b.handleOpened(t, session)
	})
}

// Closed receives a provider close acknowledgment. Safe from any goroutine
func (b *Broker) Closed(t StreamType, session SessionID) {
	b.post(func() {
		// close is fire-and-forget: Closing is transient and the ack is
		// informational only
		b.logger.Debugw("Device session closed", "streamType", t, "sessionID", session)
	})
}

// Error receives an asynchronous provider failure. Safe from any goroutine
func (b *Broker) Error(t StreamType, session SessionID, err error) {
	b.post(func() {
		b.handleError(t, session, err)
	})
}

func (b *Broker) handleDevicesEnumerated(t StreamType, devices []StreamDeviceInfo) {
	b.logger.Debugw("Provider enumeration completed", "streamType", t, "count", len(devices))

	// only EnumerateDevices requests turn on monitoring, so the snapshot is
	// only worth keeping while one of them is live
	updateSnapshot := b.registry.hasEnumerationRequest(t)
	needUpdateClients := b.caches[t].finishEnumeration(devices, updateSnapshot)

	// fan out to every request waiting on this device list. Labels are
	// collected first: advancing a request may call back into collaborators
	var waiting []Label
	b.registry.each(func(label Label, request *deviceRequest) {
		if request.getState(t) != StateRequested || !request.options.Requested(t) {
			return
		}

		if request.kind != KindEnumerateDevices {
			request.setState(b.logger, t, StatePendingApproval)
		}

		waiting = append(waiting, label)
	})

	for _, label := range waiting {
		request, ok := b.registry.get(label)
		if !ok {
			continue
		}

		switch request.kind {
		case KindEnumerateDevices:
			if needUpdateClients && request.requester != nil {
				request.requester.DevicesEnumerated(label, devices)
			}
		case KindOpenDevice:
			b.openRequestedDevice(label, request, t, devices)
		default:
			b.ui.AddAvailableDevices(label, t, devices)
		}
	}
}

// openRequestedDevice resolves an OpenDevice request's pinned device id
// against the enumeration result and begins opening it
func (b *Broker) openRequestedDevice(label Label, request *deviceRequest, t StreamType, devices []StreamDeviceInfo) {
	for _, device := range devices {
		if device.DeviceID != request.requestedDeviceID {
			continue
		}

		opened := device
		opened.InUse = false
		opened.SessionID = b.providerFor(t).Open(opened)

		request.setState(b.logger, t, StateOpening)
		request.devices = append(request.devices, opened)

		return
	}

	// the named device does not exist; fail the whole request so the
	// caller still gets its one terminal notification
	b.logger.Warnw("Requested device not present in enumeration",
		"label", label,
		"deviceID", request.requestedDeviceID,
		"streamType", t)

	request.setState(b.logger, t, StateError)
	b.failRequest(label, request)
}

func (b *Broker) handleOpened(t StreamType, session SessionID) {
	var label Label
	var request *deviceRequest

	b.registry.each(func(l Label, r *deviceRequest) {
		if request != nil {
			return
		}

		for i := range r.devices {
			if r.devices[i].Type == t && r.devices[i].SessionID == session {
				r.devices[i].InUse = true
				label = l
				request = r
				return
			}
		}
	})

	if request == nil {
		// the owning request was cancelled while the open was in flight
		b.logger.Debugw("Opened callback for unknown session, ignoring",
			"streamType", t, "sessionID", session)
		return
	}

	metricDevicesOpenedTotal.WithLabelValues(t.String()).Inc()

	b.maybeCompleteType(label, request, t)
}

// maybeCompleteType advances the stream type to Done once all of its
// devices are live, and fires the terminal callback if the whole request
// just completed
func (b *Broker) maybeCompleteType(label Label, request *deviceRequest, t StreamType) {
	for _, device := range request.devicesOfType(t) {
		if !device.InUse {
			// wait for more devices to be opened before we're done
			return
		}
	}

	request.setState(b.logger, t, StateDone)

	if !request.done() {
		// this stream type is done, but not the other one
		return
	}

	if request.notified {
		return
	}

	switch request.kind {
	case KindOpenDevice:
		request.notified = true
		request.requester.DeviceOpened(label, request.devices[0])
	case KindGenerateStream:
		audioDevices, videoDevices := partitionDevices(request.devices)

		request.notified = true
		request.requester.StreamGenerated(label, audioDevices, videoDevices)

		b.notifyDevicesOpened(request)
	default:
		b.logger.Warnw("Unexpected request kind completed via device open",
			"label", label, "kind", request.kind)
	}
}

func (b *Broker) handleError(t StreamType, session SessionID, err error) {
	metricProviderErrorsTotal.WithLabelValues(t.String()).Inc()

	var label Label
	var request *deviceRequest
	failedIdx := -1

	b.registry.each(func(l Label, r *deviceRequest) {
		if request != nil {
			return
		}

		for i := range r.devices {
			if r.devices[i].Type == t && r.devices[i].SessionID == session {
				label = l
				request = r
				failedIdx = i
				return
			}
		}
	})

	if request == nil {
		b.logger.Debugw("Provider error for unknown session, ignoring",
			"streamType", t, "sessionID", session, "error", err)
		return
	}

	b.logger.Warnw("Provider reported device failure",
		"label", label, "streamType", t, "sessionID", session, "error", err)

	if request.getState(t) == StateDone {
		// the request was already fulfilled; failures of a live stream are
		// the capture pipeline's problem, not the arbitration core's
		return
	}

	// recover locally only when another viable device of the same stream
	// type remains
	viable := 0
	for i, device := range request.devices {
		if i != failedIdx && device.Type == t {
			viable++
		}
	}

	if viable == 0 {
		request.setState(b.logger, t, StateError)
		b.failRequest(label, request)
		return
	}

	request.devices = append(request.devices[:failedIdx], request.devices[failedIdx+1:]...)

	b.logger.Debugw("Dropped failed device, request continues",
		"label", label, "streamType", t, "remaining", viable)

	// dropping the failed device may have been the last thing the stream
	// type was waiting on
	if request.getState(t) == StateOpening {
		b.maybeCompleteType(label, request, t)
	}
}

// ---- confirmation sink (ConfirmationSink)

// Accepted receives the devices selected for a prompt. Safe from any
// goroutine
func (b *Broker) Accepted(label Label, devices []StreamDeviceInfo) {
	selected := append([]StreamDeviceInfo(nil), devices...)

	b.post(func() {
		b.handleAccepted(label, selected)
	})
}

// Rejected receives a user denial for a prompt. Safe from any goroutine
func (b *Broker) Rejected(label Label) {
	b.post(func() {
		b.handleSettingsFailure(label, "rejected")
	})
}

// SettingsError receives a prompt resolution failure. Safe from any
// goroutine
func (b *Broker) SettingsError(label Label) {
	b.post(func() {
		b.handleSettingsFailure(label, "settings error")
	})
}

func (b *Broker) handleAccepted(label Label, devices []StreamDeviceInfo) {
	request, ok := b.registry.get(label)
	if !ok {
		return
	}

	if request.kind == KindDeviceAccess {
		// access checks end at device selection, nothing is opened
		request.notified = true

		if callback := request.accessCallback; callback != nil {
			request.accessCallback = nil
			callback(label, devices)
		}

		b.removeRequest(label, outcomeCompleted)
		return
	}

	foundAudio := false
	foundVideo := false

	for _, accepted := range devices {
		device := accepted

		// in_use tracks this request's open, not the device's global state:
		// the same physical device may be live in other sessions already
		device.InUse = false
		device.SessionID = b.providerFor(device.Type).Open(device)

		request.setState(b.logger, device.Type, StateOpening)
		request.devices = append(request.devices, device)

		if device.Type == request.options.Audio {
			foundAudio = true
		} else if device.Type == request.options.Video {
			foundVideo = true
		}
	}

	// requested types the selection did not cover are failed individually
	if !foundAudio && request.options.Audio != StreamTypeNone {
		request.setState(b.logger, request.options.Audio, StateError)
	}
	if !foundVideo && request.options.Video != StreamTypeNone {
		request.setState(b.logger, request.options.Video, StateError)
	}

	// an empty selection leaves nothing to wait for
	if len(request.devices) == 0 && request.done() {
		b.failRequest(label, request)
	}
}

func (b *Broker) handleSettingsFailure(label Label, reason string) {
	request, ok := b.registry.get(label)
	if !ok {
		return
	}

	b.logger.Debugw("Prompt resolved against the request", "label", label, "reason", reason)

	b.failRequest(label, request)
}

// failRequest delivers the request's failure-shaped terminal notification
// (empty device list for access checks, failure callback otherwise) and
// removes it
func (b *Broker) failRequest(label Label, request *deviceRequest) {
	if !request.notified {
		request.notified = true

		if request.kind == KindDeviceAccess {
			if callback := request.accessCallback; callback != nil {
				request.accessCallback = nil
				callback(label, nil)
			}
		} else if request.requester != nil {
			request.requester.StreamGenerationFailed(label)
		}
	}

	b.removeRequest(label, outcomeFailed)
}

// ---- device change sink (DeviceChangeSink)

// DevicesChanged receives an OS-level hotplug notification. Safe from any
// goroutine
func (b *Broker) DevicesChanged(t StreamType) {
	b.post(func() {
		b.handleDevicesChanged(t)
	})
}

func (b *Broker) handleDevicesChanged(t StreamType) {
	if t != StreamTypeDeviceAudioCapture && t != StreamTypeDeviceVideoCapture {
		return
	}

	if !b.registry.hasEnumerationRequest(t) {
		// nobody is watching this type; just drop the stale snapshot
		b.caches[t].invalidate()
		return
	}

	// re-enumerate even if an enumeration is already in flight, since that
	// one may have been issued before the device change
	b.caches[t].forceEnumeration()
	metricEnumerationsTotal.WithLabelValues(t.String()).Inc()
	b.providerFor(t).EnumerateDevices(t)
}

// ---- notifications

func (b *Broker) notifyDevicesOpened(request *deviceRequest) {
	if b.notifier == nil || (b.config != nil && !b.config.NotifyDeviceActivity) {
		return
	}

	b.notifier.Notify("Capture devices in use", describeDevices(request.devices))
}

func (b *Broker) notifyDevicesClosed(request *deviceRequest) {
	if b.notifier == nil || (b.config != nil && !b.config.NotifyDeviceActivity) {
		return
	}

	b.notifier.Notify("Capture devices released", describeDevices(request.devices))
}

func partitionDevices(devices []StreamDeviceInfo) (audioDevices, videoDevices []StreamDeviceInfo) {
	for _, device := range devices {
		if device.Type.IsAudio() {
			audioDevices = append(audioDevices, device)
		} else if device.Type.IsVideo() {
			videoDevices = append(videoDevices, device)
		}
	}

	return audioDevices, videoDevices
}

func originAllowsTabCapture(origin OriginContext) bool {
	parsed, err := url.Parse(origin.Origin)
	if err != nil {
		return false
	}

	return funk.ContainsString(allowedTabCaptureSchemes, parsed.Scheme)
}
