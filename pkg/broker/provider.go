package broker

// DeviceProvider is the narrow asynchronous interface to one media type's
// device subsystem. Implementations own actual hardware/driver interaction;
// the broker depends on nothing beyond this contract.
//
// All methods are non-blocking. Results and errors are delivered through
// the ProviderEventSink handed to Register, and may arrive on any
// goroutine; the broker marshals them onto its run loop before touching
// shared state
type DeviceProvider interface {
	// Register attaches the event sink. Called once before any other method
	Register(sink ProviderEventSink)

	// Unregister detaches the sink; no events may be delivered afterwards
	Unregister()

	// EnumerateDevices asynchronously lists available devices of the given
	// type, answered by a DevicesEnumerated event
	EnumerateDevices(t StreamType)

	// Open starts opening the given device and immediately returns the
	// session ID assigned to it. The session is not live until an Opened
	// event confirms it. The same physical device may be opened by several
	// unrelated requests, each receiving a distinct session
	Open(device StreamDeviceInfo) SessionID

	// Close releases an opened session. Acknowledgment via the Closed event
	// is fire-and-forget; the broker never waits on it
	Close(session SessionID)
}

// ProviderEventSink receives device provider callbacks. Correlation is
// always by session ID and stream type, never by arrival order
type ProviderEventSink interface {
	DevicesEnumerated(t StreamType, devices []StreamDeviceInfo)
	Opened(t StreamType, session SessionID)
	Closed(t StreamType, session SessionID)
	Error(t StreamType, session SessionID, err error)
}
