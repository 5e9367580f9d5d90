package broker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DeviceMonitor observes OS-level device hotplug. Monitoring starts on the
// first enumeration-consuming request and stops when none remain
type DeviceMonitor interface {
	// Start begins monitoring, delivering change events to the sink.
	// Events may arrive on any goroutine
	Start(sink DeviceChangeSink)

	// Stop halts monitoring. No events may be delivered afterwards
	Stop()
}

// DeviceChangeSink receives hotplug notifications
type DeviceChangeSink interface {
	DevicesChanged(t StreamType)
}

// pollingMonitor is a portable DeviceMonitor that fires a change event for
// both capture types on a fixed interval. There is no cross-platform
// hotplug notification mechanism available to us, so we poll and rely on
// the broker's enumeration snapshot comparison to suppress updates when
// the inventory did not actually change
type pollingMonitor struct {
	logger   *zap.SugaredLogger
	interval time.Duration

	mu          sync.Mutex
	stopChannel chan struct{}
}

// NewPollingMonitor creates a timer-based device monitor with the given
// poll interval
func NewPollingMonitor(logger *zap.SugaredLogger, interval time.Duration) DeviceMonitor {
	return &pollingMonitor{
		logger:   logger.Named("monitor"),
		interval: interval,
	}
}

func (m *pollingMonitor) Start(sink DeviceChangeSink) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopChannel != nil {
		return
	}

	stop := make(chan struct{})
	m.stopChannel = stop

	m.logger.Debugw("Starting device poll loop", "interval", m.interval)

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sink.DevicesChanged(StreamTypeDeviceAudioCapture)
				sink.DevicesChanged(StreamTypeDeviceVideoCapture)
			case <-stop:
				return
			}
		}
	}()
}

func (m *pollingMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopChannel == nil {
		return
	}

	close(m.stopChannel)
	m.stopChannel = nil

	m.logger.Debug("Stopped device poll loop")
}
