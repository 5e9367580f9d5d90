package broker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/avkit/mediabroker/pkg/broker/util"
)

const metricsShutdownTimeout = 3 * time.Second

// Daemon is the main entity managing access to all sub-components
type Daemon struct {
	logger   *zap.SugaredLogger
	notifier Notifier
	config   *CanonicalConfig

	broker        *Broker
	audioProvider DeviceProvider
	videoProvider *FakeProvider
	metricsServer *http.Server

	stopChannel chan bool
	version     string
	verbose     bool
	stopping    sync.Once
}

// NewDaemon creates a Daemon instance
func NewDaemon(logger *zap.SugaredLogger, verbose bool) (*Daemon, error) {
	logger = logger.Named("daemon")

	notifier, err := NewToastNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create ToastNotifier", "error", err)
		return nil, fmt.Errorf("create new ToastNotifier: %w", err)
	}

	config, err := NewConfig(logger, notifier)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	d := &Daemon{
		logger:      logger,
		notifier:    notifier,
		config:      config,
		stopChannel: make(chan bool),
		verbose:     verbose,
	}

	logger.Debug("Created daemon instance")

	return d, nil
}

// Initialize sets up components and starts to run in the background
func (d *Daemon) Initialize() error {
	d.logger.Debug("Initializing")

	// load the config for the first time
	if err := d.config.Load(); err != nil {
		d.logger.Errorw("Failed to load config during initialization", "error", err)
		return fmt.Errorf("load config during init: %w", err)
	}

	// the native audio provider may be unavailable (headless boxes, CI,
	// unsupported platforms); fall back to an empty fake inventory then
	audioProvider, err := NewPlatformAudioProvider(d.logger)
	if err != nil {
		d.logger.Warnw("Native audio provider unavailable, using fake inventory", "error", err)
		audioProvider = NewFakeProvider(d.logger, nil)
	}
	d.audioProvider = audioProvider

	// video capture has no native provider yet, see the fake's inventory
	d.videoProvider = NewFakeProvider(d.logger, map[StreamType][]StreamDeviceInfo{
		StreamTypeDeviceVideoCapture: {
			{Type: StreamTypeDeviceVideoCapture, DeviceID: "fake-camera-0", Name: "Fake Camera 0"},
		},
	})

	ui := NewAutoAcceptUI(d.logger, d.config)
	monitor := NewPollingMonitor(d.logger, d.config.MonitorPollInterval)

	broker, err := New(d.logger, d.config, d.audioProvider, d.videoProvider, ui, monitor, d.notifier)
	if err != nil {
		d.logger.Errorw("Failed to create Broker", "error", err)
		return fmt.Errorf("create new Broker: %w", err)
	}
	d.broker = broker

	d.setupInterruptHandler()
	d.run()

	return nil
}

// SetVersion causes the daemon to log a version string if called before Initialize
func (d *Daemon) SetVersion(version string) {
	d.version = version
}

// Verbose returns a boolean indicating whether the daemon is running in verbose mode
func (d *Daemon) Verbose() bool {
	return d.verbose
}

// Broker exposes the arbitration engine to in-process consumers
func (d *Daemon) Broker() *Broker {
	return d.broker
}

func (d *Daemon) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		d.logger.Debugw("Interrupted", "signal", signal)
		d.signalStop()
	}()
}

func (d *Daemon) run() {
	if d.version != "" {
		d.logger.Infow("Run loop starting", "version", d.version)
	} else {
		d.logger.Info("Run loop starting")
	}

	// watch the config file for changes
	go d.config.WatchConfigFileChanges()
	d.setupOnConfigReload()

	d.broker.Start()
	d.startMetricsServer()

	// warm the device inventory and log what's attached
	d.enumerateAtStartup()

	// wait until stopped (gracefully)
	<-d.stopChannel
	d.logger.Debug("Stop channel signaled, terminating")

	if err := d.stop(); err != nil {
		d.logger.Warnw("Failed to stop daemon", "error", err)
		os.Exit(1)
	} else {
		// exit with 0
		os.Exit(0)
	}
}

func (d *Daemon) signalStop() {
	d.stopping.Do(func() {
		d.logger.Debug("Signalling stop channel")
		select {
		case d.stopChannel <- true:
		default:
			// Channel already has a signal, ignore
		}
	})
}

func (d *Daemon) stop() error {
	d.logger.Info("Stopping")

	d.config.StopWatchingConfigFile()

	if d.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		if err := d.metricsServer.Shutdown(ctx); err != nil {
			d.logger.Warnw("Failed to shut down metrics server", "error", err)
		}
	}

	d.broker.Stop()

	// attempt to sync on exit - this won't necessarily work but can't harm
	d.logger.Sync()

	return nil
}

// startMetricsServer serves the Prometheus endpoint if one is configured
func (d *Daemon) startMetricsServer() {
	address := d.config.MetricsListenAddress
	if address == "" {
		d.logger.Debug("No metrics listen address configured, skipping metrics server")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	d.metricsServer = &http.Server{Addr: address, Handler: mux}

	d.logger.Infow("Serving Prometheus metrics", "address", address)

	go func() {
		if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Warnw("Metrics server terminated", "error", err)
		}
	}()
}

// enumerateAtStartup issues one enumeration per capture type so the attached
// devices show up in the log right away
func (d *Daemon) enumerateAtStartup() {
	requester := &loggingRequester{logger: d.logger.Named("startup_enum")}
	origin := OriginContext{Origin: "system://startup"}

	for _, t := range []StreamType{StreamTypeDeviceAudioCapture, StreamTypeDeviceVideoCapture} {
		if _, err := d.broker.EnumerateDevices(requester, t, origin); err != nil {
			d.logger.Warnw("Failed to start startup enumeration", "streamType", t, "error", err)
		}
	}
}

// setupOnConfigReload logs the effective settings whenever the config file
// changes. The broker and UI read config fields on use, so there is nothing
// to restart here; the poll interval only applies to monitors created later
func (d *Daemon) setupOnConfigReload() {
	configReloadedChannel := d.config.SubscribeToChanges()

	go func() {
		for range configReloadedChannel {
			d.logger.Infow("Config reloaded",
				"autoAcceptPrompts", d.config.AutoAcceptPrompts,
				"notifyDeviceActivity", d.config.NotifyDeviceActivity)
		}
	}()
}

// loggingRequester logs request outcomes, nothing more. It serves requests
// the daemon makes on its own behalf
type loggingRequester struct {
	logger *zap.SugaredLogger
}

func (r *loggingRequester) StreamGenerated(label Label, audio []StreamDeviceInfo, video []StreamDeviceInfo) {
	r.logger.Infow("Stream generated", "label", label, "audio", audio, "video", video)
}

func (r *loggingRequester) StreamGenerationFailed(label Label) {
	r.logger.Warnw("Stream generation failed", "label", label)
}

func (r *loggingRequester) DevicesEnumerated(label Label, devices []StreamDeviceInfo) {
	r.logger.Infow("Devices enumerated", "label", label, "count", len(devices))

	for _, device := range devices {
		r.logger.Infow("Device", "label", label, "deviceID", device.DeviceID, "name", device.Name)
	}
}

func (r *loggingRequester) DeviceOpened(label Label, device StreamDeviceInfo) {
	r.logger.Infow("Device opened", "label", label, "deviceID", device.DeviceID, "sessionID", device.SessionID)
}
