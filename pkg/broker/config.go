package broker

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/avkit/mediabroker/pkg/broker/util"
)

// CanonicalConfig provides application-wide access to configuration fields,
// as well as loading/file watching logic for the broker's configuration file
type CanonicalConfig struct {
	// AutoAcceptPrompts controls whether the built-in confirmation UI
	// accepts or rejects prompts
	AutoAcceptPrompts bool

	// MonitorPollInterval is the device hotplug poll interval
	MonitorPollInterval time.Duration

	// NotifyDeviceActivity controls desktop toasts on device open/close
	NotifyDeviceActivity bool

	// MetricsListenAddress is the daemon's Prometheus listen address;
	// empty disables the metrics endpoint
	MetricsListenAddress string

	logger             *zap.SugaredLogger
	notifier           Notifier
	stopWatcherChannel chan bool

	reloadConsumers []chan bool

	userConfig *viper.Viper
}

const (
	userConfigFilepath = "config.yaml"

	userConfigName = "config"
	userConfigPath = "."
	configType     = "yaml"

	configKey_AutoAcceptPrompts    = "auto_accept_prompts"
	configKey_MonitorPollInterval  = "monitor_poll_interval"
	configKey_NotifyDeviceActivity = "notify_device_activity"
	configKey_MetricsListenAddress = "metrics_listen_address"

	default_AutoAcceptPrompts    = true
	default_MonitorPollInterval  = 10 * time.Second
	default_NotifyDeviceActivity = false
	default_MetricsListenAddress = ""
)

// NewConfig creates a config instance for the broker and sets up a viper
// instance for its config file
func NewConfig(logger *zap.SugaredLogger, notifier Notifier) (*CanonicalConfig, error) {
	logger = logger.Named("config")

	cc := &CanonicalConfig{
		logger:             logger,
		notifier:           notifier,
		reloadConsumers:    []chan bool{},
		stopWatcherChannel: make(chan bool),
	}

	userConfig := viper.New()
	userConfig.SetConfigName(userConfigName)
	userConfig.SetConfigType(configType)
	userConfig.AddConfigPath(userConfigPath)

	userConfig.SetDefault(configKey_AutoAcceptPrompts, default_AutoAcceptPrompts)
	userConfig.SetDefault(configKey_MonitorPollInterval, default_MonitorPollInterval)
	userConfig.SetDefault(configKey_NotifyDeviceActivity, default_NotifyDeviceActivity)
	userConfig.SetDefault(configKey_MetricsListenAddress, default_MetricsListenAddress)

	cc.userConfig = userConfig

	logger.Debug("Created config instance")

	return cc, nil
}

// Load reads the config file from disk and tries to parse it. A missing
// file is fine, the defaults cover everything
func (cc *CanonicalConfig) Load() error {
	cc.logger.Debugw("Loading config", "path", userConfigFilepath)

	if util.FileExists(userConfigFilepath) {
		if err := cc.userConfig.ReadInConfig(); err != nil {
			cc.logger.Warnw("Viper failed to read user config", "error", err)
			if strings.Contains(err.Error(), "yaml:") {
				cc.notifier.Notify("Invalid configuration!",
					fmt.Sprintf("Please make sure %s is in a valid YAML format.", userConfigFilepath))
			} else {
				cc.notifier.Notify("Error loading configuration!", "Please check the broker's logs for more details.")
			}
			return fmt.Errorf("read user config: %w", err)
		}
	} else {
		cc.logger.Debugw("No config file found, using defaults", "path", userConfigFilepath)
	}

	if err := cc.populateFromViper(); err != nil {
		cc.logger.Warnw("Failed to populate config fields", "error", err)
		return fmt.Errorf("populate config fields: %w", err)
	}

	cc.logger.Info("Loaded config successfully")
	cc.logger.Infow("Config values",
		"autoAcceptPrompts", cc.AutoAcceptPrompts,
		"monitorPollInterval", cc.MonitorPollInterval,
		"notifyDeviceActivity", cc.NotifyDeviceActivity,
		"metricsListenAddress", cc.MetricsListenAddress,
	)

	return nil
}

// SubscribeToChanges allows external components to receive updates when the
// config is reloaded
func (cc *CanonicalConfig) SubscribeToChanges() chan bool {
	c := make(chan bool)
	cc.reloadConsumers = append(cc.reloadConsumers, c)

	return c
}

// WatchConfigFileChanges starts watching for configuration file changes
// and attempts reloading the config when they happen
func (cc *CanonicalConfig) WatchConfigFileChanges() {
	cc.logger.Debugw("Starting to watch user config file for changes", "path", userConfigFilepath)

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)

	lastAttemptedReload := time.Now()

	// establish watch using viper as opposed to doing it ourselves, though
	// our internal cooldown is still required
	cc.userConfig.WatchConfig()
	cc.userConfig.OnConfigChange(func(event fsnotify.Event) {

		// when we get a write event...
		if event.Op&fsnotify.Write == fsnotify.Write {

			now := time.Now()

			// ... check if it's not a duplicate (many editors will write to a file twice)
			if lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {

				// and attempt reload if appropriate
				cc.logger.Debugw("Config file modified, attempting reload", "event", event)

				// wait a bit to let the editor actually flush the new file contents to disk
				<-time.After(delayBetweenEventAndReload)

				if err := cc.Load(); err != nil {
					cc.logger.Warnw("Failed to reload config file", "error", err)
				} else {
					cc.logger.Info("Reloaded config successfully")
					cc.onConfigReloaded()
				}

				// don't forget to update the time
				lastAttemptedReload = now
			}
		}
	})

	// wait till they stop us
	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopping user config file watcher")
	cc.userConfig.OnConfigChange(nil)
}

// StopWatchingConfigFile signals our filesystem watcher to stop
func (cc *CanonicalConfig) StopWatchingConfigFile() {
	cc.stopWatcherChannel <- true

	// Close all reload consumer channels to signal goroutines to exit
	cc.closeReloadChannels()
}

func (cc *CanonicalConfig) closeReloadChannels() {
	for _, ch := range cc.reloadConsumers {
		close(ch)
	}
	cc.reloadConsumers = nil
	cc.logger.Debug("Closed all config reload channels")
}

func (cc *CanonicalConfig) populateFromViper() error {
	cc.AutoAcceptPrompts = cc.userConfig.GetBool(configKey_AutoAcceptPrompts)
	cc.NotifyDeviceActivity = cc.userConfig.GetBool(configKey_NotifyDeviceActivity)
	cc.MetricsListenAddress = cc.userConfig.GetString(configKey_MetricsListenAddress)

	cc.MonitorPollInterval = cc.userConfig.GetDuration(configKey_MonitorPollInterval)
	if cc.MonitorPollInterval <= 0 {
		cc.logger.Warnw("Invalid monitor poll interval, using default",
			"value", cc.MonitorPollInterval,
			"default", default_MonitorPollInterval)
		cc.MonitorPollInterval = default_MonitorPollInterval
	}

	cc.logger.Debug("Populated config fields from viper")

	return nil
}

func (cc *CanonicalConfig) onConfigReloaded() {
	cc.logger.Debug("Notifying consumers about configuration reload")

	for _, consumer := range cc.reloadConsumers {
		// Safely send to channel, handling closed channels
		func() {
			defer func() {
				if r := recover(); r != nil {
					// Channel is closed, ignore
					cc.logger.Debugw("Config reload channel closed, skipping notification", "recover", r)
				}
			}()
			select {
			case consumer <- true:
			default:
				// Channel is full, skip
			}
		}()
	}
}
