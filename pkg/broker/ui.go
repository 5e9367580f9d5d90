package broker

import (
	"sync"

	"go.uber.org/zap"
)

// ConfirmationUI is the asynchronous interface to the consent/prompt
// subsystem. Consent policy and presentation are out of scope here; the
// broker only feeds prompts and reacts to their terminal callbacks
type ConfirmationUI interface {
	// Register attaches the result sink. Called once before any other method
	Register(sink ConfirmationSink)

	// RequestConfirmation opens a prompt for the given request
	RequestConfirmation(label Label, origin OriginContext, options StreamOptions)

	// AddAvailableDevices feeds enumerated devices of one stream type into
	// an in-flight prompt
	AddAvailableDevices(label Label, t StreamType, devices []StreamDeviceInfo)

	// Cancel withdraws an in-flight prompt. No result may be delivered for
	// the label afterwards
	Cancel(label Label)
}

// ConfirmationSink receives prompt results. Exactly one of these fires per
// prompt unless the prompt was cancelled first
type ConfirmationSink interface {
	// Accepted delivers the devices the user (or policy) selected
	Accepted(label Label, devices []StreamDeviceInfo)

	// Rejected reports that the user denied the request
	Rejected(label Label)

	// SettingsError reports that the prompt could not be resolved at all,
	// e.g. no eligible devices exist for any requested type
	SettingsError(label Label)
}

// pendingConfirmation tracks one in-flight prompt until every requested
// stream type has fed its device list
type pendingConfirmation struct {
	options StreamOptions

	waitAudio bool
	waitVideo bool

	// first eligible device per requested type
	selected []StreamDeviceInfo
}

func (p *pendingConfirmation) ready() bool {
	return !p.waitAudio && !p.waitVideo
}

// autoAcceptUI is a policy-free ConfirmationUI that selects the first
// available device of every requested type as soon as all requested types
// have reported in. It stands in for a real consent surface in the daemon
// and in tests, and can be flipped to reject everything through the
// auto_accept_prompts config key (including via config hot reload)
type autoAcceptUI struct {
	logger *zap.SugaredLogger

	mu      sync.Mutex
	sink    ConfirmationSink
	pending map[Label]*pendingConfirmation
	accept  bool
}

// NewAutoAcceptUI creates the auto-accepting confirmation UI. config may be
// nil, in which case every prompt is accepted
func NewAutoAcceptUI(logger *zap.SugaredLogger, config *CanonicalConfig) ConfirmationUI {
	ui := &autoAcceptUI{
		logger:  logger.Named("ui"),
		pending: make(map[Label]*pendingConfirmation),
		accept:  true,
	}

	if config != nil {
		ui.accept = config.AutoAcceptPrompts
		ui.setupOnConfigReload(config)
	}

	return ui
}

func (ui *autoAcceptUI) setupOnConfigReload(config *CanonicalConfig) {
	configReloadedChannel := config.SubscribeToChanges()

	go func() {
		for {
			if _, ok := <-configReloadedChannel; !ok {
				return
			}

			ui.mu.Lock()
			ui.accept = config.AutoAcceptPrompts
			ui.mu.Unlock()

			ui.logger.Debugw("Applied reloaded prompt policy", "accept", config.AutoAcceptPrompts)
		}
	}()
}

func (ui *autoAcceptUI) Register(sink ConfirmationSink) {
	ui.mu.Lock()
	ui.sink = sink
	ui.mu.Unlock()
}

func (ui *autoAcceptUI) RequestConfirmation(label Label, origin OriginContext, options StreamOptions) {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	ui.pending[label] = &pendingConfirmation{
		options:   options,
		waitAudio: options.Audio != StreamTypeNone,
		waitVideo: options.Video != StreamTypeNone,
	}

	ui.logger.Debugw("Prompt opened", "label", label, "origin", origin.Origin, "options", options)
}

func (ui *autoAcceptUI) AddAvailableDevices(label Label, t StreamType, devices []StreamDeviceInfo) {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	prompt, ok := ui.pending[label]
	if !ok {
		return
	}

	switch {
	case t.IsAudio() && prompt.waitAudio:
		prompt.waitAudio = false
	case t.IsVideo() && prompt.waitVideo:
		prompt.waitVideo = false
	default:
		return
	}

	if len(devices) > 0 {
		prompt.selected = append(prompt.selected, devices[0])
	}

	if prompt.ready() {
		delete(ui.pending, label)
		ui.resolveLocked(label, prompt)
	}
}

func (ui *autoAcceptUI) Cancel(label Label) {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if _, ok := ui.pending[label]; ok {
		delete(ui.pending, label)
		ui.logger.Debugw("Prompt cancelled", "label", label)
	}
}

// resolveLocked posts the prompt result. Results are always delivered on a
// fresh goroutine, never on the caller's stack
func (ui *autoAcceptUI) resolveLocked(label Label, prompt *pendingConfirmation) {
	sink := ui.sink
	accept := ui.accept

	if sink == nil {
		ui.logger.Warnw("Prompt resolved with no sink registered", "label", label)
		return
	}

	switch {
	case !accept:
		ui.logger.Debugw("Prompt auto-rejected by policy", "label", label)
		go sink.Rejected(label)
	case len(prompt.selected) == 0:
		ui.logger.Debugw("Prompt had no eligible devices", "label", label)
		go sink.SettingsError(label)
	default:
		ui.logger.Debugw("Prompt auto-accepted", "label", label, "devices", len(prompt.selected))
		selected := prompt.selected
		go sink.Accepted(label, selected)
	}
}
