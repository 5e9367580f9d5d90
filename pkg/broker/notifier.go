package broker

import (
	"fmt"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Notifier provides an interface for issuing device activity notifications
// to the user. Indicator policy lives elsewhere; this is only the delivery
// shim
type Notifier interface {
	Notify(title string, message string)
}

// ToastNotifier implements the Notifier interface using desktop toasts
type ToastNotifier struct {
	logger *zap.SugaredLogger
}

// NewToastNotifier creates a new ToastNotifier
func NewToastNotifier(logger *zap.SugaredLogger) (*ToastNotifier, error) {
	logger = logger.Named("notifier")
	logger.Debug("Created toast notifier instance")

	return &ToastNotifier{logger: logger}, nil
}

// Notify sends a toast notification with the given title and message
func (tn *ToastNotifier) Notify(title string, message string) {
	tn.logger.Infow("Sending toast notification", "title", title, "message", message)

	if err := beeep.Notify(title, message, ""); err != nil {
		tn.logger.Warnw("Failed to send toast notification", "error", err)
	}
}

// describeDevices renders a short human-readable device list for
// notification bodies
func describeDevices(devices []StreamDeviceInfo) string {
	switch len(devices) {
	case 0:
		return "no devices"
	case 1:
		return devices[0].Name
	default:
		return fmt.Sprintf("%s and %d more", devices[0].Name, len(devices)-1)
	}
}
