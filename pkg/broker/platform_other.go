//go:build !linux && !windows
// +build !linux,!windows

package broker

import (
	"errors"

	"go.uber.org/zap"
)

// NewPlatformAudioProvider returns the native audio provider for this
// platform; there is none here, callers should fall back to a fake
func NewPlatformAudioProvider(logger *zap.SugaredLogger) (DeviceProvider, error) {
	return nil, errors.New("no native audio provider for this platform")
}
