//go:build !linux

package netio

import (
	"errors"
	"log/slog"
)

// ErrUnsupportedPlatform indicates raw-socket transport is only
// implemented for Linux. Dry-run mode works everywhere.
var ErrUnsupportedPlatform = errors.New("raw socket transport requires linux")

// NewRawChannels is unavailable on non-Linux platforms.
func NewRawChannels(_ string, _ *slog.Logger) (Channels, error) {
	return nil, ErrUnsupportedPlatform
}
