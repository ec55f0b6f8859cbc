//go:build !linux

package netmon

import (
	"log/slog"
	"time"
)

// DefaultSource returns the best reachability source for this platform
func DefaultSource(interval time.Duration, logger *slog.Logger) Source {
	return InterfaceSource{Interval: interval}
}
