//go:build linux

package netmon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// NetlinkSource listens for kernel route notifications (link and address
// changes) and re-evaluates reachability on each one. With a positive
// Interval it also re-evaluates when no notification arrived for that long.
type NetlinkSource struct {
	Check    func() bool
	Interval time.Duration
	Logger   *slog.Logger
}

// Updates implements Source
func (s NetlinkSource) Updates(ctx context.Context) (<-chan bool, error) {
	check := s.Check
	if check == nil {
		check = HasRoutableInterface
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return nil, fmt.Errorf("netlink socket: %w", err)
	}
	groups := uint32(unix.RTMGRP_LINK | unix.RTMGRP_IPV4_IFADDR | unix.RTMGRP_IPV6_IFADDR | unix.RTMGRP_IPV4_ROUTE | unix.RTMGRP_IPV6_ROUTE)
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: groups}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netlink bind: %w", err)
	}
	// Bounded reads let the loop notice cancellation
	tv := unix.NsecToTimeval((500 * time.Millisecond).Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netlink timeout: %w", err)
	}

	ch := make(chan bool, 1)
	go func() {
		defer close(ch)
		defer unix.Close(fd)

		lastCheck := time.Now()
		send := func() bool {
			lastCheck = time.Now()
			select {
			case ch <- check():
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !send() {
			return
		}

		buf := make([]byte, 1<<16)
		for {
			if ctx.Err() != nil {
				return
			}
			n, _, err := unix.Recvfrom(fd, buf, 0)
			switch {
			case err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR:
				if s.Interval > 0 && time.Since(lastCheck) >= s.Interval {
					if !send() {
						return
					}
				}
				continue
			case err == unix.ENOBUFS:
				// Notifications were dropped; the current state is unknown
				logger.Debug("netlink buffer overrun, re-checking")
			case err != nil:
				logger.Warn("netlink read failed", "error", err)
				return
			case n == 0:
				continue
			}
			if !send() {
				return
			}
		}
	}()
	return ch, nil
}

// DefaultSource returns the best reachability source for this platform
func DefaultSource(interval time.Duration, logger *slog.Logger) Source {
	return fallbackSource{
		primary:  NetlinkSource{Interval: interval, Logger: logger},
		fallback: InterfaceSource{Interval: interval},
		logger:   logger,
	}
}
