package netmon

import (
	"context"
	"log/slog"
)

// fallbackSource uses primary and switches to fallback when primary cannot
// start (for example netlink being unavailable in a sandbox) or stops
// before ctx is done
type fallbackSource struct {
	primary  Source
	fallback Source
	logger   *slog.Logger
}

// Updates implements Source
func (f fallbackSource) Updates(ctx context.Context) (<-chan bool, error) {
	logger := f.logger
	if logger == nil {
		logger = slog.Default()
	}

	primary, err := f.primary.Updates(ctx)
	if err != nil {
		logger.Warn("route notifications unavailable, polling interfaces", "error", err)
		return f.fallback.Updates(ctx)
	}

	out := make(chan bool, 1)
	go func() {
		defer close(out)
		if !forward(ctx, primary, out) {
			return
		}
		logger.Warn("route notifications stopped, polling interfaces")
		fallback, err := f.fallback.Updates(ctx)
		if err != nil {
			logger.Error("interface polling unavailable", "error", err)
			return
		}
		forward(ctx, fallback, out)
	}()
	return out, nil
}

// forward copies in to out until in closes or ctx is done. It reports
// whether in closed while ctx was still live.
func forward(ctx context.Context, in <-chan bool, out chan<- bool) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case v, ok := <-in:
			if !ok {
				return ctx.Err() == nil
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return false
			}
		}
	}
}
