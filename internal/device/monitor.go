package device

import (
	"context"
	"log/slog"
)

// Monitor runs discovery sweeps and tracks connect/disconnect edges per
// media kind. It owns no goroutine; the recording control loop calls Poll
// on its tick so device state and lifecycle policy advance together.
type Monitor struct {
	discoverer Discoverer
	logger     *slog.Logger
	last       map[Kind]Handle
}

func NewMonitor(discoverer Discoverer, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		discoverer: discoverer,
		logger:     logger,
		last:       make(map[Kind]Handle),
	}
}

// Poll runs one discovery sweep and returns the current handle for every
// media kind. A transition is logged only when a kind's connected state or
// node path changed since the previous sweep; identical sweeps stay silent.
func (m *Monitor) Poll(ctx context.Context) []Handle {
	handles := make([]Handle, 0, len(Kinds))
	for _, kind := range Kinds {
		path, found, err := m.discoverer.Discover(ctx, kind)
		if err != nil {
			m.logger.Debug("device discovery failed", "kind", kind.String(), "error", err)
			path, found = "", false
		}
		current := Handle{Kind: kind, Path: path, Connected: found}
		m.observe(current)
		handles = append(handles, current)
	}
	return handles
}

func (m *Monitor) observe(current Handle) {
	previous, seen := m.last[current.Kind]
	m.last[current.Kind] = current
	if seen && previous.Connected == current.Connected && previous.Path == current.Path {
		return
	}

	switch {
	case current.Connected && (!seen || !previous.Connected):
		m.logger.Info("device connected", "kind", current.Kind.String(), "path", current.Path)
	case current.Connected:
		m.logger.Info("device node moved", "kind", current.Kind.String(), "path", current.Path, "previous", previous.Path)
	case seen && previous.Connected:
		m.logger.Info("device disconnected", "kind", current.Kind.String(), "path", previous.Path)
	}
	// Starting up with nothing attached is the normal idle state, not a
	// transition.
}
