package input

import (
	"go.uber.org/zap"

	"github.com/gdshr/attendance-agent/internal/agent/tracker"
	"github.com/gdshr/attendance-agent/internal/common/logger"
)

// Source is an OS-level input capture hook. Implementations invoke the
// sink from their own threads; Alive lets the watchdog detect a hook the
// OS silently unregistered.
type Source interface {
	// Start begins capture, delivering events to sink. Non-blocking.
	Start(sink func(tracker.Event)) error
	// Stop unregisters the hook.
	Stop() error
	// Alive reports whether the hook is still registered and delivering.
	Alive() bool
	// Name identifies the source in logs, e.g. "mouse" or "keyboard".
	Name() string
}

// Watchdog restarts capture sources that have died. Some platforms
// unregister input hooks after sleep/resume or fast user switching
// without any notification.
type Watchdog struct {
	sources []Source
	sink    func(tracker.Event)
	log     *logger.Logger
}

// NewWatchdog creates a watchdog over the given sources.
func NewWatchdog(sources []Source, sink func(tracker.Event), log *logger.Logger) *Watchdog {
	return &Watchdog{sources: sources, sink: sink, log: log}
}

// StartAll starts every source. A source that fails to start is logged
// and left for the next Check to retry.
func (w *Watchdog) StartAll() {
	for _, src := range w.sources {
		if err := src.Start(w.sink); err != nil {
			w.log.Error("input source failed to start",
				zap.String("source", src.Name()),
				zap.Error(err))
		}
	}
}

// Check restarts any dead source and returns how many were restarted.
func (w *Watchdog) Check() int {
	restarted := 0
	for _, src := range w.sources {
		if src.Alive() {
			continue
		}
		w.log.Warn("input source died, restarting", zap.String("source", src.Name()))
		_ = src.Stop()
		if err := src.Start(w.sink); err != nil {
			w.log.Error("input source restart failed",
				zap.String("source", src.Name()),
				zap.Error(err))
			continue
		}
		restarted++
	}
	return restarted
}

// StopAll stops every source.
func (w *Watchdog) StopAll() {
	for _, src := range w.sources {
		if err := src.Stop(); err != nil {
			w.log.Warn("input source stop failed",
				zap.String("source", src.Name()),
				zap.Error(err))
		}
	}
}
