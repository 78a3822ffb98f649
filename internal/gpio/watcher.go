package gpio

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/config"
)

const (
	defaultPollInterval = 20 * time.Millisecond
	defaultDebounce     = 3

	// errorLogEvery limits repeated read failures in the log.
	errorLogEvery = 100
)

// Logger is the subset of logging.Logger the watcher uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// PressFunc receives each debounced press.
type PressFunc func(button config.ButtonConfig)

// lineState debounces one line.
type lineState struct {
	stable    bool
	baselined bool
	pending   bool
	count     int
}

// step feeds one raw sample and reports a released→pressed transition.
// The first stable value only establishes the baseline, so a button held
// during startup does not fire.
func (s *lineState) step(v bool, need int) bool {
	if s.baselined && v == s.stable {
		s.count = 0
		return false
	}
	if s.count == 0 || v != s.pending {
		s.pending = v
		s.count = 1
	} else {
		s.count++
	}
	if s.count < need {
		return false
	}

	s.count = 0
	if !s.baselined {
		s.baselined = true
		s.stable = v
		return false
	}
	s.stable = v
	return v
}

// Watcher polls a Reader and reports debounced button presses.
//
// Thread Safety:
//   - Poll and Run must not be called concurrently.
type Watcher struct {
	reader   Reader
	buttons  []config.ButtonConfig
	states   []lineState
	interval time.Duration
	debounce int
	onPress  PressFunc
	log      Logger
	failures int
}

// NewWatcher creates a watcher. Samples from reader must line up with
// buttons by index.
func NewWatcher(reader Reader, cfg config.GPIOConfig, onPress PressFunc, log Logger) *Watcher {
	w := &Watcher{
		reader:   reader,
		buttons:  cfg.Buttons,
		states:   make([]lineState, len(cfg.Buttons)),
		interval: cfg.PollInterval,
		debounce: cfg.Debounce,
		onPress:  onPress,
		log:      log,
	}
	if w.interval <= 0 {
		w.interval = defaultPollInterval
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	return w
}

// Lines returns the line offsets in button order, for NewRealReader.
func Lines(buttons []config.ButtonConfig) []int {
	out := make([]int, len(buttons))
	for i, b := range buttons {
		out[i] = b.Line
	}
	return out
}

// Poll takes one sample and fires onPress for every completed press.
func (w *Watcher) Poll() error {
	sample, err := w.reader.Read()
	if err != nil {
		return err
	}
	if len(sample) != len(w.buttons) {
		return fmt.Errorf("gpio: read %d lines, want %d", len(sample), len(w.buttons))
	}
	for i, v := range sample {
		if w.states[i].step(v, w.debounce) {
			w.onPress(w.buttons[i])
		}
	}
	return nil
}

// Run polls until ctx is cancelled, then closes the reader.
// Read errors are logged and polling continues.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.reader.Close() //nolint:errcheck // shutdown path

	w.log.Info("gpio watcher started", "buttons", len(w.buttons), "interval", w.interval.String())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Poll(); err != nil {
				if w.failures%errorLogEvery == 0 {
					w.log.Warn("gpio read failed", "error", err, "failures", w.failures+1)
				}
				w.failures++
				continue
			}
			w.failures = 0
		}
	}
}
