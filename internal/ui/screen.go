package ui

import (
	"context"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/predictpool-client/internal/countdown"
)

const clearScreen = "\033[H\033[2J"

// Screen redraws the view on a fixed interval.
type Screen struct {
	out      io.Writer
	state    func() State
	window   time.Duration
	interval time.Duration
	clock    clockwork.Clock
	clear    bool
	log      *logrus.Entry
}

// NewScreen creates a Screen writing to out. state is called once per
// refresh. When clear is set the terminal is wiped before each frame.
func NewScreen(out io.Writer, state func() State, interval, window time.Duration, clock clockwork.Clock, clear bool) *Screen {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Screen{
		out:      out,
		state:    state,
		window:   window,
		interval: interval,
		clock:    clock,
		clear:    clear,
		log:      logrus.WithField("component", "ui"),
	}
}

// Run redraws until ctx is cancelled.
func (s *Screen) Run(ctx context.Context) error {
	return countdown.RunEvery(ctx, s.clock, s.interval, func(now time.Time) {
		if err := s.Draw(now); err != nil {
			s.log.WithError(err).Debug("Failed to draw frame")
		}
	})
}

// Draw renders a single frame for now.
func (s *Screen) Draw(now time.Time) error {
	st := s.state()
	st.Tick(now, s.window)
	if s.clear {
		if _, err := io.WriteString(s.out, clearScreen); err != nil {
			return err
		}
	}
	return Render(s.out, st)
}
