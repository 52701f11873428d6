package sniffer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrel-systems/sniper/infrastructure/logging"
)

// SupervisorState is one state in the sniffer's lifecycle.
type SupervisorState string

const (
	StateStopped  SupervisorState = "stopped"
	StateStarting SupervisorState = "starting"
	StateRunning  SupervisorState = "running"
	StatePaused   SupervisorState = "paused"
	StateStopping SupervisorState = "stopping"
	StateError    SupervisorState = "error"
)

// Worker is one supervised task. Critical workers take the whole
// supervisor to Error on failure; non-critical failures are only
// logged.
type Worker struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context) error
}

// Supervisor owns the sniffer's worker tasks (receive loop, analytics
// updater, threshold updater, telemetry exporter) and their lifecycle.
type Supervisor struct {
	log *logging.Logger

	mu      sync.Mutex
	state   SupervisorState
	workers []Worker

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor builds an idle Supervisor.
func NewSupervisor(log *logging.Logger) *Supervisor {
	if log == nil {
		log = logging.New("sniffer.supervisor", "info", "json")
	}
	return &Supervisor{log: log, state: StateStopped}
}

// Register adds a worker. Only valid while Stopped.
func (s *Supervisor) Register(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, w)
}

// State returns the current lifecycle state.
func (s *Supervisor) State() SupervisorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st SupervisorState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start launches every registered worker under a shared cancellable
// context. A critical worker's error cancels the group (and
// transitions to Error); a non-critical worker's error is logged and
// the rest keep running.
func (s *Supervisor) Start(ctx context.Context) {
	s.setState(StateStarting)

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	workers := append([]Worker(nil), s.workers...)
	s.mu.Unlock()

	done := make(chan struct{})
	s.done = done

	g, gctx := errgroup.WithContext(runCtx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			err := w.Run(gctx)
			if err != nil && gctx.Err() == nil {
				s.log.WithFields(map[string]interface{}{
					"worker":   w.Name,
					"critical": w.Critical,
				}).WithError(err).Error("sniffer worker exited")
				if w.Critical {
					s.setState(StateError)
					return err
				}
			}
			return nil
		})
	}

	s.setState(StateRunning)

	go func() {
		_ = g.Wait()
		s.mu.Lock()
		if s.state != StateError {
			s.state = StateStopped
		}
		s.mu.Unlock()
		close(done)
	}()
}

// Pause marks the supervisor Paused. Workers observe pause via their
// own polling of State() where applicable; this is advisory bookkeeping,
// not a hard suspend, matching the cooperative scheduling model.
func (s *Supervisor) Pause() {
	s.mu.Lock()
	if s.state == StateRunning {
		s.state = StatePaused
	}
	s.mu.Unlock()
}

// Resume returns from Paused to Running.
func (s *Supervisor) Resume() {
	s.mu.Lock()
	if s.state == StatePaused {
		s.state = StateRunning
	}
	s.mu.Unlock()
}

// Stop signals all workers and waits up to timeout for a clean exit.
func (s *Supervisor) Stop(timeout time.Duration) {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.state = StateStopping
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
		s.log.WithFields(nil).Warn("sniffer supervisor stop timed out, workers aborted")
	}
}
