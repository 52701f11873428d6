package sniffer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSupervisor_StartTransitionsToRunning(t *testing.T) {
	s := NewSupervisor(nil)
	s.Register(Worker{
		Name:     "noop",
		Critical: false,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
	})

	s.Start(context.Background())
	require.Eventually(t, func() bool { return s.State() == StateRunning }, time.Second, time.Millisecond)

	s.Stop(time.Second)
	require.Eventually(t, func() bool { return s.State() == StateStopped }, time.Second, time.Millisecond)
}

func TestSupervisor_CriticalWorkerFailureTransitionsToError(t *testing.T) {
	s := NewSupervisor(nil)
	s.Register(Worker{
		Name:     "critical",
		Critical: true,
		Run: func(ctx context.Context) error {
			return errors.New("boom")
		},
	})

	s.Start(context.Background())
	require.Eventually(t, func() bool { return s.State() == StateError }, time.Second, time.Millisecond)
}

func TestSupervisor_NonCriticalFailureDoesNotTransitionToError(t *testing.T) {
	s := NewSupervisor(nil)
	failed := make(chan struct{})
	s.Register(Worker{
		Name:     "noncritical",
		Critical: false,
		Run: func(ctx context.Context) error {
			close(failed)
			return errors.New("minor")
		},
	})
	s.Register(Worker{
		Name:     "survivor",
		Critical: false,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
	})

	s.Start(context.Background())
	<-failed
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, StateRunning, s.State())

	s.Stop(time.Second)
}
