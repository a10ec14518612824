package services

import (
	"context"
)

// StartStopper matches *scheduler.Scheduler.
type StartStopper interface {
	Start(ctx context.Context)
	Stop()
}

// SchedulerService runs a scheduler under supervision. Stop waits for
// in-flight sync passes.
type SchedulerService struct {
	scheduler StartStopper
	// OnStart runs once the scheduler is running, e.g. to trigger the
	// initial sync passes.
	OnStart func()
}

// NewSchedulerService creates a scheduler service wrapper.
func NewSchedulerService(s StartStopper) *SchedulerService {
	return &SchedulerService{scheduler: s}
}

// Serve implements suture.Service.
func (s *SchedulerService) Serve(ctx context.Context) error {
	s.scheduler.Start(ctx)
	if s.OnStart != nil {
		s.OnStart()
	}
	<-ctx.Done()
	s.scheduler.Stop()
	return ctx.Err()
}

func (s *SchedulerService) String() string {
	return "sync-scheduler"
}
