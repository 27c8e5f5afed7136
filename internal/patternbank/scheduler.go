package patternbank

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MaintenanceScheduler runs the engine's batch jobs (decay sweep,
// correlation analysis, preference learning, calibration, retention
// cleanup) periodically in the background for configured projects.
//
// The entry points on Service remain callable directly, so deployments
// with an external scheduler (cron, a workflow engine) can skip this and
// drive them directly.
//
// Thread safety: all public methods are safe for concurrent use. The
// running state is protected by a mutex to prevent races during
// Start/Stop.
type MaintenanceScheduler struct {
	interval   time.Duration
	service    *Service
	projectIDs []string
	jobTimeout time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	logger *zap.Logger
}

// MaintenanceOption configures a MaintenanceScheduler.
type MaintenanceOption func(*MaintenanceScheduler)

// WithMaintenanceInterval sets the time between maintenance runs.
// Defaults to 24 hours.
func WithMaintenanceInterval(interval time.Duration) MaintenanceOption {
	return func(s *MaintenanceScheduler) {
		s.interval = interval
	}
}

// WithMaintenanceProjects sets the projects maintained on each run.
// Without projects the scheduler ticks but does nothing.
func WithMaintenanceProjects(projectIDs []string) MaintenanceOption {
	return func(s *MaintenanceScheduler) {
		s.projectIDs = projectIDs
	}
}

// WithJobTimeout sets the hard time budget for one full maintenance run.
// Defaults to 10 minutes; jobs past the budget exit with partial results.
func WithJobTimeout(timeout time.Duration) MaintenanceOption {
	return func(s *MaintenanceScheduler) {
		s.jobTimeout = timeout
	}
}

// NewMaintenanceScheduler creates a maintenance scheduler. It does not
// start automatically; call Start.
func NewMaintenanceScheduler(service *Service, logger *zap.Logger, opts ...MaintenanceOption) (*MaintenanceScheduler, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &MaintenanceScheduler{
		service:    service,
		logger:     logger,
		interval:   24 * time.Hour,
		jobTimeout: 10 * time.Minute,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins the background maintenance loop. Calling Start on a running
// scheduler returns an error without starting a second goroutine.
func (s *MaintenanceScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.stopCh = make(chan struct{})
	s.running = true

	s.logger.Info("maintenance scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("projects", len(s.projectIDs)))

	go s.run()
	return nil
}

// Stop signals the background loop to stop. Stopping an already stopped
// scheduler is a no-op.
func (s *MaintenanceScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Debug("scheduler stop called but not running")
		return nil
	}
	s.logger.Info("stopping maintenance scheduler")
	s.running = false
	close(s.stopCh)
	return nil
}

// run is the scheduler loop. Each run is independent; errors are logged
// and never stop the scheduler.
func (s *MaintenanceScheduler) run() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler goroutine panicked, recovering",
				zap.Any("panic", r),
				zap.Stack("stack"))
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRunMaintenance()
		case <-s.stopCh:
			s.logger.Debug("scheduler received stop signal")
			return
		}
	}
}

// safeRunMaintenance wraps one run with panic recovery so a single bad run
// never crashes the scheduler.
func (s *MaintenanceScheduler) safeRunMaintenance() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("maintenance run panicked, continuing scheduler",
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	s.runMaintenance()
}

// runMaintenance executes one maintenance pass over all configured
// projects within the job timeout.
func (s *MaintenanceScheduler) runMaintenance() {
	if len(s.projectIDs) == 0 {
		s.logger.Debug("no projects configured for maintenance, skipping")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	for _, projectID := range s.projectIDs {
		log := s.logger.With(zap.String("project_id", projectID))

		if decayed, err := s.service.RunDecaySweep(ctx, projectID); err != nil {
			log.Error("decay sweep failed", zap.Error(err))
		} else {
			log.Debug("decay sweep done", zap.Int("decayed", decayed))
		}

		if correlations, err := s.service.RunCorrelationAnalysis(ctx, projectID, 0); err != nil {
			log.Error("correlation analysis failed", zap.Error(err))
		} else {
			log.Debug("correlation analysis done", zap.Int("correlations", len(correlations)))
		}

		if profile, err := s.service.RunPreferenceLearning(ctx, projectID, ""); err != nil {
			log.Error("preference learning failed", zap.Error(err))
		} else {
			log.Debug("preference learning done", zap.Int("samples", profile.SampleCount))
		}

		if report, err := s.service.RunCalibration(ctx, projectID, 0); err != nil {
			log.Error("calibration failed", zap.Error(err))
		} else if len(report.Recommendations) > 0 {
			log.Warn("calibration needs attention",
				zap.Float64("reliability", report.Reliability),
				zap.Float64("sharpness", report.Sharpness),
				zap.Float64("accuracy", report.Accuracy),
				zap.Strings("recommendations", report.Recommendations))
		}

		if removed, err := s.service.RunRetentionCleanup(ctx, projectID); err != nil {
			log.Error("retention cleanup failed", zap.Error(err))
		} else if removed > 0 {
			log.Info("retention cleanup done", zap.Int("removed", removed))
		}
	}
}
