// Package sweeper runs the background retry loop for skipped and failed
// transfers. It is opt-in: without SWEEP_ENABLED=true the application never
// schedules it and every retry stays user driven.
package sweeper

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/MarcReynaud/MissionPay/internal/pkg/payments"
)

const (
	defaultSchedule  = "@every 15m"
	defaultBatchSize = 50
)

// Sweeper periodically re-drives retryable transfers whose recipients have
// completed payout onboarding since the original attempt.
type Sweeper struct {
	service  *payments.Service
	cron     *cron.Cron
	schedule string
	batch    int
}

// Enabled reports whether the sweep job should be scheduled at all.
func Enabled() bool {
	v, err := strconv.ParseBool(os.Getenv("SWEEP_ENABLED"))
	return err == nil && v
}

// New builds a sweeper from the environment. Schedule and batch size come
// from SWEEP_SCHEDULE and SWEEP_BATCH_SIZE with conservative defaults.
func New(service *payments.Service) *Sweeper {
	schedule := os.Getenv("SWEEP_SCHEDULE")
	if schedule == "" {
		schedule = defaultSchedule
	}
	batch := defaultBatchSize
	if raw := os.Getenv("SWEEP_BATCH_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			batch = n
		}
	}
	return &Sweeper{
		service:  service,
		cron:     cron.New(),
		schedule: schedule,
		batch:    batch,
	}
}

// Start schedules the sweep job and launches the cron loop.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runOnce); err != nil {
		return err
	}
	s.cron.Start()
	log.Infof("transfer sweeper started (schedule %s, batch %d)", s.schedule, s.batch)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	retried, err := s.service.SweepRetryableTransfers(ctx, s.batch)
	if err != nil {
		log.Errorf("transfer sweep failed: %v", err)
		return
	}
	if retried > 0 {
		log.Infof("transfer sweep re-issued %d transfer(s)", retried)
	}
}
