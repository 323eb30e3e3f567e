package session

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler submits recurring prompts to sessions on cron schedules, for
// workflows like periodic re-scans. Scheduled prompts queue behind
// interactive ones on the session's lane like any other submission.
type Scheduler struct {
	cron    *cron.Cron
	manager *Manager
}

// NewScheduler creates a stopped scheduler over the manager.
func NewScheduler(manager *Manager) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		manager: manager,
	}
}

// Add schedules a prompt for a session using a standard 5-field cron
// expression. The session is looked up at fire time, so a closed session
// simply skips its remaining firings.
func (s *Scheduler) Add(spec, sessionID, prompt string) (cron.EntryID, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("session id cannot be empty")
	}
	if prompt == "" {
		return 0, fmt.Errorf("prompt cannot be empty")
	}

	id, err := s.cron.AddFunc(spec, func() {
		outcome, err := s.manager.Submit(context.Background(), sessionID, prompt)
		if err != nil {
			log.Warn().
				Str("session_id", sessionID).
				Err(err).
				Msg("Scheduled prompt skipped")
			return
		}
		log.Info().
			Str("session_id", sessionID).
			Str("state", string(outcome.State)).
			Msg("Scheduled prompt completed")
	})
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	log.Info().
		Str("session_id", sessionID).
		Str("spec", spec).
		Msg("Recurring prompt scheduled")
	return id, nil
}

// Remove drops a scheduled prompt.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Start begins firing schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling. Running submissions finish on their lanes.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
