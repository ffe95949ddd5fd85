package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/habitual/internal/dates"
	"github.com/dukerupert/habitual/internal/store"
)

const sentRetentionDays = 7

// Scheduler reminds subscribed users who have not logged anything today. Each user
// gets at most one reminder per day, sent once the configured UTC hour has passed.
type Scheduler struct {
	mu           sync.RWMutex
	notifier     Notifier
	push         *store.PushStore
	entries      *store.EntryStore
	reminderHour int
	interval     time.Duration
	now          func() time.Time
	logger       *slog.Logger
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewScheduler(notifier Notifier, pushStore *store.PushStore, entryStore *store.EntryStore, reminderHour int, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		notifier:     notifier,
		push:         pushStore,
		entries:      entryStore,
		reminderHour: reminderHour,
		interval:     interval,
		now:          time.Now,
		logger:       logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick runs one reminder pass and returns how many users were notified.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now().UTC()
	if now.Hour() < s.reminderHour {
		return 0
	}
	today := dates.FormatDB(now)

	userIDs, err := s.push.ListUserIDs()
	if err != nil {
		s.logger.Error("push scheduler: list users", "error", err)
		return 0
	}

	notified := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		if s.remind(ctx, userID, today) {
			notified++
		}
	}

	cutoff := dates.FormatDB(now.AddDate(0, 0, -sentRetentionDays))
	if err := s.push.CleanupSent(cutoff); err != nil {
		s.logger.Warn("push scheduler: cleanup sent", "error", err)
	}
	return notified
}

func (s *Scheduler) remind(ctx context.Context, userID, today string) bool {
	sent, err := s.push.WasSent(userID, today)
	if err != nil {
		s.logger.Error("push scheduler: check sent", "user_id", userID, "error", err)
		return false
	}
	if sent {
		return false
	}

	logged, err := s.entries.HasAnyOn(userID, today)
	if err != nil {
		s.logger.Error("push scheduler: check entries", "user_id", userID, "error", err)
		return false
	}
	if logged {
		return false
	}

	subs, err := s.push.ListByUser(userID)
	if err != nil {
		s.logger.Error("push scheduler: list subs", "user_id", userID, "error", err)
		return false
	}
	if len(subs) == 0 {
		return false
	}

	payload := Payload{
		Title: "Habitual",
		Body:  "You haven't logged any habits today.",
		URL:   "/",
		Tag:   "daily-reminder",
	}

	delivered := false
	for i := range subs {
		if err := s.notifier.Send(ctx, &subs[i], payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := s.push.DeleteByEndpoint(subs[i].Endpoint); err != nil {
					s.logger.Warn("push scheduler: delete expired", "error", err)
				}
			} else {
				s.logger.Warn("push scheduler: send reminder", "user_id", userID, "error", err)
			}
			continue
		}
		delivered = true
	}

	if err := s.push.RecordSent(userID, today); err != nil {
		s.logger.Error("push scheduler: record sent", "user_id", userID, "error", err)
	}
	return delivered
}
