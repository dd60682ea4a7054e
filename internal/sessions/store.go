// Package sessions persists the mapping from Slack threads to Langflow
// session tokens, giving each thread a continuous conversation.
package sessions

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// Store manages ThreadSession rows. All methods are safe for concurrent use;
// same-key creation races are resolved by the unique index on the thread key,
// with the loser re-reading the winner's row.
type Store struct {
	db *gorm.DB

	// now is the clock, overridable in tests.
	now func() time.Time

	// beforeCreate runs between a lookup miss and the insert; tests use it
	// to interleave a competing writer.
	beforeCreate func()
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sessions: store: db is required")
	}
	return &Store{db: db, now: time.Now}, nil
}

// ThreadKey builds the composite session key for a channel and thread root.
func ThreadKey(channelID, threadTS string) string {
	return channelID + ":" + threadTS
}

// GetOrCreate returns the session for a thread, creating it on first use.
// An existing session keeps its flow binding; proposedFlow only applies to
// newly created sessions. The bool result is true when a new session was
// created. A lookup hit refreshes LastActivity.
func (s *Store) GetOrCreate(channelID, threadTS, proposedFlow string) (*models.ThreadSession, bool, error) {
	key := ThreadKey(channelID, threadTS)

	existing, err := s.lookup(key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := s.now()
	session := models.ThreadSession{
		ThreadKey:    key,
		Token:        uuid.NewString(),
		FlowName:     proposedFlow,
		CreatedAt:    now,
		LastActivity: now,
	}
	if s.beforeCreate != nil {
		s.beforeCreate()
	}
	err = s.db.Create(&session).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Another event task created the session first; use its row.
		winner, lerr := s.lookup(key)
		if lerr != nil {
			return nil, false, lerr
		}
		if winner == nil {
			return nil, false, fmt.Errorf("sessions: duplicate create for %s but no row found", key)
		}
		return winner, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sessions: create %s: %w", key, err)
	}

	log.Printf("sessions: created %s for thread %s (flow=%q)", session.Token, key, proposedFlow)
	return &session, true, nil
}

// lookup fetches a session by key and refreshes its LastActivity.
func (s *Store) lookup(key string) (*models.ThreadSession, error) {
	var session models.ThreadSession
	result := s.db.Where("thread_key = ?", key).First(&session)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("sessions: lookup %s: %w", key, result.Error)
	}

	session.LastActivity = s.now()
	if err := s.db.Model(&models.ThreadSession{}).
		Where("thread_key = ?", key).
		Update("last_activity", session.LastActivity).Error; err != nil {
		return nil, fmt.Errorf("sessions: refresh %s: %w", key, err)
	}
	return &session, nil
}

// Cleanup deletes sessions whose LastActivity is older than ttl and returns
// the number removed.
func (s *Store) Cleanup(ttl time.Duration) (int64, error) {
	cutoff := s.now().Add(-ttl)
	result := s.db.Where("last_activity < ?", cutoff).Delete(&models.ThreadSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("sessions: cleanup: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		log.Printf("sessions: cleaned up %d stale sessions", result.RowsAffected)
	}
	return result.RowsAffected, nil
}

// Stats summarizes the session table.
type Stats struct {
	Total          int64            `json:"total"`
	ActiveLastHour int64            `json:"active_last_hour"`
	OldestCreated  *time.Time       `json:"oldest_created,omitempty"`
	NewestActivity *time.Time       `json:"newest_activity,omitempty"`
	PerFlow        map[string]int64 `json:"per_flow"`
}

// Stats returns aggregate counts over stored sessions.
func (s *Store) Stats() (Stats, error) {
	stats := Stats{PerFlow: map[string]int64{}}

	if err := s.db.Model(&models.ThreadSession{}).Count(&stats.Total).Error; err != nil {
		return stats, fmt.Errorf("sessions: stats total: %w", err)
	}

	hourAgo := s.now().Add(-time.Hour)
	if err := s.db.Model(&models.ThreadSession{}).
		Where("last_activity > ?", hourAgo).
		Count(&stats.ActiveLastHour).Error; err != nil {
		return stats, fmt.Errorf("sessions: stats active: %w", err)
	}

	if stats.Total > 0 {
		var bounds struct {
			Oldest time.Time
			Newest time.Time
		}
		if err := s.db.Model(&models.ThreadSession{}).
			Select("MIN(created_at) AS oldest, MAX(last_activity) AS newest").
			Scan(&bounds).Error; err != nil {
			return stats, fmt.Errorf("sessions: stats bounds: %w", err)
		}
		stats.OldestCreated = &bounds.Oldest
		stats.NewestActivity = &bounds.Newest
	}

	rows := []struct {
		FlowName string
		N        int64
	}{}
	if err := s.db.Model(&models.ThreadSession{}).
		Select("flow_name, COUNT(*) AS n").
		Group("flow_name").
		Scan(&rows).Error; err != nil {
		return stats, fmt.Errorf("sessions: stats per flow: %w", err)
	}
	for _, row := range rows {
		stats.PerFlow[row.FlowName] = row.N
	}

	return stats, nil
}
