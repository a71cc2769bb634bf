package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mikepea/clubhouse/pkg/clubhouse/models"
	"gorm.io/gorm"
)

// DBStore keeps sessions in the sessions table.
type DBStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

var (
	_ Store  = (*DBStore)(nil)
	_ Purger = (*DBStore)(nil)
)

// NewDBStore creates a database-backed session store.
func NewDBStore(db *gorm.DB, ttl time.Duration) *DBStore {
	return &DBStore{db: db, ttl: ttl, now: time.Now}
}

func (s *DBStore) Create(ctx context.Context, userID uint) (*Session, error) {
	sess := newSession(userID, s.now(), s.ttl)
	record := models.Session{
		ID:        sess.ID,
		UserID:    sess.UserID,
		ExpiresAt: sess.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *DBStore) Get(ctx context.Context, id string) (*Session, error) {
	var record models.Session
	err := s.db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", id, s.now()).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess := &Session{
		ID:        record.ID,
		UserID:    record.UserID,
		ExpiresAt: record.ExpiresAt,
	}
	if record.Flashes != "" {
		if err := json.Unmarshal([]byte(record.Flashes), &sess.Flashes); err != nil {
			return nil, fmt.Errorf("decode flashes: %w", err)
		}
	}
	return sess, nil
}

func (s *DBStore) Save(ctx context.Context, sess *Session) error {
	flashes := ""
	if len(sess.Flashes) > 0 {
		data, err := json.Marshal(sess.Flashes)
		if err != nil {
			return fmt.Errorf("encode flashes: %w", err)
		}
		flashes = string(data)
	}
	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", sess.ID).
		Update("flashes", flashes)
	if result.Error != nil {
		return fmt.Errorf("save session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DBStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired deletes every expired session and returns how many were removed.
func (s *DBStore) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
