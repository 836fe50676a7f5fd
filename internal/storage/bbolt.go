package storage

import (
	"fmt"
	"time"

	"conversa/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketSessions = []byte("sessions")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertSession stores a session under the hash of its browser token.
func (s *BboltStorage) UpsertSession(tokenHash string, session models.Session) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		dbSession := &DBSession{
			TokenHash:    tokenHash,
			SessionID:    session.ID,
			UserID:       session.User.ID,
			Email:        session.User.Email,
			DisplayName:  session.User.DisplayName,
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			ExpiresAt:    session.ExpiresAt.Unix(),
			CreatedAt:    session.CreatedAt.Unix(),
		}
		data, err := dbSession.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		return b.Put(dbSession.Key(), data)
	})
}

func (s *BboltStorage) DeleteSession(tokenHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(tokenHash))
	})
}

// DeleteUserSessions removes every session of a user and returns the
// token hashes that were removed.
func (s *BboltStorage) DeleteUserSessions(userID string) ([]string, error) {
	var removed []string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var dbSession DBSession
			if err := dbSession.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("corrupt session %x: %w", k, err)
			}
			if dbSession.UserID == userID {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		// Deleting inside ForEach is not allowed.
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed = append(removed, string(k))
		}
		return nil
	})
	return removed, err
}

// ListSessions returns all stored sessions keyed by token hash.
func (s *BboltStorage) ListSessions() (map[string]models.Session, error) {
	sessions := make(map[string]models.Session)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		return b.ForEach(func(k, v []byte) error {
			var dbSession DBSession
			if err := dbSession.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("corrupt session %x: %w", k, err)
			}
			sessions[dbSession.TokenHash] = models.Session{
				ID: dbSession.SessionID,
				User: models.Identity{
					ID:          dbSession.UserID,
					Email:       dbSession.Email,
					DisplayName: dbSession.DisplayName,
				},
				AccessToken:  dbSession.AccessToken,
				RefreshToken: dbSession.RefreshToken,
				ExpiresAt:    time.Unix(dbSession.ExpiresAt, 0),
				CreatedAt:    time.Unix(dbSession.CreatedAt, 0),
			}
			return nil
		})
	})
	return sessions, err
}
