// Package credentials persists user identities and verifies passwords.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mikepea/clubhouse/pkg/clubhouse/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrDuplicateIdentifier = errors.New("username already exists")
	ErrInvalidCredentials  = errors.New("incorrect username or password")
	ErrMissingCredentials  = errors.New("username and password are required")
	ErrUserNotFound        = errors.New("user not found")
	ErrPasswordMismatch    = errors.New("passwords do not match")
	ErrPasswordTooLong     = errors.New("password is too long")
)

// Store is the credential store backed by the users table.
type Store struct {
	db *gorm.DB
}

// NewStore creates a credential store. db may be a transaction handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// NormalizeIdentifier trims and lower-cases an identifier so that
// uniqueness is case-insensitive.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Register creates a user with a hashed password and no group state.
func (s *Store) Register(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = NormalizeIdentifier(identifier)
	if identifier == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	if len(password) > MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}

	taken, err := s.exists(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateIdentifier
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Identifier:   identifier,
		PasswordHash: hash,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		// Lost a race with a concurrent registration of the same identifier
		if taken, lookupErr := s.exists(ctx, identifier); lookupErr == nil && taken {
			return nil, ErrDuplicateIdentifier
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// Verify returns the user for identifier if password matches. Unknown
// identifiers and wrong passwords fail with the same error.
func (s *Store) Verify(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = NormalizeIdentifier(identifier)
	if len(password) > MaxPasswordBytes {
		// No stored password can be this long
		CheckPassword(password[:MaxPasswordBytes], dummyHash())
		return nil, ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("identifier = ?", identifier).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		CheckPassword(password, dummyHash())
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// Lock takes a row lock on the user for the rest of the transaction, so
// membership checks and inserts for one user run one at a time. SQLite has
// no row locks; its single writer serialises these transactions instead.
func (s *Store) Lock(ctx context.Context, id uint) error {
	var user models.User
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

// Get returns the user with the given id.
func (s *Store) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	return &user, nil
}

// SetCurrentGroup points the user's current group at groupID.
func (s *Store) SetCurrentGroup(ctx context.Context, userID, groupID uint) error {
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("current_group_id", groupID).Error
	if err != nil {
		return fmt.Errorf("set current group: %w", err)
	}
	return nil
}

// ClearCurrentGroup clears the user's current group if it points at groupID.
func (s *Store) ClearCurrentGroup(ctx context.Context, userID, groupID uint) error {
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND current_group_id = ?", userID, groupID).
		Update("current_group_id", nil).Error
	if err != nil {
		return fmt.Errorf("clear current group: %w", err)
	}
	return nil
}

// ClearCurrentGroupForAll clears the current group of every user pointing
// at groupID.
func (s *Store) ClearCurrentGroupForAll(ctx context.Context, groupID uint) error {
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("current_group_id = ?", groupID).
		Update("current_group_id", nil).Error
	if err != nil {
		return fmt.Errorf("clear current group for group %d: %w", groupID, err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, identifier string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("identifier = ?", identifier).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check identifier: %w", err)
	}
	return count > 0, nil
}
