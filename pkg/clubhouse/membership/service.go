// Package membership implements group membership rules: creating,
// joining by invite code, leaving, deleting, and tracking each user's
// current group.
//
// Every mutation runs in one database transaction covering both the
// member set and users.current_group_id, so the two never disagree.
// The admin of a group can never leave it; deletion is the only way to
// tear a group down, which keeps the admin in the member set forever.
package membership

import (
	"context"
	"errors"
	"strings"

	"github.com/mikepea/clubhouse/pkg/clubhouse/credentials"
	"github.com/mikepea/clubhouse/pkg/clubhouse/groups"
	"github.com/mikepea/clubhouse/pkg/clubhouse/models"
	"gorm.io/gorm"
)

// Operation names reported to the Observer.
const (
	OpCreateGroup     = "create_group"
	OpJoinByCode      = "join_by_code"
	OpLeave           = "leave"
	OpDelete          = "delete"
	OpSetCurrentGroup = "set_current_group"
)

// Policy selects between the permissive and restrictive membership rules.
type Policy struct {
	// SingleGroup restricts every user to at most one group at a time.
	SingleGroup bool
}

// Observer is notified after every mutating operation.
type Observer interface {
	Observe(op string, err error)
}

// Option configures a Service.
type Option func(*Service)

// WithObserver registers an observer for operation outcomes.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// Service is the membership service.
type Service struct {
	db       *gorm.DB
	groups   *groups.Repository
	policy   Policy
	observer Observer
}

// NewService creates a membership service.
func NewService(db *gorm.DB, repo *groups.Repository, policy Policy, opts ...Option) *Service {
	s := &Service{db: db, groups: repo, policy: policy}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type txStores struct {
	groups *groups.Repository
	users  *credentials.Store
}

func (s *Service) inTx(ctx context.Context, fn func(st txStores) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(txStores{groups: s.groups.WithDB(tx), users: credentials.NewStore(tx)})
	})
}

// checkSingleGroup enforces the restrictive policy. The user row is locked
// first so two concurrent creates or joins by one user cannot both see an
// empty membership list.
func (s *Service) checkSingleGroup(ctx context.Context, st txStores, userID uint) error {
	if !s.policy.SingleGroup {
		return nil
	}
	if err := st.users.Lock(ctx, userID); err != nil {
		return err
	}
	count, err := st.groups.CountMemberships(ctx, userID)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrAlreadyInGroup
	}
	return nil
}

func (s *Service) observe(op string, err error) {
	if s.observer != nil {
		s.observer.Observe(op, err)
	}
}

// CreateGroup creates a group with userID as admin and makes it the
// user's current group.
func (s *Service) CreateGroup(ctx context.Context, userID uint, name, description string) (group *models.Group, err error) {
	defer func() { s.observe(OpCreateGroup, err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrGroupNameRequired
	}

	err = s.inTx(ctx, func(st txStores) error {
		if err := s.checkSingleGroup(ctx, st, userID); err != nil {
			return err
		}

		created, err := st.groups.Create(ctx, name, strings.TrimSpace(description), userID)
		if err != nil {
			return err
		}
		if err := st.users.SetCurrentGroup(ctx, userID, created.ID); err != nil {
			return err
		}
		group = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// JoinByCode adds userID to the group with the given invite code and
// makes it the user's current group.
func (s *Service) JoinByCode(ctx context.Context, userID uint, code string) (group *models.Group, err error) {
	defer func() { s.observe(OpJoinByCode, err) }()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	err = s.inTx(ctx, func(st txStores) error {
		found, err := st.groups.FindByCode(ctx, code)
		if errors.Is(err, groups.ErrGroupNotFound) {
			return ErrInvalidCode
		}
		if err != nil {
			return err
		}

		if _, member, err := st.groups.Membership(ctx, found.ID, userID); err != nil {
			return err
		} else if member {
			return ErrAlreadyMember
		}

		if err := s.checkSingleGroup(ctx, st, userID); err != nil {
			return err
		}

		added, err := st.groups.AddMember(ctx, found.ID, userID)
		if err != nil {
			return err
		}
		if !added {
			return ErrAlreadyMember
		}
		if err := st.users.SetCurrentGroup(ctx, userID, found.ID); err != nil {
			return err
		}
		group = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// Leave removes userID from a group. The admin cannot leave; if the
// group was the user's current group, the pointer is cleared.
func (s *Service) Leave(ctx context.Context, userID, groupID uint) (group *models.Group, err error) {
	defer func() { s.observe(OpLeave, err) }()

	err = s.inTx(ctx, func(st txStores) error {
		found, err := st.groups.FindByID(ctx, groupID)
		if errors.Is(err, groups.ErrGroupNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		role, member, err := st.groups.Membership(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if !member {
			return ErrNotAMember
		}
		if role == models.GroupRoleAdmin || found.AdminID == userID {
			return ErrAdminCannotLeave
		}

		removed, err := st.groups.RemoveMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if !removed {
			return ErrNotAMember
		}
		if err := st.users.ClearCurrentGroup(ctx, userID, groupID); err != nil {
			return err
		}
		group = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// Delete removes a group on behalf of its admin and clears the current
// group of every user that pointed at it.
func (s *Service) Delete(ctx context.Context, requesterID, groupID uint) (group *models.Group, err error) {
	defer func() { s.observe(OpDelete, err) }()

	err = s.inTx(ctx, func(st txStores) error {
		found, err := st.groups.FindByID(ctx, groupID)
		if errors.Is(err, groups.ErrGroupNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if found.AdminID != requesterID {
			return ErrNotAdmin
		}

		if err := st.users.ClearCurrentGroupForAll(ctx, groupID); err != nil {
			return err
		}
		if err := st.groups.Delete(ctx, groupID); err != nil {
			if errors.Is(err, groups.ErrGroupNotFound) {
				return ErrNotFound
			}
			return err
		}
		group = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// SetCurrentGroup makes groupID the user's current group.
func (s *Service) SetCurrentGroup(ctx context.Context, userID, groupID uint) (group *models.Group, err error) {
	defer func() { s.observe(OpSetCurrentGroup, err) }()

	err = s.inTx(ctx, func(st txStores) error {
		found, err := st.groups.FindByID(ctx, groupID)
		if errors.Is(err, groups.ErrGroupNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, member, err := st.groups.Membership(ctx, groupID, userID); err != nil {
			return err
		} else if !member {
			return ErrNotAMember
		}

		if err := st.users.SetCurrentGroup(ctx, userID, groupID); err != nil {
			return err
		}
		group = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}
