// Package groups persists groups and their member sets.
//
// Member-set changes are single statements against the unique
// (user_id, group_id) index rather than read-modify-write of a list,
// so concurrent joins and leaves cannot lose each other's updates.
package groups

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mikepea/clubhouse/pkg/clubhouse/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxCodeAttempts bounds the invite code collision-retry loop.
const maxCodeAttempts = 16

var (
	ErrGroupNotFound      = errors.New("group not found")
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique invite code")
)

// Repository is the group repository.
type Repository struct {
	db    *gorm.DB
	codes CodeGenerator
}

// NewRepository creates a repository. A nil codes generator uses
// RandomCodes(DefaultCodeLength).
func NewRepository(db *gorm.DB, codes CodeGenerator) *Repository {
	if codes == nil {
		codes = RandomCodes(DefaultCodeLength)
	}
	return &Repository{db: db, codes: codes}
}

// WithDB returns a copy of the repository bound to db, typically a
// transaction handle.
func (r *Repository) WithDB(db *gorm.DB) *Repository {
	return &Repository{db: db, codes: r.codes}
}

// Create stores a new group with adminID as admin and sole member.
// Invite code collisions are retried with a fresh code.
func (r *Repository) Create(ctx context.Context, name, description string, adminID uint) (*models.Group, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := r.codes()
		if err != nil {
			return nil, fmt.Errorf("generate invite code: %w", err)
		}

		taken, err := r.codeTaken(ctx, code)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}

		group := models.Group{
			Name:        name,
			Description: description,
			Code:        code,
			AdminID:     adminID,
		}
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&group).Error; err != nil {
				return err
			}
			return tx.Create(&models.GroupMembership{
				UserID:  adminID,
				GroupID: group.ID,
				Role:    models.GroupRoleAdmin,
			}).Error
		})
		if err == nil {
			return &group, nil
		}

		// Another group claimed the code between the check and the insert
		if taken, lookupErr := r.codeTaken(ctx, code); lookupErr == nil && taken {
			continue
		}
		return nil, fmt.Errorf("create group: %w", err)
	}
	return nil, ErrCodeSpaceExhausted
}

// FindByCode returns the group with the given invite code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find group by code: %w", err)
	}
	return &group, nil
}

// FindByID returns the group with the given id.
func (r *Repository) FindByID(ctx context.Context, id uint) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).First(&group, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find group %d: %w", id, err)
	}
	return &group, nil
}

// FindAllContainingMember returns every group userID belongs to, oldest first.
func (r *Repository) FindAllContainingMember(ctx context.Context, userID uint) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.WithContext(ctx).
		Joins("JOIN group_memberships ON group_memberships.group_id = groups.id").
		Where("group_memberships.user_id = ?", userID).
		Order("groups.id").
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("list groups for user %d: %w", userID, err)
	}
	return groups, nil
}

// Membership returns the role of userID in groupID and whether they are a member.
func (r *Repository) Membership(ctx context.Context, groupID, userID uint) (models.GroupRole, bool, error) {
	var membership models.GroupMembership
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find membership: %w", err)
	}
	return membership.Role, true, nil
}

// Members returns the memberships of a group with users loaded, admin first.
func (r *Repository) Members(ctx context.Context, groupID uint) ([]models.GroupMembership, error) {
	var memberships []models.GroupMembership
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("group_id = ?", groupID).
		Order("id").
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("list members of group %d: %w", groupID, err)
	}
	sort.SliceStable(memberships, func(i, j int) bool {
		return memberships[i].Role == models.GroupRoleAdmin && memberships[j].Role != models.GroupRoleAdmin
	})
	return memberships, nil
}

// MemberCount returns the size of the group's member set.
func (r *Repository) MemberCount(ctx context.Context, groupID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GroupMembership{}).
		Where("group_id = ?", groupID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

// CountMemberships returns how many groups userID belongs to.
func (r *Repository) CountMemberships(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GroupMembership{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count memberships: %w", err)
	}
	return count, nil
}

// AddMember inserts userID into the group's member set. It reports false
// when the user was already a member.
func (r *Repository) AddMember(ctx context.Context, groupID, userID uint) (bool, error) {
	membership := models.GroupMembership{
		UserID:  userID,
		GroupID: groupID,
		Role:    models.GroupRoleMember,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&membership)
	if result.Error != nil {
		return false, fmt.Errorf("add member: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// RemoveMember deletes userID from the group's member set. The admin
// membership is never removed. It reports false when nothing was deleted.
func (r *Repository) RemoveMember(ctx context.Context, groupID, userID uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND role <> ?", groupID, userID, models.GroupRoleAdmin).
		Delete(&models.GroupMembership{})
	if result.Error != nil {
		return false, fmt.Errorf("remove member: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Delete removes a group and its member set.
func (r *Repository) Delete(ctx context.Context, groupID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMembership{}).Error; err != nil {
			return fmt.Errorf("delete memberships: %w", err)
		}
		result := tx.Delete(&models.Group{}, groupID)
		if result.Error != nil {
			return fmt.Errorf("delete group: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrGroupNotFound
		}
		return nil
	})
}

func (r *Repository) codeTaken(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Group{}).Where("code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check invite code: %w", err)
	}
	return count > 0, nil
}
