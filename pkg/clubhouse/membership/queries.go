package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikepea/clubhouse/pkg/clubhouse/credentials"
	"github.com/mikepea/clubhouse/pkg/clubhouse/groups"
	"github.com/mikepea/clubhouse/pkg/clubhouse/models"
)

// GroupSummary is one row of a user's group list.
type GroupSummary struct {
	Group       models.Group
	Role        models.GroupRole
	MemberCount int64
	IsCurrent   bool
}

// Overview is everything the dashboard and profile pages show.
type Overview struct {
	User         models.User
	CurrentGroup *models.Group
	Groups       []GroupSummary
}

// Member is one entry of a group's member list.
type Member struct {
	UserID     uint
	Identifier string
	Role       models.GroupRole
}

// Detail describes a group as seen by one of its members.
type Detail struct {
	Group     models.Group
	Role      models.GroupRole
	IsCurrent bool
	Members   []Member
}

// IsAdmin reports whether the viewer administers the group.
func (d *Detail) IsAdmin() bool {
	return d.Role == models.GroupRoleAdmin
}

// Overview returns the user, their current group and every group they belong to.
func (s *Service) Overview(ctx context.Context, userID uint) (*Overview, error) {
	user, err := credentials.NewStore(s.db).Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	list, err := s.groups.FindAllContainingMember(ctx, userID)
	if err != nil {
		return nil, err
	}

	overview := &Overview{User: *user, Groups: make([]GroupSummary, 0, len(list))}
	for _, g := range list {
		count, err := s.groups.MemberCount(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		summary := GroupSummary{
			Group:       g,
			Role:        models.GroupRoleMember,
			MemberCount: count,
		}
		if g.AdminID == userID {
			summary.Role = models.GroupRoleAdmin
		}
		if user.CurrentGroupID != nil && *user.CurrentGroupID == g.ID {
			summary.IsCurrent = true
			current := g
			overview.CurrentGroup = &current
		}
		overview.Groups = append(overview.Groups, summary)
	}
	return overview, nil
}

// GroupDetail returns a group and its member list. Only members may view it.
func (s *Service) GroupDetail(ctx context.Context, userID, groupID uint) (*Detail, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if errors.Is(err, groups.ErrGroupNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	role, member, err := s.groups.Membership(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotAMember
	}

	memberships, err := s.groups.Members(ctx, groupID)
	if err != nil {
		return nil, err
	}

	user, err := credentials.NewStore(s.db).Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load viewer: %w", err)
	}

	detail := &Detail{
		Group:     *group,
		Role:      role,
		IsCurrent: user.CurrentGroupID != nil && *user.CurrentGroupID == groupID,
		Members:   make([]Member, len(memberships)),
	}
	for i, m := range memberships {
		detail.Members[i] = Member{
			UserID:     m.UserID,
			Identifier: m.User.Identifier,
			Role:       m.Role,
		}
	}
	return detail, nil
}
