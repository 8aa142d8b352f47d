package service

import (
	"context"
	"errors"

	"github.com/pulsefeed/pulse/internal/audit"
	"github.com/pulsefeed/pulse/internal/domain"
	"github.com/pulsefeed/pulse/internal/repository"
	"github.com/pulsefeed/pulse/pkg/log"
)

var ErrSlugTaken = errors.New("group slug already taken")

// groupServiceImpl implements GroupService interface.
type groupServiceImpl struct {
	groups repository.GroupRepository
}

// NewGroupService creates a new group service.
func NewGroupService(groups repository.GroupRepository) GroupService {
	return &groupServiceImpl{groups: groups}
}

// CreateGroup creates a new topical group.
func (s *groupServiceImpl) CreateGroup(ctx context.Context, actorID string, req *domain.CreateGroupRequest) (*domain.Group, error) {
	l := log.Ctx(ctx)

	group := &domain.Group{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
	}

	if err := s.groups.Create(ctx, group); err != nil {
		if errors.Is(err, repository.ErrGroupSlugExists) {
			return nil, ErrSlugTaken
		}
		l.Error().Err(err).Str(log.FieldGroupSlug, req.Slug).Msg("failed to create group")
		return nil, err
	}

	audit.LogWithDetail(ctx, audit.ActionGroupCreate, actorID, group.Slug, "group created")
	return group, nil
}

// ListGroups returns every group.
func (s *groupServiceImpl) ListGroups(ctx context.Context) ([]*domain.Group, error) {
	groups, err := s.groups.List(ctx)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list groups")
		return nil, err
	}
	return groups, nil
}

// DeleteGroup removes a group. Its posts survive with the group reference
// cleared.
func (s *groupServiceImpl) DeleteGroup(ctx context.Context, actorID string, groupID uint) error {
	l := log.Ctx(ctx)

	if err := s.groups.Delete(ctx, groupID); err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			return ErrGroupNotFound
		}
		l.Error().Err(err).Msg("failed to delete group")
		return err
	}

	audit.Log(ctx, audit.ActionGroupDelete, actorID, "group deleted")
	return nil
}

var _ GroupService = (*groupServiceImpl)(nil)
