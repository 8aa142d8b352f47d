package service

import (
	"context"
	"errors"

	"github.com/pulsefeed/pulse/internal/audit"
	"github.com/pulsefeed/pulse/internal/repository"
	"github.com/pulsefeed/pulse/pkg/log"
)

// followServiceImpl implements FollowService interface.
type followServiceImpl struct {
	users   repository.UserRepository
	follows repository.FollowRepository
}

// NewFollowService creates a new follow service.
func NewFollowService(users repository.UserRepository, follows repository.FollowRepository) FollowService {
	return &followServiceImpl{
		users:   users,
		follows: follows,
	}
}

// Follow subscribes userID to authorUsername's posts. Following yourself
// and following somebody twice are both silent no-ops.
func (s *followServiceImpl) Follow(ctx context.Context, userID, authorUsername string) error {
	l := log.Ctx(ctx)

	author, err := s.users.GetByUsername(ctx, authorUsername)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		l.Error().Err(err).Str(log.FieldAuthor, authorUsername).Msg("failed to get author to follow")
		return err
	}

	if author.ID == userID {
		return nil
	}

	created, err := s.follows.Follow(ctx, userID, author.ID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldAuthor, authorUsername).Msg("failed to create follow edge")
		return err
	}

	if created {
		audit.LogWithDetail(ctx, audit.ActionFollow, userID, authorUsername, "author followed")
	}
	return nil
}

// Unfollow removes the subscription. Unfollowing somebody you do not
// follow is a silent no-op.
func (s *followServiceImpl) Unfollow(ctx context.Context, userID, authorUsername string) error {
	l := log.Ctx(ctx)

	author, err := s.users.GetByUsername(ctx, authorUsername)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		l.Error().Err(err).Str(log.FieldAuthor, authorUsername).Msg("failed to get author to unfollow")
		return err
	}

	if err := s.follows.Unfollow(ctx, userID, author.ID); err != nil {
		l.Error().Err(err).Str(log.FieldAuthor, authorUsername).Msg("failed to remove follow edge")
		return err
	}

	audit.LogWithDetail(ctx, audit.ActionUnfollow, userID, authorUsername, "author unfollowed")
	return nil
}

var _ FollowService = (*followServiceImpl)(nil)
