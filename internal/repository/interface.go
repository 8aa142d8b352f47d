package repository

import (
	"context"
	"errors"

	"github.com/pulsefeed/pulse/internal/domain"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailExists     = errors.New("email already exists")
	ErrUsernameExists  = errors.New("username already exists")
	ErrGroupNotFound   = errors.New("group not found")
	ErrGroupSlugExists = errors.New("group slug already exists")
	ErrPostNotFound    = errors.New("post not found")
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// GroupRepository defines persistence operations for groups.
type GroupRepository interface {
	Create(ctx context.Context, group *domain.Group) error
	GetByID(ctx context.Context, id uint) (*domain.Group, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Group, error)
	List(ctx context.Context) ([]*domain.Group, error)
	// Delete removes a group and clears the group reference on its posts
	// in the same transaction. Posts themselves stay.
	Delete(ctx context.Context, id uint) error
}

// PostFilter selects a subset of posts. Zero value means all posts.
// All listings are ordered newest-first by publication date.
type PostFilter struct {
	AuthorID string
	GroupID  *uint
	// FollowedBy limits posts to authors followed by the given user.
	FollowedBy string
}

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	Create(ctx context.Context, post *domain.Post) error
	GetByID(ctx context.Context, id uint) (*domain.Post, error)
	Update(ctx context.Context, post *domain.Post) error
	// Delete removes a post together with its comments.
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, f PostFilter, offset, limit int) ([]*domain.Post, error)
	Count(ctx context.Context, f PostFilter) (int64, error)
}

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	// ListByPost returns a post's comments newest-first.
	ListByPost(ctx context.Context, postID uint) ([]*domain.Comment, error)
	CountByPost(ctx context.Context, postID uint) (int64, error)
}

// FollowRepository defines persistence operations for follow edges.
type FollowRepository interface {
	// Follow creates the (user, author) edge. Creating an existing edge is
	// a no-op; the returned bool reports whether a new edge was created.
	Follow(ctx context.Context, userID, authorID string) (bool, error)
	// Unfollow removes the edge; removing a missing edge is a no-op.
	Unfollow(ctx context.Context, userID, authorID string) error
	IsFollowing(ctx context.Context, userID, authorID string) (bool, error)
	CountFollowers(ctx context.Context, authorID string) (int64, error)
}
