package service

import (
	"context"
	"mime/multipart"

	"github.com/pulsefeed/pulse/internal/domain"
	"github.com/pulsefeed/pulse/internal/forms"
)

// UserService handles registration, authentication and profile pages.
type UserService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error)
	RefreshToken(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.AuthResponse, error)
	// GetProfile renders a user's page: their posts plus follow state as
	// seen by viewerID (empty for anonymous viewers).
	GetProfile(ctx context.Context, username, viewerID, rawPage string) (*domain.ProfileResponse, error)
}

// PostService handles post listings, detail pages and authoring.
type PostService interface {
	ListPosts(ctx context.Context, rawPage string) (*domain.PostListResponse, error)
	ListGroupPosts(ctx context.Context, slug, rawPage string) (*domain.PostListResponse, error)
	GetPost(ctx context.Context, postID uint) (*domain.PostDetailResponse, error)
	// ListFeed returns posts by authors the user follows.
	ListFeed(ctx context.Context, userID, rawPage string) (*domain.PostListResponse, error)

	// CreatePost validates the form and persists a new post owned by
	// authorID. Field-level failures come back in FieldErrors.
	CreatePost(ctx context.Context, authorID string, form *forms.PostForm, image *multipart.FileHeader) (*domain.Post, forms.FieldErrors, error)
	// EditPost rejects editors other than the post's author with
	// ErrNotAuthor.
	EditPost(ctx context.Context, postID uint, editorID string, form *forms.PostForm, image *multipart.FileHeader) (*domain.Post, forms.FieldErrors, error)
	DeletePost(ctx context.Context, postID uint, requesterID string) error

	AddComment(ctx context.Context, postID uint, authorID string, form *forms.CommentForm) (*domain.Comment, forms.FieldErrors, error)
}

// FollowService maintains follow edges between users.
type FollowService interface {
	// Follow is idempotent; following yourself is silently skipped.
	Follow(ctx context.Context, userID, authorUsername string) error
	// Unfollow is idempotent.
	Unfollow(ctx context.Context, userID, authorUsername string) error
}

// GroupService handles administrative group management.
type GroupService interface {
	CreateGroup(ctx context.Context, actorID string, req *domain.CreateGroupRequest) (*domain.Group, error)
	ListGroups(ctx context.Context) ([]*domain.Group, error)
	// DeleteGroup detaches the group's posts instead of deleting them.
	DeleteGroup(ctx context.Context, actorID string, groupID uint) error
}
