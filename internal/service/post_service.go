package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pulsefeed/pulse/internal/audit"
	"github.com/pulsefeed/pulse/internal/cache"
	"github.com/pulsefeed/pulse/internal/domain"
	"github.com/pulsefeed/pulse/internal/forms"
	"github.com/pulsefeed/pulse/internal/pagination"
	"github.com/pulsefeed/pulse/internal/repository"
	"github.com/pulsefeed/pulse/pkg/log"
	"github.com/pulsefeed/pulse/pkg/pubsub"
	"github.com/pulsefeed/pulse/pkg/storage"
)

var (
	ErrPostNotFound  = errors.New("post not found")
	ErrGroupNotFound = errors.New("group not found")
	// ErrNotAuthor marks write attempts on somebody else's post.
	ErrNotAuthor = errors.New("not the post author")
)

// imageURLTTL bounds presigned image URLs handed out in responses.
const imageURLTTL = 1 * time.Hour

// postServiceImpl implements PostService interface.
type postServiceImpl struct {
	posts    repository.PostRepository
	comments repository.CommentRepository
	groups   repository.GroupRepository

	listingCache cache.ListingCache
	cacheTTL     time.Duration
	// sf collapses concurrent index-page misses into one database read.
	sf singleflight.Group

	assets    storage.Storage
	publisher pubsub.Publisher
}

// NewPostService creates a new post service.
func NewPostService(
	posts repository.PostRepository,
	comments repository.CommentRepository,
	groups repository.GroupRepository,
	listingCache cache.ListingCache,
	cacheTTL time.Duration,
	assets storage.Storage,
	publisher pubsub.Publisher,
) PostService {
	return &postServiceImpl{
		posts:        posts,
		comments:     comments,
		groups:       groups,
		listingCache: listingCache,
		cacheTTL:     cacheTTL,
		assets:       assets,
		publisher:    publisher,
	}
}

// ListPosts returns the main listing, newest first. Pages are served from
// the short-TTL cache; concurrent misses share one database round trip.
func (s *postServiceImpl) ListPosts(ctx context.Context, rawPage string) (*domain.PostListResponse, error) {
	l := log.Ctx(ctx)

	pageNum, err := strconv.Atoi(rawPage)
	if err != nil || pageNum < 1 {
		pageNum = 1
	}
	key := s.listingCache.BuildKey("index", pageNum, pagination.DefaultPerPage)

	if cached, err := s.listingCache.Get(ctx, key); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		l.Warn().Err(err).Msg("listing cache read failed")
	}

	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		listing, err := s.buildListing(ctx, repository.PostFilter{}, rawPage)
		if err != nil {
			return nil, err
		}
		if err := s.listingCache.Set(ctx, key, listing, s.cacheTTL); err != nil {
			l.Warn().Err(err).Msg("listing cache write failed")
		}
		return listing, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*domain.PostListResponse), nil
}

// ListGroupPosts returns a group's posts, newest first.
func (s *postServiceImpl) ListGroupPosts(ctx context.Context, slug, rawPage string) (*domain.PostListResponse, error) {
	l := log.Ctx(ctx)

	group, err := s.groups.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			return nil, ErrGroupNotFound
		}
		l.Error().Err(err).Str(log.FieldGroupSlug, slug).Msg("failed to get group")
		return nil, err
	}

	listing, err := s.buildListing(ctx, repository.PostFilter{GroupID: &group.ID}, rawPage)
	if err != nil {
		return nil, err
	}
	listing.Group = group
	return listing, nil
}

// GetPost returns a post-detail page with its comments.
func (s *postServiceImpl) GetPost(ctx context.Context, postID uint) (*domain.PostDetailResponse, error) {
	l := log.Ctx(ctx)

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return nil, ErrPostNotFound
		}
		l.Error().Err(err).Uint(log.FieldPostID, postID).Msg("failed to get post")
		return nil, err
	}
	fillImageURL(ctx, s.assets, post)

	comments, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		l.Error().Err(err).Uint(log.FieldPostID, postID).Msg("failed to list comments")
		return nil, err
	}

	return &domain.PostDetailResponse{
		Post:     post,
		Comments: comments,
	}, nil
}

// ListFeed returns posts by authors the user follows, newest first.
func (s *postServiceImpl) ListFeed(ctx context.Context, userID, rawPage string) (*domain.PostListResponse, error) {
	return s.buildListing(ctx, repository.PostFilter{FollowedBy: userID}, rawPage)
}

// CreatePost validates the form and persists a new post. The author always
// comes from the session, never from the payload.
func (s *postServiceImpl) CreatePost(ctx context.Context, authorID string, form *forms.PostForm, image *multipart.FileHeader) (*domain.Post, forms.FieldErrors, error) {
	l := log.Ctx(ctx)

	draft, fields, err := form.Validate(ctx, s.groups, image)
	if err != nil {
		l.Error().Err(err).Msg("post form validation failed")
		return nil, nil, err
	}
	if fields.Any() {
		return nil, fields, nil
	}

	post := &domain.Post{
		Text:     draft.Text,
		AuthorID: authorID,
	}
	if draft.Group != nil {
		post.GroupID = &draft.Group.ID
		post.Group = draft.Group
	}

	if err := s.posts.Create(ctx, post); err != nil {
		l.Error().Err(err).Msg("failed to create post")
		return nil, nil, err
	}

	if draft.Image != nil {
		key, err := s.storeImage(ctx, post.ID, draft.Image)
		if err != nil {
			l.Error().Err(err).Uint(log.FieldPostID, post.ID).Msg("failed to store post image")
			return nil, nil, err
		}
		post.ImageKey = key
		if err := s.posts.Update(ctx, post); err != nil {
			l.Error().Err(err).Uint(log.FieldPostID, post.ID).Msg("failed to attach image to post")
			return nil, nil, err
		}
	}
	fillImageURL(ctx, s.assets, post)

	s.publishPostEvent(ctx, pubsub.EventPostCreated, post)
	audit.Log(ctx, audit.ActionPostCreate, authorID, "post created")

	return post, nil, nil
}

// EditPost updates a post's text, group and image. Only the author may
// edit; everybody else gets ErrNotAuthor.
func (s *postServiceImpl) EditPost(ctx context.Context, postID uint, editorID string, form *forms.PostForm, image *multipart.FileHeader) (*domain.Post, forms.FieldErrors, error) {
	l := log.Ctx(ctx)

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return nil, nil, ErrPostNotFound
		}
		l.Error().Err(err).Uint(log.FieldPostID, postID).Msg("failed to get post for edit")
		return nil, nil, err
	}
	if post.AuthorID != editorID {
		return nil, nil, ErrNotAuthor
	}

	draft, fields, err := form.Validate(ctx, s.groups, image)
	if err != nil {
		l.Error().Err(err).Msg("post form validation failed")
		return nil, nil, err
	}
	if fields.Any() {
		return nil, fields, nil
	}

	post.Text = draft.Text
	post.GroupID = nil
	post.Group = nil
	if draft.Group != nil {
		post.GroupID = &draft.Group.ID
		post.Group = draft.Group
	}

	if draft.Image != nil {
		oldKey := post.ImageKey
		key, err := s.storeImage(ctx, post.ID, draft.Image)
		if err != nil {
			l.Error().Err(err).Uint(log.FieldPostID, post.ID).Msg("failed to store replacement image")
			return nil, nil, err
		}
		post.ImageKey = key
		if oldKey != "" {
			if err := s.assets.Delete(ctx, oldKey); err != nil {
				l.Warn().Err(err).Uint(log.FieldPostID, post.ID).Msg("failed to delete replaced image")
			}
		}
	}

	if err := s.posts.Update(ctx, post); err != nil {
		l.Error().Err(err).Uint(log.FieldPostID, post.ID).Msg("failed to update post")
		return nil, nil, err
	}
	fillImageURL(ctx, s.assets, post)

	s.publishPostEvent(ctx, pubsub.EventPostUpdated, post)
	audit.Log(ctx, audit.ActionPostEdit, editorID, "post edited")

	return post, nil, nil
}

// DeletePost removes a post, its comments and its stored images.
func (s *postServiceImpl) DeletePost(ctx context.Context, postID uint, requesterID string) error {
	l := log.Ctx(ctx)

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return ErrPostNotFound
		}
		l.Error().Err(err).Uint(log.FieldPostID, postID).Msg("failed to get post for delete")
		return err
	}
	if post.AuthorID != requesterID {
		return ErrNotAuthor
	}

	if err := s.posts.Delete(ctx, postID); err != nil {
		l.Error().Err(err).Uint(log.FieldPostID, postID).Msg("failed to delete post")
		return err
	}

	if err := s.assets.DeletePrefix(ctx, imagePrefix(postID)); err != nil {
		l.Warn().Err(err).Uint(log.FieldPostID, postID).Msg("failed to delete post images")
	}

	s.publishPostEvent(ctx, pubsub.EventPostDeleted, post)
	audit.Log(ctx, audit.ActionPostDelete, requesterID, "post deleted")

	return nil
}

// AddComment validates and stores a comment on an existing post. The
// author always comes from the session.
func (s *postServiceImpl) AddComment(ctx context.Context, postID uint, authorID string, form *forms.CommentForm) (*domain.Comment, forms.FieldErrors, error) {
	l := log.Ctx(ctx)

	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return nil, nil, ErrPostNotFound
		}
		l.Error().Err(err).Uint(log.FieldPostID, postID).Msg("failed to get post for comment")
		return nil, nil, err
	}

	text, fields := form.Validate()
	if fields.Any() {
		return nil, fields, nil
	}

	comment := &domain.Comment{
		PostID:   postID,
		AuthorID: authorID,
		Text:     text,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		l.Error().Err(err).Uint(log.FieldPostID, postID).Msg("failed to create comment")
		return nil, nil, err
	}

	event, err := pubsub.NewEvent(pubsub.EventCommentCreated, strconv.FormatUint(uint64(comment.ID), 10), &pubsub.CommentCreatedPayload{
		CommentID: comment.ID,
		PostID:    postID,
	})
	if err == nil {
		channel := pubsub.CommentChannel(strconv.FormatUint(uint64(comment.ID), 10))
		if err := s.publisher.Publish(ctx, channel, event); err != nil {
			l.Warn().Err(err).Uint(log.FieldPostID, postID).Msg("failed to publish comment event")
		}
	}

	audit.Log(ctx, audit.ActionCommentAdd, authorID, "comment added")

	return comment, nil, nil
}

func (s *postServiceImpl) buildListing(ctx context.Context, filter repository.PostFilter, rawPage string) (*domain.PostListResponse, error) {
	l := log.Ctx(ctx)

	total, err := s.posts.Count(ctx, filter)
	if err != nil {
		l.Error().Err(err).Msg("failed to count posts")
		return nil, err
	}

	page := pagination.New(rawPage, pagination.DefaultPerPage, total)
	posts, err := s.posts.List(ctx, filter, page.Offset, page.PerPage)
	if err != nil {
		l.Error().Err(err).Msg("failed to list posts")
		return nil, err
	}
	for _, post := range posts {
		fillImageURL(ctx, s.assets, post)
	}

	return &domain.PostListResponse{
		Posts: posts,
		Page:  page.Meta(),
	}, nil
}

func (s *postServiceImpl) storeImage(ctx context.Context, postID uint, img *forms.ImageUpload) (string, error) {
	key := fmt.Sprintf("%s%s.%s", imagePrefix(postID), uuid.New().String(), img.Ext)
	if err := s.assets.Write(ctx, key, bytes.NewReader(img.Data), int64(len(img.Data)), img.ContentType); err != nil {
		return "", err
	}
	return key, nil
}

// fillImageURL resolves a post's stored image key into a servable URL.
// Shared by every listing surface so a post looks the same everywhere.
func fillImageURL(ctx context.Context, assets storage.Storage, post *domain.Post) {
	if post.ImageKey == "" {
		return
	}
	url, err := assets.GetURL(ctx, post.ImageKey, imageURLTTL)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Uint(log.FieldPostID, post.ID).Msg("failed to build image url")
		return
	}
	post.ImageURL = url
}

func (s *postServiceImpl) publishPostEvent(ctx context.Context, eventType string, post *domain.Post) {
	l := log.Ctx(ctx)

	payload := &pubsub.PostChangedPayload{
		PostID:   post.ID,
		AuthorID: post.AuthorID,
	}
	if post.Group != nil {
		payload.GroupSlug = post.Group.Slug
	}

	id := strconv.FormatUint(uint64(post.ID), 10)
	event, err := pubsub.NewEvent(eventType, id, payload)
	if err != nil {
		l.Warn().Err(err).Uint(log.FieldPostID, post.ID).Msg("failed to build post event")
		return
	}
	if err := s.publisher.Publish(ctx, pubsub.PostChannel(id), event); err != nil {
		l.Warn().Err(err).Uint(log.FieldPostID, post.ID).Msg("failed to publish post event")
	}
}

func imagePrefix(postID uint) string {
	return fmt.Sprintf("posts/%d/", postID)
}

var _ PostService = (*postServiceImpl)(nil)
