package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pulsefeed/pulse/internal/domain"
	"github.com/pulsefeed/pulse/internal/forms"
	"github.com/pulsefeed/pulse/internal/middleware"
	"github.com/pulsefeed/pulse/internal/service"
	pkglog "github.com/pulsefeed/pulse/pkg/log"
	"github.com/pulsefeed/pulse/pkg/response"
)

// Handler handles HTTP requests for the content platform.
type Handler struct {
	posts          service.PostService
	users          service.UserService
	follows        service.FollowService
	groups         service.GroupService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	posts service.PostService,
	users service.UserService,
	follows service.FollowService,
	groups service.GroupService,
	authMiddleware *middleware.AuthMiddleware,
) *Handler {
	return &Handler{
		posts:          posts,
		users:          users,
		follows:        follows,
		groups:         groups,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes onto the Gin engine.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		posts := api.Group("/posts")
		{
			// GET /api/v1/posts: no auth, page-cached
			posts.GET("", h.ListPosts)
			// POST /api/v1/posts: auth required, multipart
			posts.POST("", h.authMiddleware.RequireAuth(), h.CreatePost)
			// GET /api/v1/posts/:post_id: no auth
			posts.GET("/:post_id", h.ViewPost)
			// POST /api/v1/posts/:post_id: auth required, author-only
			posts.POST("/:post_id", h.authMiddleware.RequireAuth(), h.EditPost)
			// POST /api/v1/posts/:post_id/comments: auth required
			posts.POST("/:post_id/comments", h.authMiddleware.RequireAuth(), h.AddComment)
		}

		groups := api.Group("/groups")
		{
			// GET /api/v1/groups: no auth
			groups.GET("", h.ListGroups)
			// POST /api/v1/groups: admin only
			groups.POST("", h.authMiddleware.RequireAuth(), h.authMiddleware.RequireAdmin(), h.CreateGroup)
			// GET /api/v1/groups/:slug/posts: no auth
			groups.GET("/:slug/posts", h.ListGroupPosts)
		}

		users := api.Group("/users")
		{
			// GET /api/v1/users/:username: no auth, follow flag for viewer
			users.GET("/:username", h.authMiddleware.OptionalAuth(), h.ViewProfile)
			// POST /api/v1/users/:username/follow: auth required
			users.POST("/:username/follow", h.authMiddleware.RequireAuth(), h.Follow)
			// DELETE /api/v1/users/:username/follow: auth required
			users.DELETE("/:username/follow", h.authMiddleware.RequireAuth(), h.Unfollow)
		}

		// GET /api/v1/feed: auth required
		api.GET("/feed", h.authMiddleware.RequireAuth(), h.ListFeed)
	}

	r.GET("/health", h.Health)
}

// ListPosts handles GET /api/v1/posts.
func (h *Handler) ListPosts(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	listing, err := h.posts.ListPosts(ctx, c.Query("page"))
	if err != nil {
		l.Error().Err(err).Msg("list posts failed")
		response.InternalError(c, "failed to list posts")
		return
	}

	response.Success(c, listing)
}

// ListGroupPosts handles GET /api/v1/groups/:slug/posts.
func (h *Handler) ListGroupPosts(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	slug := c.Param("slug")
	listing, err := h.posts.ListGroupPosts(ctx, slug, c.Query("page"))
	if err != nil {
		if errors.Is(err, service.ErrGroupNotFound) {
			response.NotFound(c, "group not found")
			return
		}
		l.Error().Err(err).Str(pkglog.FieldGroupSlug, slug).Msg("list group posts failed")
		response.InternalError(c, "failed to list group posts")
		return
	}

	response.Success(c, listing)
}

// ViewPost handles GET /api/v1/posts/:post_id.
func (h *Handler) ViewPost(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	postID, ok := parsePostID(c)
	if !ok {
		return
	}

	detail, err := h.posts.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			response.NotFound(c, "post not found")
			return
		}
		l.Error().Err(err).Uint(pkglog.FieldPostID, postID).Msg("view post failed")
		response.InternalError(c, "failed to load post")
		return
	}

	response.Success(c, detail)
}

// CreatePost handles POST /api/v1/posts. On success it redirects to the
// author's profile; validation failures re-render with the entered values.
func (h *Handler) CreatePost(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	userID := middleware.GetUserID(c)
	form, image, ok := bindPostForm(c)
	if !ok {
		return
	}

	_, fields, err := h.posts.CreatePost(ctx, userID, form, image)
	if err != nil {
		l.Error().Err(err).Msg("create post failed")
		response.InternalError(c, "failed to create post")
		return
	}
	if fields.Any() {
		response.ValidationFailed(c, fields, form)
		return
	}

	response.SeeOther(c, "/api/v1/users/"+middleware.GetUsername(c))
}

// EditPost handles POST /api/v1/posts/:post_id. Editors other than the
// author are bounced to the detail page without an error.
func (h *Handler) EditPost(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	postID, ok := parsePostID(c)
	if !ok {
		return
	}

	userID := middleware.GetUserID(c)
	form, image, ok := bindPostForm(c)
	if !ok {
		return
	}

	_, fields, err := h.posts.EditPost(ctx, postID, userID, form, image)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPostNotFound):
			response.NotFound(c, "post not found")
		case errors.Is(err, service.ErrNotAuthor):
			response.SeeOther(c, postDetailPath(postID))
		default:
			l.Error().Err(err).Uint(pkglog.FieldPostID, postID).Msg("edit post failed")
			response.InternalError(c, "failed to edit post")
		}
		return
	}
	if fields.Any() {
		response.ValidationFailed(c, fields, form)
		return
	}

	response.SeeOther(c, postDetailPath(postID))
}

// AddComment handles POST /api/v1/posts/:post_id/comments.
func (h *Handler) AddComment(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	postID, ok := parsePostID(c)
	if !ok {
		return
	}

	var form forms.CommentForm
	if err := c.ShouldBind(&form); err != nil {
		l.Warn().Err(err).Msg("invalid comment payload")
		response.BadRequest(c, err.Error())
		return
	}

	_, fields, err := h.posts.AddComment(ctx, postID, middleware.GetUserID(c), &form)
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			response.NotFound(c, "post not found")
			return
		}
		l.Error().Err(err).Uint(pkglog.FieldPostID, postID).Msg("add comment failed")
		response.InternalError(c, "failed to add comment")
		return
	}
	if fields.Any() {
		response.ValidationFailed(c, fields, form)
		return
	}

	response.SeeOther(c, postDetailPath(postID))
}

// ViewProfile handles GET /api/v1/users/:username.
func (h *Handler) ViewProfile(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	username := c.Param("username")
	profile, err := h.users.GetProfile(ctx, username, middleware.GetUserID(c), c.Query("page"))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		l.Error().Err(err).Str(pkglog.FieldUsername, username).Msg("view profile failed")
		response.InternalError(c, "failed to load profile")
		return
	}

	response.Success(c, profile)
}

// Follow handles POST /api/v1/users/:username/follow.
func (h *Handler) Follow(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	username := c.Param("username")
	if err := h.follows.Follow(ctx, middleware.GetUserID(c), username); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		l.Error().Err(err).Str(pkglog.FieldAuthor, username).Msg("follow failed")
		response.InternalError(c, "failed to follow")
		return
	}

	response.SeeOther(c, "/api/v1/users/"+username)
}

// Unfollow handles DELETE /api/v1/users/:username/follow.
func (h *Handler) Unfollow(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	username := c.Param("username")
	if err := h.follows.Unfollow(ctx, middleware.GetUserID(c), username); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		l.Error().Err(err).Str(pkglog.FieldAuthor, username).Msg("unfollow failed")
		response.InternalError(c, "failed to unfollow")
		return
	}

	response.SeeOther(c, "/api/v1/users/"+username)
}

// ListFeed handles GET /api/v1/feed.
func (h *Handler) ListFeed(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	listing, err := h.posts.ListFeed(ctx, middleware.GetUserID(c), c.Query("page"))
	if err != nil {
		l.Error().Err(err).Msg("list feed failed")
		response.InternalError(c, "failed to list feed")
		return
	}

	response.Success(c, listing)
}

// ListGroups handles GET /api/v1/groups.
func (h *Handler) ListGroups(c *gin.Context) {
	ctx := c.Request.Context()

	groups, err := h.groups.ListGroups(ctx)
	if err != nil {
		l := pkglog.Ctx(ctx)
		l.Error().Err(err).Msg("list groups failed")
		response.InternalError(c, "failed to list groups")
		return
	}

	response.Success(c, gin.H{"groups": groups})
}

// CreateGroup handles POST /api/v1/groups (admin only).
func (h *Handler) CreateGroup(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	var req domain.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid group payload")
		response.BadRequest(c, err.Error())
		return
	}

	group, err := h.groups.CreateGroup(ctx, middleware.GetUserID(c), &req)
	if err != nil {
		if errors.Is(err, service.ErrSlugTaken) {
			response.Conflict(c, "slug already taken")
			return
		}
		l.Error().Err(err).Str(pkglog.FieldGroupSlug, req.Slug).Msg("create group failed")
		response.InternalError(c, "failed to create group")
		return
	}

	response.Created(c, group)
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parsePostID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("post_id"), 10, 64)
	if err != nil {
		response.NotFound(c, "post not found")
		return 0, false
	}
	return uint(id), true
}

func bindPostForm(c *gin.Context) (*forms.PostForm, *multipart.FileHeader, bool) {
	var form forms.PostForm
	if err := c.ShouldBind(&form); err != nil {
		l := pkglog.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("invalid post payload")
		response.BadRequest(c, err.Error())
		return nil, nil, false
	}

	// The image part is optional; non-multipart requests have none at all.
	image, err := c.FormFile("image")
	if err != nil {
		image = nil
	}

	return &form, image, true
}

func postDetailPath(postID uint) string {
	return fmt.Sprintf("/api/v1/posts/%d", postID)
}
