package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/pulsefeed/pulse/internal/domain"
	"github.com/pulsefeed/pulse/internal/service"
	pkglog "github.com/pulsefeed/pulse/pkg/log"
	"github.com/pulsefeed/pulse/pkg/response"
)

// AuthHandler handles the session boundary: register, login, refresh.
type AuthHandler struct {
	users service.UserService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users service.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

// RegisterRoutes registers auth routes onto the Gin engine.
func (h *AuthHandler) RegisterRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
	}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid register payload")
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.users.Register(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			response.Conflict(c, "email already registered")
		case errors.Is(err, service.ErrUsernameTaken):
			response.Conflict(c, "username already taken")
		default:
			l.Error().Err(err).Msg("register failed")
			response.InternalError(c, "failed to register")
		}
		return
	}

	response.Created(c, resp)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login payload")
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.users.Login(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(c, "invalid credentials")
			return
		}
		l.Error().Err(err).Msg("login failed")
		response.InternalError(c, "failed to login")
		return
	}

	response.Success(c, resp)
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	var req domain.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid refresh payload")
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.users.RefreshToken(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(c, "invalid refresh token")
			return
		}
		l.Error().Err(err).Msg("token refresh failed")
		response.InternalError(c, "failed to refresh token")
		return
	}

	response.Success(c, resp)
}
