package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/pulsefeed/pulse/internal/audit"
	"github.com/pulsefeed/pulse/internal/domain"
	"github.com/pulsefeed/pulse/internal/pagination"
	"github.com/pulsefeed/pulse/internal/repository"
	"github.com/pulsefeed/pulse/pkg/jwt"
	"github.com/pulsefeed/pulse/pkg/log"
	"github.com/pulsefeed/pulse/pkg/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
)

// userServiceImpl implements UserService interface.
type userServiceImpl struct {
	users      repository.UserRepository
	posts      repository.PostRepository
	follows    repository.FollowRepository
	jwtManager *jwt.Manager
	assets     storage.Storage
	// adminUsernames receive the admin role on registration.
	adminUsernames map[string]struct{}
}

// NewUserService creates a new user service.
func NewUserService(
	users repository.UserRepository,
	posts repository.PostRepository,
	follows repository.FollowRepository,
	jwtManager *jwt.Manager,
	assets storage.Storage,
	adminUsernames []string,
) UserService {
	admins := make(map[string]struct{}, len(adminUsernames))
	for _, name := range adminUsernames {
		admins[name] = struct{}{}
	}

	return &userServiceImpl{
		users:          users,
		posts:          posts,
		follows:        follows,
		jwtManager:     jwtManager,
		assets:         assets,
		adminUsernames: admins,
	}
}

// Register registers a new user.
func (s *userServiceImpl) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	roles := []string{"user"}
	if _, ok := s.adminUsernames[req.Username]; ok {
		roles = append(roles, "admin")
	}

	user := &domain.User{
		Email:        req.Email,
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hashedPassword),
		Roles:        roles,
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return nil, ErrEmailTaken
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, ErrUsernameTaken
		}
		l.Error().Err(err).Msg("failed to create user")
		return nil, err
	}

	resp, err := s.buildAuthResponse(user)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to generate tokens after register")
		return nil, err
	}

	audit.Log(ctx, audit.ActionRegister, user.ID, "user registered")
	return resp, nil
}

// Login authenticates a user.
func (s *userServiceImpl) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.LogWithDetail(ctx, audit.ActionLoginFailed, "", req.Email, "login failed: user not found")
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by email")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, user.ID, req.Email, "login failed: wrong password")
		return nil, ErrInvalidCredentials
	}

	resp, err := s.buildAuthResponse(user)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to generate tokens after login")
		return nil, err
	}

	audit.Log(ctx, audit.ActionLogin, user.ID, "user logged in")
	return resp, nil
}

// RefreshToken exchanges a refresh token for a new token pair.
func (s *userServiceImpl) RefreshToken(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	accessToken, refreshToken, accessExp, _, err := s.jwtManager.RefreshTokens(req.RefreshToken)
	if err != nil {
		l.Warn().Err(err).Msg("failed to refresh token")
		return nil, ErrInvalidCredentials
	}

	claims, err := s.jwtManager.ValidateToken(accessToken)
	if err != nil {
		l.Warn().Err(err).Msg("refreshed token validation failed")
		return nil, ErrInvalidCredentials
	}

	// The user may have been removed since the refresh token was issued.
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Str(log.FieldUserID, claims.UserID).Msg("failed to get user after token refresh")
		return nil, err
	}

	audit.Log(ctx, audit.ActionRefreshToken, user.ID, "token refreshed")

	return &domain.AuthResponse{
		User:         user.ToResponse(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
	}, nil
}

// GetProfile renders a user's page with their posts and follow state.
func (s *userServiceImpl) GetProfile(ctx context.Context, username, viewerID, rawPage string) (*domain.ProfileResponse, error) {
	l := log.Ctx(ctx)

	author, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		l.Error().Err(err).Str(log.FieldUsername, username).Msg("failed to get profile user")
		return nil, err
	}

	filter := repository.PostFilter{AuthorID: author.ID}
	total, err := s.posts.Count(ctx, filter)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUsername, username).Msg("failed to count profile posts")
		return nil, err
	}

	page := pagination.New(rawPage, pagination.DefaultPerPage, total)
	posts, err := s.posts.List(ctx, filter, page.Offset, page.PerPage)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUsername, username).Msg("failed to list profile posts")
		return nil, err
	}
	for _, post := range posts {
		fillImageURL(ctx, s.assets, post)
	}

	followers, err := s.follows.CountFollowers(ctx, author.ID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUsername, username).Msg("failed to count followers")
		return nil, err
	}

	following := false
	if viewerID != "" && viewerID != author.ID {
		following, err = s.follows.IsFollowing(ctx, viewerID, author.ID)
		if err != nil {
			l.Error().Err(err).Str(log.FieldUsername, username).Msg("failed to check follow state")
			return nil, err
		}
	}

	return &domain.ProfileResponse{
		Author:    author.ToResponse(),
		Following: following,
		Followers: followers,
		Posts:     posts,
		Page:      page.Meta(),
	}, nil
}

func (s *userServiceImpl) buildAuthResponse(user *domain.User) (*domain.AuthResponse, error) {
	accessToken, refreshToken, accessExp, _, err := s.jwtManager.GenerateTokenPair(
		user.ID, user.Email, user.Username, user.Roles,
	)
	if err != nil {
		return nil, err
	}

	return &domain.AuthResponse{
		User:         user.ToResponse(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
	}, nil
}

var _ UserService = (*userServiceImpl)(nil)
