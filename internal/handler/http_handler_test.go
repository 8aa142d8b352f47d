package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulsefeed/pulse/internal/cache"
	"github.com/pulsefeed/pulse/internal/domain"
	"github.com/pulsefeed/pulse/internal/middleware"
	"github.com/pulsefeed/pulse/internal/repository"
	"github.com/pulsefeed/pulse/internal/service"
	"github.com/pulsefeed/pulse/pkg/jwt"
	"github.com/pulsefeed/pulse/pkg/pubsub"
)

type nopStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *nopStorage) Write(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return nil
}

func (s *nopStorage) Read(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (s *nopStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *nopStorage) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *nopStorage) Exists(context.Context, string) (bool, error) { return false, nil }

func (s *nopStorage) GetURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "/media/" + key, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, *pubsub.Event) error { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handler-%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.UserModel{},
		&domain.GroupModel{},
		&domain.PostModel{},
		&domain.CommentModel{},
		&domain.FollowModel{},
	))

	userRepo := repository.NewGormUserRepository(db)
	groupRepo := repository.NewGormGroupRepository(db)
	postRepo := repository.NewGormPostRepository(db)
	commentRepo := repository.NewGormCommentRepository(db)
	followRepo := repository.NewGormFollowRepository(db)

	jwtManager, err := jwt.NewManager(15*time.Minute, time.Hour, "pulse-test")
	require.NoError(t, err)

	assets := &nopStorage{objects: make(map[string][]byte)}
	userService := service.NewUserService(userRepo, postRepo, followRepo, jwtManager, assets, []string{"root"})
	postService := service.NewPostService(
		postRepo, commentRepo, groupRepo,
		cache.NewMemoryListingCache("test"), 0,
		assets,
		nopPublisher{},
	)
	followService := service.NewFollowService(userRepo, followRepo)
	groupService := service.NewGroupService(groupRepo)

	authMiddleware := middleware.NewAuthMiddleware(jwtManager)

	router := gin.New()
	NewHandler(postService, userService, followService, groupService, authMiddleware).RegisterRoutes(router)
	NewAuthHandler(userService).RegisterRoutes(router)

	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doForm(t *testing.T, router *gin.Engine, method, path, token string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, w.WriteField(key, value))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, router *gin.Engine, username string) (userID, token string) {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/auth/register", "", gin.H{
		"email":    username + "@example.com",
		"username": username,
		"password": "sekrit1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data.User.ID, resp.Data.AccessToken
}

func TestAnonymousWriteRedirectsToLogin(t *testing.T) {
	router := newTestRouter(t)

	rec := doForm(t, router, http.MethodPost, "/api/v1/posts", "", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Fapi%2Fv1%2Fposts", rec.Header().Get("Location"))

	rec = doJSON(t, router, http.MethodGet, "/api/v1/feed", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Fapi%2Fv1%2Ffeed", rec.Header().Get("Location"))
}

func TestCreatePostRedirectsToProfile(t *testing.T) {
	router := newTestRouter(t)
	_, token := register(t, router, "alice")

	rec := doForm(t, router, http.MethodPost, "/api/v1/posts", token, map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/api/v1/users/alice", rec.Header().Get("Location"))

	rec = doJSON(t, router, http.MethodGet, "/api/v1/posts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello")
}

func TestCreatePostValidationEchoesValues(t *testing.T) {
	router := newTestRouter(t)
	_, token := register(t, router, "alice")

	rec := doForm(t, router, http.MethodPost, "/api/v1/posts", token, map[string]string{
		"text":  "   ",
		"group": "no-such-group",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error struct {
			Fields map[string]string `json:"fields"`
			Values struct {
				Group string `json:"group"`
			} `json:"values"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error.Fields["text"])
	assert.NotEmpty(t, resp.Error.Fields["group"])
	assert.Equal(t, "no-such-group", resp.Error.Values.Group)
}

func TestEditPostByNonAuthorBouncesToDetail(t *testing.T) {
	router := newTestRouter(t)
	_, aliceToken := register(t, router, "alice")
	_, malloryToken := register(t, router, "mallory")

	rec := doForm(t, router, http.MethodPost, "/api/v1/posts", aliceToken, map[string]string{"text": "original"})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	// The silent bounce carries no error payload.
	rec = doForm(t, router, http.MethodPost, "/api/v1/posts/1", malloryToken, map[string]string{"text": "hijacked"})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/api/v1/posts/1", rec.Header().Get("Location"))

	rec = doJSON(t, router, http.MethodGet, "/api/v1/posts/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "original")
	assert.NotContains(t, rec.Body.String(), "hijacked")
}

func TestAddCommentRedirectsToDetail(t *testing.T) {
	router := newTestRouter(t)
	_, aliceToken := register(t, router, "alice")
	_, bobToken := register(t, router, "bob")

	rec := doForm(t, router, http.MethodPost, "/api/v1/posts", aliceToken, map[string]string{"text": "discuss"})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = doForm(t, router, http.MethodPost, "/api/v1/posts/1/comments", bobToken, map[string]string{"text": "nice"})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/api/v1/posts/1", rec.Header().Get("Location"))

	rec = doJSON(t, router, http.MethodGet, "/api/v1/posts/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nice")

	rec = doForm(t, router, http.MethodPost, "/api/v1/posts/999/comments", bobToken, map[string]string{"text": "void"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommentAuthorshipIgnoresSubmittedFields(t *testing.T) {
	router := newTestRouter(t)
	aliceID, aliceToken := register(t, router, "alice")
	_, bobToken := register(t, router, "bob")

	rec := doForm(t, router, http.MethodPost, "/api/v1/posts", aliceToken, map[string]string{"text": "mine"})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	// Authorship always comes from the session, never from the payload.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/posts/1/comments", bobToken, gin.H{
		"text":      "spoofed",
		"author":    "alice",
		"author_id": aliceID,
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/posts/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Comments []struct {
				AuthorID       string `json:"author_id"`
				AuthorUsername string `json:"author_username"`
			} `json:"comments"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Comments, 1)
	assert.Equal(t, "bob", resp.Data.Comments[0].AuthorUsername)
	assert.NotEqual(t, aliceID, resp.Data.Comments[0].AuthorID)
}

func TestFollowFlow(t *testing.T) {
	router := newTestRouter(t)
	_, aliceToken := register(t, router, "alice")
	register(t, router, "bob")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/users/bob/follow", aliceToken, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/api/v1/users/bob", rec.Header().Get("Location"))

	rec = doJSON(t, router, http.MethodGet, "/api/v1/users/bob", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile struct {
		Data struct {
			Following bool  `json:"following"`
			Followers int64 `json:"followers"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.True(t, profile.Data.Following)
	assert.Equal(t, int64(1), profile.Data.Followers)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/users/bob/follow", aliceToken, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/users/bob", aliceToken, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.False(t, profile.Data.Following)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/users/nobody/follow", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroupRoutes(t *testing.T) {
	router := newTestRouter(t)
	_, rootToken := register(t, router, "root")
	_, aliceToken := register(t, router, "alice")

	// Group creation is admin-only.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/groups", aliceToken, gin.H{
		"title": "Cats", "slug": "cats",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/groups", rootToken, gin.H{
		"title": "Cats", "slug": "cats",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/v1/groups", rootToken, gin.H{
		"title": "Cats Again", "slug": "cats",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doForm(t, router, http.MethodPost, "/api/v1/posts", aliceToken, map[string]string{
		"text": "a cat post", "group": "cats",
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/groups/cats/posts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a cat post")

	rec = doJSON(t, router, http.MethodGet, "/api/v1/groups/dogs/posts", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewMissingPost(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/posts/42", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/posts/not-a-number", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPostsPagination(t *testing.T) {
	router := newTestRouter(t)
	_, token := register(t, router, "alice")

	for i := 1; i <= 13; i++ {
		rec := doForm(t, router, http.MethodPost, "/api/v1/posts", token, map[string]string{
			"text": fmt.Sprintf("post %d", i),
		})
		require.Equal(t, http.StatusSeeOther, rec.Code)
	}

	var listing struct {
		Data struct {
			Posts []struct {
				Text string `json:"text"`
			} `json:"posts"`
			Page domain.PageMeta `json:"page"`
		} `json:"data"`
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/posts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Len(t, listing.Data.Posts, 10)
	assert.Equal(t, "post 13", listing.Data.Posts[0].Text)
	assert.True(t, listing.Data.Page.HasNext)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/posts?page=2", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Len(t, listing.Data.Posts, 3)

	// Overshooting clamps to the last page instead of failing.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/posts?page=99", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Len(t, listing.Data.Posts, 3)
	assert.Equal(t, 2, listing.Data.Page.Page)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
