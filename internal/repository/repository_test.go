package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulsefeed/pulse/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named shared-cache DSN keeps every pooled connection on the same
	// in-memory database while isolating tests from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
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

	return db
}

func createUser(t *testing.T, users *GormUserRepository, username string) *domain.User {
	t.Helper()

	user := &domain.User{
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: "x",
	}
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func createPost(t *testing.T, posts *GormPostRepository, authorID, text string, groupID *uint) *domain.Post {
	t.Helper()

	post := &domain.Post{Text: text, AuthorID: authorID, GroupID: groupID}
	require.NoError(t, posts.Create(context.Background(), post))
	return post
}

func TestUserCreateAssignsIDAndDefaultRole(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)

	user := createUser(t, users, "alice")
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, []string{"user"}, user.Roles)

	got, err := users.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestUserUniqueConstraints(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	ctx := context.Background()

	createUser(t, users, "alice")

	err := users.Create(ctx, &domain.User{
		Email:        "alice@example.com",
		Username:     "someone-else",
		PasswordHash: "x",
	})
	assert.ErrorIs(t, err, ErrEmailExists)

	err = users.Create(ctx, &domain.User{
		Email:        "fresh@example.com",
		Username:     "alice",
		PasswordHash: "x",
	})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestUserNotFound(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	ctx := context.Background()

	_, err := users.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = users.GetByUsername(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGroupSlugUnique(t *testing.T) {
	db := newTestDB(t)
	groups := NewGormGroupRepository(db)
	ctx := context.Background()

	require.NoError(t, groups.Create(ctx, &domain.Group{Title: "Cats", Slug: "cats"}))
	err := groups.Create(ctx, &domain.Group{Title: "More Cats", Slug: "cats"})
	assert.ErrorIs(t, err, ErrGroupSlugExists)
}

func TestGroupDeleteDetachesPosts(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	groups := NewGormGroupRepository(db)
	posts := NewGormPostRepository(db)
	ctx := context.Background()

	author := createUser(t, users, "alice")
	group := &domain.Group{Title: "Cats", Slug: "cats"}
	require.NoError(t, groups.Create(ctx, group))

	post := createPost(t, posts, author.ID, "a cat post", &group.ID)

	require.NoError(t, groups.Delete(ctx, group.ID))

	_, err := groups.GetBySlug(ctx, "cats")
	assert.ErrorIs(t, err, ErrGroupNotFound)

	// The post survives with its group reference cleared.
	got, err := posts.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GroupID)
	assert.Nil(t, got.Group)
}

func TestGroupDeleteMissing(t *testing.T) {
	db := newTestDB(t)
	groups := NewGormGroupRepository(db)

	err := groups.Delete(context.Background(), 42)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestPostListNewestFirst(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	posts := NewGormPostRepository(db)
	ctx := context.Background()

	author := createUser(t, users, "alice")
	for i := 1; i <= 3; i++ {
		createPost(t, posts, author.ID, fmt.Sprintf("post %d", i), nil)
	}

	listed, err := posts.List(ctx, PostFilter{}, 0, 10)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "post 3", listed[0].Text)
	assert.Equal(t, "post 2", listed[1].Text)
	assert.Equal(t, "post 1", listed[2].Text)
	assert.Equal(t, "alice", listed[0].AuthorUsername)
}

func TestPostListWindow(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	posts := NewGormPostRepository(db)
	ctx := context.Background()

	author := createUser(t, users, "alice")
	for i := 1; i <= 13; i++ {
		createPost(t, posts, author.ID, fmt.Sprintf("post %d", i), nil)
	}

	total, err := posts.Count(ctx, PostFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(13), total)

	first, err := posts.List(ctx, PostFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Len(t, first, 10)

	second, err := posts.List(ctx, PostFilter{}, 10, 10)
	require.NoError(t, err)
	assert.Len(t, second, 3)
	assert.Equal(t, "post 3", second[0].Text)
}

func TestPostFilterByGroupAndAuthor(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	groups := NewGormGroupRepository(db)
	posts := NewGormPostRepository(db)
	ctx := context.Background()

	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")
	group := &domain.Group{Title: "Cats", Slug: "cats"}
	require.NoError(t, groups.Create(ctx, group))

	createPost(t, posts, alice.ID, "alice in group", &group.ID)
	createPost(t, posts, alice.ID, "alice solo", nil)
	createPost(t, posts, bob.ID, "bob solo", nil)

	inGroup, err := posts.List(ctx, PostFilter{GroupID: &group.ID}, 0, 10)
	require.NoError(t, err)
	require.Len(t, inGroup, 1)
	assert.Equal(t, "alice in group", inGroup[0].Text)

	byBob, err := posts.List(ctx, PostFilter{AuthorID: bob.ID}, 0, 10)
	require.NoError(t, err)
	require.Len(t, byBob, 1)
	assert.Equal(t, "bob solo", byBob[0].Text)
}

func TestPostUpdate(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	posts := NewGormPostRepository(db)
	ctx := context.Background()

	author := createUser(t, users, "alice")
	post := createPost(t, posts, author.ID, "before", nil)

	post.Text = "after"
	post.ImageKey = "posts/1/abc.png"
	require.NoError(t, posts.Update(ctx, post))

	got, err := posts.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Text)
	assert.Equal(t, "posts/1/abc.png", got.ImageKey)

	err = posts.Update(ctx, &domain.Post{ID: 999, Text: "nope"})
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestPostDeleteCascadesComments(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	posts := NewGormPostRepository(db)
	comments := NewGormCommentRepository(db)
	ctx := context.Background()

	author := createUser(t, users, "alice")
	post := createPost(t, posts, author.ID, "doomed", nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, comments.Create(ctx, &domain.Comment{
			PostID:   post.ID,
			AuthorID: author.ID,
			Text:     "a comment",
		}))
	}

	require.NoError(t, posts.Delete(ctx, post.ID))

	_, err := posts.GetByID(ctx, post.ID)
	assert.ErrorIs(t, err, ErrPostNotFound)

	count, err := comments.CountByPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCommentListNewestFirst(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	posts := NewGormPostRepository(db)
	comments := NewGormCommentRepository(db)
	ctx := context.Background()

	author := createUser(t, users, "alice")
	post := createPost(t, posts, author.ID, "discussed", nil)

	for i := 1; i <= 3; i++ {
		require.NoError(t, comments.Create(ctx, &domain.Comment{
			PostID:   post.ID,
			AuthorID: author.ID,
			Text:     fmt.Sprintf("comment %d", i),
		}))
	}

	listed, err := comments.ListByPost(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "comment 3", listed[0].Text)
	assert.Equal(t, "comment 1", listed[2].Text)
	assert.Equal(t, "alice", listed[0].AuthorUsername)
}

func TestFollowIdempotent(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	follows := NewGormFollowRepository(db)
	ctx := context.Background()

	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")

	created, err := follows.Follow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, created)

	// A second follow is a no-op, not an error.
	created, err = follows.Follow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, created)

	count, err := follows.CountFollowers(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	following, err := follows.IsFollowing(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, following)
}

func TestUnfollowMissingIsNoOp(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	follows := NewGormFollowRepository(db)
	ctx := context.Background()

	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")

	require.NoError(t, follows.Unfollow(ctx, alice.ID, bob.ID))

	_, err := follows.Follow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.NoError(t, follows.Unfollow(ctx, alice.ID, bob.ID))

	following, err := follows.IsFollowing(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, following)
}

func TestFeedFilter(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	posts := NewGormPostRepository(db)
	follows := NewGormFollowRepository(db)
	ctx := context.Background()

	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")
	carol := createUser(t, users, "carol")

	createPost(t, posts, bob.ID, "from bob", nil)
	createPost(t, posts, carol.ID, "from carol", nil)

	_, err := follows.Follow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	feed, err := posts.List(ctx, PostFilter{FollowedBy: alice.ID}, 0, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "from bob", feed[0].Text)

	// Carol follows nobody; her feed is empty.
	feed, err = posts.List(ctx, PostFilter{FollowedBy: carol.ID}, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, feed)

	// Unfollowing empties the feed again.
	require.NoError(t, follows.Unfollow(ctx, alice.ID, bob.ID))
	feed, err = posts.List(ctx, PostFilter{FollowedBy: alice.ID}, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, feed)
}
