package domain

import (
	"time"

	"github.com/pulsefeed/pulse/pkg/database"
	"gorm.io/gorm"
)

// UserModel is the GORM model for the users table.
type UserModel struct {
	ID           string               `gorm:"type:varchar(36);primaryKey"`
	Email        string               `gorm:"type:varchar(255);uniqueIndex;not null"`
	Username     string               `gorm:"type:varchar(50);uniqueIndex;not null"`
	DisplayName  string               `gorm:"type:varchar(100)"`
	PasswordHash string               `gorm:"type:varchar(255);not null"`
	Roles        database.StringArray `gorm:"type:text"`
	CreatedAt    time.Time            `gorm:"autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"autoUpdateTime"`
	DeletedAt    gorm.DeletedAt       `gorm:"index"`
}

func (UserModel) TableName() string { return "users" }

// GroupModel is the GORM model for the groups table. Groups are topical
// communities that posts may optionally belong to.
type GroupModel struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Title       string `gorm:"type:varchar(200);not null"`
	Slug        string `gorm:"type:varchar(100);uniqueIndex;not null"`
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
}

func (GroupModel) TableName() string { return "groups" }

// PostModel is the GORM model for the posts table. GroupID is nullable:
// deleting a group clears the reference instead of deleting the post.
type PostModel struct {
	ID       uint      `gorm:"primaryKey;autoIncrement"`
	Text     string    `gorm:"type:text;not null"`
	PubDate  time.Time `gorm:"column:pub_date;autoCreateTime;index:idx_posts_pub_date,sort:desc"`
	AuthorID string    `gorm:"type:varchar(36);not null;index"`
	GroupID  *uint     `gorm:"index"`
	ImageKey string    `gorm:"type:varchar(255)"`

	Author UserModel   `gorm:"foreignKey:AuthorID"`
	Group  *GroupModel `gorm:"foreignKey:GroupID"`
}

func (PostModel) TableName() string { return "posts" }

// CommentModel is the GORM model for the comments table. Comments belong
// to exactly one post and are removed together with it.
type CommentModel struct {
	ID       uint      `gorm:"primaryKey;autoIncrement"`
	PostID   uint      `gorm:"not null;index"`
	AuthorID string    `gorm:"type:varchar(36);not null"`
	Text     string    `gorm:"type:text;not null"`
	Created  time.Time `gorm:"autoCreateTime"`

	Author UserModel `gorm:"foreignKey:AuthorID"`
}

func (CommentModel) TableName() string { return "comments" }

// FollowModel is the GORM model for the follows table. The composite unique
// index enforces at most one edge per (user, author) pair at the storage
// level; handler logic alone cannot win that race.
type FollowModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	UserID    string    `gorm:"column:user_id;type:varchar(36);not null;uniqueIndex:uidx_follow_pair"`
	AuthorID  string    `gorm:"column:author_id;type:varchar(36);not null;uniqueIndex:uidx_follow_pair"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (FollowModel) TableName() string { return "follows" }

// User is the domain representation of a user.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name,omitempty"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	for _, r := range u.Roles {
		if r == "admin" {
			return true
		}
	}
	return false
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:           m.ID,
		Email:        m.Email,
		Username:     m.Username,
		DisplayName:  m.DisplayName,
		PasswordHash: m.PasswordHash,
		Roles:        []string(m.Roles),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		Roles:        database.StringArray(u.Roles),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// Group is the domain representation of a group.
type Group struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m *GroupModel) ToDomain() *Group {
	return &Group{
		ID:          m.ID,
		Title:       m.Title,
		Slug:        m.Slug,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

func GroupToModel(g *Group) *GroupModel {
	return &GroupModel{
		ID:          g.ID,
		Title:       g.Title,
		Slug:        g.Slug,
		Description: g.Description,
		CreatedAt:   g.CreatedAt,
	}
}

// Post is the domain representation of a post. Author and Group are
// populated on reads; ImageKey is the storage key of the uploaded image
// (empty when the post has none).
type Post struct {
	ID             uint      `json:"id"`
	Text           string    `json:"text"`
	PubDate        time.Time `json:"pub_date"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username,omitempty"`
	GroupID        *uint     `json:"-"`
	Group          *Group    `json:"group,omitempty"`
	ImageKey       string    `json:"-"`
	ImageURL       string    `json:"image_url,omitempty"`
}

func (m *PostModel) ToDomain() *Post {
	p := &Post{
		ID:       m.ID,
		Text:     m.Text,
		PubDate:  m.PubDate,
		AuthorID: m.AuthorID,
		GroupID:  m.GroupID,
		ImageKey: m.ImageKey,
	}
	if m.Author.ID != "" {
		p.AuthorUsername = m.Author.Username
	}
	if m.Group != nil {
		p.Group = m.Group.ToDomain()
	}
	return p
}

// Comment is the domain representation of a comment.
type Comment struct {
	ID             uint      `json:"id"`
	PostID         uint      `json:"post_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username,omitempty"`
	Text           string    `json:"text"`
	Created        time.Time `json:"created"`
}

func (m *CommentModel) ToDomain() *Comment {
	c := &Comment{
		ID:       m.ID,
		PostID:   m.PostID,
		AuthorID: m.AuthorID,
		Text:     m.Text,
		Created:  m.Created,
	}
	if m.Author.ID != "" {
		c.AuthorUsername = m.Author.Username
	}
	return c
}

// Follow is the domain representation of a follow edge: UserID reads
// AuthorID's feed.
type Follow struct {
	UserID    string    `json:"user_id"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}
