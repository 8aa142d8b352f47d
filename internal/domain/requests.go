package domain

import "time"

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Username    string `json:"username" binding:"required,min=3,max=50"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"display_name"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest represents a refresh token request.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// CreateGroupRequest is the administrative group-creation payload.
type CreateGroupRequest struct {
	Title       string `json:"title" binding:"required,max=200"`
	Slug        string `json:"slug" binding:"required,max=100"`
	Description string `json:"description"`
}

// AuthResponse represents authentication response with tokens.
type AuthResponse struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    int64        `json:"expires_at"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToResponse converts User to UserResponse.
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}

// PageMeta describes one window of an ordered listing.
type PageMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// PostListResponse is the rendered context of any paginated post listing.
type PostListResponse struct {
	Posts []*Post  `json:"posts"`
	Page  PageMeta `json:"page"`
	Group *Group   `json:"group,omitempty"`
}

// ProfileResponse is the rendered context of a profile page.
type ProfileResponse struct {
	Author    UserResponse `json:"author"`
	Following bool         `json:"following"`
	Followers int64        `json:"followers"`
	Posts     []*Post      `json:"posts"`
	Page      PageMeta     `json:"page"`
}

// PostDetailResponse is the rendered context of a post-detail page. Form
// mirrors the empty comment form the original page ships with.
type PostDetailResponse struct {
	Post     *Post      `json:"post"`
	Comments []*Comment `json:"comments"`
	Form     struct {
		Text string `json:"text"`
	} `json:"form"`
}
