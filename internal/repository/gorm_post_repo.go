package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/pulsefeed/pulse/internal/domain"
)

// GormPostRepository implements PostRepository using GORM.
type GormPostRepository struct {
	db *gorm.DB
}

// NewGormPostRepository creates a new GORM-backed post repository.
func NewGormPostRepository(db *gorm.DB) *GormPostRepository {
	return &GormPostRepository{db: db}
}

// Create persists a new post. ID and PubDate are assigned by the store.
func (r *GormPostRepository) Create(ctx context.Context, post *domain.Post) error {
	model := domain.PostModel{
		Text:     post.Text,
		AuthorID: post.AuthorID,
		GroupID:  post.GroupID,
		ImageKey: post.ImageKey,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}

	post.ID = model.ID
	post.PubDate = model.PubDate
	return nil
}

// GetByID retrieves a post with its author and group preloaded.
func (r *GormPostRepository) GetByID(ctx context.Context, id uint) (*domain.Post, error) {
	var model domain.PostModel
	result := r.db.WithContext(ctx).
		Preload("Author").
		Preload("Group").
		First(&model, "posts.id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// Update persists the mutable fields of a post in place. Author and
// publication date never change.
func (r *GormPostRepository) Update(ctx context.Context, post *domain.Post) error {
	result := r.db.WithContext(ctx).Model(&domain.PostModel{}).
		Where("id = ?", post.ID).
		Updates(map[string]interface{}{
			"text":      post.Text,
			"group_id":  post.GroupID,
			"image_key": post.ImageKey,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPostNotFound
	}
	return nil
}

// Delete removes a post and all of its comments in one transaction.
func (r *GormPostRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).
			Delete(&domain.CommentModel{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&domain.PostModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrPostNotFound
		}
		return nil
	})
}

// List returns a window of posts matching the filter, newest-first.
func (r *GormPostRepository) List(ctx context.Context, f PostFilter, offset, limit int) ([]*domain.Post, error) {
	var models []domain.PostModel
	query := r.applyFilter(r.db.WithContext(ctx), f).
		Preload("Author").
		Preload("Group").
		Order("pub_date DESC, id DESC").
		Offset(offset).
		Limit(limit)

	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	posts := make([]*domain.Post, 0, len(models))
	for i := range models {
		posts = append(posts, models[i].ToDomain())
	}
	return posts, nil
}

// Count returns the number of posts matching the filter.
func (r *GormPostRepository) Count(ctx context.Context, f PostFilter) (int64, error) {
	var count int64
	err := r.applyFilter(r.db.WithContext(ctx).Model(&domain.PostModel{}), f).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter translates a PostFilter into WHERE clauses.
func (r *GormPostRepository) applyFilter(db *gorm.DB, f PostFilter) *gorm.DB {
	if f.AuthorID != "" {
		db = db.Where("posts.author_id = ?", f.AuthorID)
	}
	if f.GroupID != nil {
		db = db.Where("posts.group_id = ?", *f.GroupID)
	}
	if f.FollowedBy != "" {
		sub := r.db.Model(&domain.FollowModel{}).
			Select("author_id").
			Where("user_id = ?", f.FollowedBy)
		db = db.Where("posts.author_id IN (?)", sub)
	}
	return db
}

var _ PostRepository = (*GormPostRepository)(nil)
