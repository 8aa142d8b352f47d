package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/pulsefeed/pulse/internal/domain"
)

// GormCommentRepository implements CommentRepository using GORM.
type GormCommentRepository struct {
	db *gorm.DB
}

// NewGormCommentRepository creates a new GORM-backed comment repository.
func NewGormCommentRepository(db *gorm.DB) *GormCommentRepository {
	return &GormCommentRepository{db: db}
}

// Create persists a new comment. ID and Created are assigned by the store.
func (r *GormCommentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	model := domain.CommentModel{
		PostID:   comment.PostID,
		AuthorID: comment.AuthorID,
		Text:     comment.Text,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}

	comment.ID = model.ID
	comment.Created = model.Created
	return nil
}

// ListByPost returns a post's comments newest-first with authors preloaded.
func (r *GormCommentRepository) ListByPost(ctx context.Context, postID uint) ([]*domain.Comment, error) {
	var models []domain.CommentModel
	err := r.db.WithContext(ctx).
		Preload("Author").
		Where("post_id = ?", postID).
		Order("created DESC, id DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	comments := make([]*domain.Comment, 0, len(models))
	for i := range models {
		comments = append(comments, models[i].ToDomain())
	}
	return comments, nil
}

// CountByPost returns the number of comments on a post.
func (r *GormCommentRepository) CountByPost(ctx context.Context, postID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.CommentModel{}).
		Where("post_id = ?", postID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

var _ CommentRepository = (*GormCommentRepository)(nil)
