package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/pulsefeed/pulse/internal/domain"
)

// GormGroupRepository implements GroupRepository using GORM.
type GormGroupRepository struct {
	db *gorm.DB
}

// NewGormGroupRepository creates a new GORM-backed group repository.
func NewGormGroupRepository(db *gorm.DB) *GormGroupRepository {
	return &GormGroupRepository{db: db}
}

// Create creates a new group.
func (r *GormGroupRepository) Create(ctx context.Context, group *domain.Group) error {
	model := domain.GroupToModel(group)
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrGroupSlugExists
		}
		return result.Error
	}

	group.ID = model.ID
	group.CreatedAt = model.CreatedAt
	return nil
}

// GetByID retrieves a group by ID.
func (r *GormGroupRepository) GetByID(ctx context.Context, id uint) (*domain.Group, error) {
	var model domain.GroupModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// GetBySlug retrieves a group by its URL slug.
func (r *GormGroupRepository) GetBySlug(ctx context.Context, slug string) (*domain.Group, error) {
	var model domain.GroupModel
	result := r.db.WithContext(ctx).First(&model, "slug = ?", slug)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// List returns all groups ordered by title.
func (r *GormGroupRepository) List(ctx context.Context) ([]*domain.Group, error) {
	var models []domain.GroupModel
	if err := r.db.WithContext(ctx).Order("title").Find(&models).Error; err != nil {
		return nil, err
	}

	groups := make([]*domain.Group, 0, len(models))
	for i := range models {
		groups = append(groups, models[i].ToDomain())
	}
	return groups, nil
}

// Delete removes a group. Posts referencing it keep existing with their
// group reference cleared, inside the same transaction.
func (r *GormGroupRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.PostModel{}).
			Where("group_id = ?", id).
			Update("group_id", nil).Error; err != nil {
			return err
		}

		result := tx.Delete(&domain.GroupModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrGroupNotFound
		}
		return nil
	})
}

var _ GroupRepository = (*GormGroupRepository)(nil)
