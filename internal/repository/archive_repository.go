package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/domain"
	"gorm.io/gorm"
)

// ArchiveRepository handles archived file metadata
type ArchiveRepository struct {
	db *gorm.DB
}

// NewArchiveRepository creates a new archive repository instance
func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// Create stores metadata for a file that was written to object storage
func (r *ArchiveRepository) Create(ctx context.Context, file *domain.ArchivedFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

// GetByID retrieves archived file metadata by ID
func (r *ArchiveRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ArchivedFile, error) {
	var file domain.ArchivedFile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// List returns archived files, newest first, optionally narrowed to one kind
func (r *ArchiveRepository) List(ctx context.Context, page, pageSize int, kind domain.ArchiveKind) ([]domain.ArchivedFile, int64, error) {
	var files []domain.ArchivedFile
	var total int64

	page, pageSize = normalizePagination(page, pageSize)

	query := r.db.WithContext(ctx).Model(&domain.ArchivedFile{})
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&files).Error
	if err != nil {
		return nil, 0, err
	}
	return files, total, nil
}

// Delete removes archived file metadata
func (r *ArchiveRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.ArchivedFile{}, "id = ?", id).Error
}
