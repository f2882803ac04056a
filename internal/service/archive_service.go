package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/mapper"
	"github.com/straye-as/shortage-api/internal/repository"
	"github.com/straye-as/shortage-api/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ArchiveService keeps uploaded sheets and exported reports in object storage
type ArchiveService struct {
	archiveRepo *repository.ArchiveRepository
	storage     storage.Storage
	logger      *zap.Logger
}

// NewArchiveService creates a new archive service instance
func NewArchiveService(archiveRepo *repository.ArchiveRepository, store storage.Storage, logger *zap.Logger) *ArchiveService {
	return &ArchiveService{
		archiveRepo: archiveRepo,
		storage:     store,
		logger:      logger,
	}
}

// Save writes data to storage and records its metadata
func (s *ArchiveService) Save(ctx context.Context, kind domain.ArchiveKind, filename, contentType string, data io.Reader, createdBy string) (*domain.ArchivedFileDTO, error) {
	if s.storage == nil {
		return nil, ErrStorageUnavailable
	}

	storagePath, size, err := s.storage.Upload(ctx, filename, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	file := &domain.ArchivedFile{
		Kind:        kind,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		StoragePath: storagePath,
		CreatedBy:   createdBy,
	}
	if err := s.archiveRepo.Create(ctx, file); err != nil {
		if delErr := s.storage.Delete(ctx, storagePath); delErr != nil {
			s.logger.Warn("failed to cleanup file from storage after DB error",
				zap.Error(delErr),
				zap.String("storagePath", storagePath),
			)
		}
		return nil, fmt.Errorf("failed to create archive record: %w", err)
	}

	s.logger.Info("File archived",
		zap.String("kind", string(kind)),
		zap.String("filename", filename),
		zap.Int64("size", size),
	)

	dto := mapper.ToArchivedFileDTO(file)
	return &dto, nil
}

// List returns archived files, newest first
func (s *ArchiveService) List(ctx context.Context, page, pageSize int, kind domain.ArchiveKind) (*domain.PaginatedResponse, error) {
	page, pageSize = clampPage(page, pageSize)

	files, total, err := s.archiveRepo.List(ctx, page, pageSize, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived files: %w", err)
	}

	dtos := make([]domain.ArchivedFileDTO, len(files))
	for i := range files {
		dtos[i] = mapper.ToArchivedFileDTO(&files[i])
	}

	return &domain.PaginatedResponse{
		Data:       dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// Download opens an archived file. The caller closes the reader.
func (s *ArchiveService) Download(ctx context.Context, id uuid.UUID) (*domain.ArchivedFileDTO, io.ReadCloser, error) {
	if s.storage == nil {
		return nil, nil, ErrStorageUnavailable
	}
	file, err := s.get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.storage.Download(ctx, file.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download file: %w", err)
	}

	dto := mapper.ToArchivedFileDTO(file)
	return &dto, rc, nil
}

// Delete removes an archived file from storage and its record
func (s *ArchiveService) Delete(ctx context.Context, id uuid.UUID) error {
	if s.storage == nil {
		return ErrStorageUnavailable
	}
	file, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.storage.Delete(ctx, file.StoragePath); err != nil {
		return fmt.Errorf("failed to delete file from storage: %w", err)
	}
	if err := s.archiveRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete archive record: %w", err)
	}

	s.logger.Info("Archived file deleted", zap.String("id", id.String()), zap.String("filename", file.Filename))
	return nil
}

func (s *ArchiveService) get(ctx context.Context, id uuid.UUID) (*domain.ArchivedFile, error) {
	file, err := s.archiveRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArchiveNotFound
		}
		return nil, fmt.Errorf("failed to get archived file: %w", err)
	}
	return file, nil
}
