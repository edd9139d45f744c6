// Package admin implements the write paths that change loaded post data.
//
// Every successful write flushes the loader's cache namespace after its
// transaction commits, so the next load observes the change.
package admin

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ammar0144/postloader/pkg/cache"
	"github.com/ammar0144/postloader/pkg/db"
	"github.com/ammar0144/postloader/pkg/loader"
	"github.com/ammar0144/postloader/pkg/models"
)

// ErrTenantMismatch is returned when a post of another tenant is saved
var ErrTenantMismatch = errors.New("post belongs to another tenant")

// Store provides the database handle writes run on
type Store interface {
	DB() *gorm.DB
}

// FileRemover deletes the stored content of a file before its row is
// removed
type FileRemover interface {
	RemoveFile(ctx context.Context, file models.File) error
}

type nopRemover struct{}

func (nopRemover) RemoveFile(context.Context, models.File) error { return nil }

// Service performs tenant-scoped writes
type Service struct {
	store  Store
	cache  cache.Cache
	tenant *int64
	files  FileRemover
	logger *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithTenant scopes every write to tenant; nil targets rows without one
func WithTenant(tenant *int64) Option {
	return func(s *Service) {
		if tenant == nil {
			s.tenant = nil
			return
		}
		t := *tenant
		s.tenant = &t
	}
}

// WithFileRemover sets the collaborator that removes stored file content
func WithFileRemover(r FileRemover) Option {
	return func(s *Service) {
		if r != nil {
			s.files = r
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a write service flushing c after each change
func NewService(store Store, c cache.Cache, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cache:  cache.OrNop(c),
		files:  nopRemover{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeletePosts deletes the tenant's posts among ids together with their
// files, comments and tag bindings. It returns the number of posts deleted.
func (s *Service) DeletePosts(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var postIDs []int64
		if err := tx.Model(&models.Post{}).
			Scopes(db.ScopeTenant("instance", s.tenant)).
			Where("id IN ?", ids).
			Pluck("id", &postIDs).Error; err != nil {
			return dbError("select posts", err)
		}
		if len(postIDs) == 0 {
			return nil
		}

		var files []models.File
		if err := tx.Model(&models.File{}).
			Where("post IN ?", postIDs).
			Find(&files).Error; err != nil {
			return dbError("select attached files", err)
		}
		if len(files) > 0 {
			fileIDs := make([]int64, len(files))
			for i, f := range files {
				if err := s.files.RemoveFile(ctx, f); err != nil {
					return fmt.Errorf("%w: file %d: %w", ErrFileRemoval, f.ID, err)
				}
				fileIDs[i] = f.ID
			}
			if err := tx.Where("id IN ?", fileIDs).Delete(&models.File{}).Error; err != nil {
				return dbError("delete files", err)
			}
		}

		if err := tx.Where("post IN ?", postIDs).Delete(&models.Comment{}).Error; err != nil {
			return dbError("delete comments", err)
		}
		if err := tx.Where("post IN ?", postIDs).Delete(&models.PostTagBinding{}).Error; err != nil {
			return dbError("delete tag bindings", err)
		}

		res := tx.Where("id IN ?", postIDs).Delete(&models.Post{})
		if res.Error != nil {
			return dbError("delete posts", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("posts deleted", zap.Int64("count", deleted))
	return deleted, s.flush(ctx, "delete posts")
}

// DeleteComments deletes the comments among ids that belong to the
// tenant's posts and returns how many were deleted
func (s *Service) DeleteComments(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// select first: MySQL rejects a subquery on the table being deleted from
		var commentIDs []int64
		if err := tx.Model(&models.Comment{}).
			Joins("INNER JOIN "+models.TablePost+" ON "+models.TablePost+".id = "+models.TableComment+".post").
			Scopes(db.ScopeTenant(models.TablePost+".instance", s.tenant)).
			Where(models.TableComment+".id IN ?", ids).
			Pluck(models.TableComment+".id", &commentIDs).Error; err != nil {
			return dbError("select comments", err)
		}
		if len(commentIDs) == 0 {
			return nil
		}

		res := tx.Where("id IN ?", commentIDs).Delete(&models.Comment{})
		if res.Error != nil {
			return dbError("delete comments", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("comments deleted", zap.Int64("count", deleted))
	return deleted, s.flush(ctx, "delete comments")
}

// AttachFile marks a file visible. It reports whether a row changed; the
// cache is only flushed when one did.
func (s *Service) AttachFile(ctx context.Context, id int64) (bool, error) {
	return s.setFileVisible(ctx, id, true)
}

// DetachFile marks a file hidden. It reports whether a row changed; the
// cache is only flushed when one did.
func (s *Service) DetachFile(ctx context.Context, id int64) (bool, error) {
	return s.setFileVisible(ctx, id, false)
}

func (s *Service) setFileVisible(ctx context.Context, id int64, visible bool) (bool, error) {
	res := s.store.DB().WithContext(ctx).
		Model(&models.File{}).
		Scopes(db.ScopeTenant("instance", s.tenant)).
		Where("id = ?", id).
		Update("visible", visible)
	if res.Error != nil {
		return false, dbError("update file visibility", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, s.flush(ctx, "set file visibility")
}

// DeleteFile removes the tenant's file with id. It reports false when no
// such file exists.
func (s *Service) DeleteFile(ctx context.Context, id int64) (bool, error) {
	var file models.File
	err := s.store.DB().WithContext(ctx).
		Scopes(db.ScopeTenant("instance", s.tenant)).
		Where("id = ?", id).
		First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dbError("select file", err)
	}

	if err := s.files.RemoveFile(ctx, file); err != nil {
		return false, fmt.Errorf("%w: file %d: %w", ErrFileRemoval, file.ID, err)
	}
	if err := s.store.DB().WithContext(ctx).Delete(&file).Error; err != nil {
		return false, dbError("delete file", err)
	}
	return true, s.flush(ctx, "delete file")
}

// SavePost writes post through its binding. A post without one is bound
// to the service's database and written whole.
func (s *Service) SavePost(ctx context.Context, post *models.Post) error {
	if !sameTenant(post.Instance, s.tenant) {
		return ErrTenantMismatch
	}
	if !post.Bound() {
		post.Bind(s.store.DB(), nil)
	}
	if err := post.Save(ctx); err != nil {
		return dbError("save post", err)
	}
	return s.flush(ctx, "save post")
}

func (s *Service) flush(ctx context.Context, op string) error {
	if err := s.cache.FlushNamespace(ctx, loader.Namespace); err != nil {
		s.logger.Error("cache flush failed after commit",
			zap.String("op", op),
			zap.String("namespace", loader.Namespace),
			zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrFlushFailed, op, err)
	}
	return nil
}

func sameTenant(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
