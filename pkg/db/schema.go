package db

import (
	"context"
	"fmt"

	"github.com/ammar0144/postloader/pkg/models"
)

// visibleCommentCountView counts published, non-spam comments per post
var visibleCommentCountView = fmt.Sprintf(
	"SELECT %[1]s.id AS post, %[1]s.instance AS instance, COUNT(%[2]s.id) AS visible_comment_count "+
		"FROM %[1]s LEFT JOIN %[2]s ON %[2]s.post = %[1]s.id AND %[2]s.status = %[3]d AND %[2]s.spam = 0 "+
		"GROUP BY %[1]s.id, %[1]s.instance",
	models.TablePost, models.TableComment, models.CommentStatusPublished,
)

// Migrate creates or updates the blog tables and the comment count view
func (m *Manager) Migrate(ctx context.Context) error {
	tx := m.db.WithContext(ctx)
	if err := tx.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}
	ddl := m.dialect.CreateView(models.ViewPostVisibleCommentCount, visibleCommentCountView)
	if err := tx.Exec(ddl).Error; err != nil {
		return fmt.Errorf("failed to create view %s: %w", models.ViewPostVisibleCommentCount, err)
	}
	return nil
}
