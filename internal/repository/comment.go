package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

type CommentRepository struct {
	q sqlx.ExtContext
}

func NewCommentRepository(q sqlx.ExtContext) *CommentRepository {
	return &CommentRepository{q: q}
}

const commentColumns = ` id, instance_id, author_id, text, is_internal, attachments, parent_id, mentioned_users, created `

func (r *CommentRepository) Save(ctx context.Context, c *domain.Comment) (int64, error) {
	base := `INSERT INTO comments (instance_id, author_id, text, is_internal, attachments, parent_id, mentioned_users, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := insertReturningID(ctx, r.q, base,
		c.InstanceID, c.AuthorID, c.Text, c.IsInternal, c.Attachments, c.ParentID, c.MentionedUsers,
		formatDateInDatabase(r.q, c.Created))
	if err != nil {
		return 0, err
	}
	c.ID = id
	return id, nil
}

func (r *CommentRepository) FindByID(ctx context.Context, id int64) (*domain.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = ?`
	var c domain.Comment
	if err := sqlx.GetContext(ctx, r.q, &c, r.q.Rebind(query), id); err != nil {
		return nil, notFound(classify(err), "comment %d not found", id)
	}
	return &c, nil
}

// FindAllByInstanceID lists comments oldest first; internal ones only when asked.
func (r *CommentRepository) FindAllByInstanceID(ctx context.Context, instanceID string, includeInternal bool) ([]domain.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE instance_id = ?`
	args := []any{instanceID}
	if !includeInternal {
		query += ` AND is_internal = ?`
		args = append(args, false)
	}
	query += ` ORDER BY created ASC, id ASC`
	out := make([]domain.Comment, 0)
	if err := sqlx.SelectContext(ctx, r.q, &out, r.q.Rebind(query), args...); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
