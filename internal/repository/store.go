package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
)

// Store groups the repositories over one connection pool. A Store handed to
// an InTx callback is bound to the transaction; every repository on it runs
// inside that transaction.
type Store struct {
	db    *sqlx.DB
	clock core.Clock

	Definitions *DefinitionRepository
	Instances   *InstanceRepository
	Steps       *InstanceStepRepository
	Approvals   *ApprovalRepository
	Comments    *CommentRepository
	History     *HistoryRepository
	Users       *UserRepository
	Executors   *ExecutorRepository
	Facts       *FactRepository
}

func NewStore(db *sqlx.DB, clock core.Clock) *Store {
	s := bind(db, clock)
	s.db = db
	return s
}

func bind(q sqlx.ExtContext, clock core.Clock) *Store {
	return &Store{
		clock:       clock,
		Definitions: NewDefinitionRepository(q, clock),
		Instances:   NewInstanceRepository(q, clock),
		Steps:       NewInstanceStepRepository(q),
		Approvals:   NewApprovalRepository(q),
		Comments:    NewCommentRepository(q),
		History:     NewHistoryRepository(q),
		Users:       NewUserRepository(q, clock),
		Executors:   NewExecutorRepository(q),
		Facts:       NewFactRepository(q),
	}
}

func (s *Store) DB() *sqlx.DB { return s.db }

// InTx runs fn inside one transaction, committing when fn returns nil.
// Calling InTx on a transaction bound store reuses the open transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) (err error) {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
			}
		}
	}()
	if err = fn(bind(tx, s.clock)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
