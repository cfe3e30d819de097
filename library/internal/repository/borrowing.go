package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/Astemirdum/library-borrowing/library/internal/errs"
	"github.com/Astemirdum/library-borrowing/library/internal/model"
	"github.com/Astemirdum/library-borrowing/pkg/auth"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var borrowingColumns = []string{"id", "borrow_date", "expected_return_date", "actual_return_date", "book_id", "user_id"}

// CreateBorrowing takes one copy of the book and opens a borrowing for user
// in a single transaction.
func (r *repository) CreateBorrowing(ctx context.Context, borrowing model.Borrowing, user auth.Caller) (model.Borrowing, model.Book, error) {
	var (
		res  model.Borrowing
		book model.Book
	)
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		q, args, err := qb.Update(booksTableName).
			Set("inventory", sq.Expr("inventory - 1")).
			Where(sq.Eq{"id": borrowing.BookID}).
			Where(sq.Gt{"inventory": 0}).
			Suffix("returning " + strings.Join(bookColumns, ", ")).
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &book, q, args...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return r.noStockOrNotFound(ctx, tx, borrowing.BookID)
			}
			return errors.Wrap(err, "take book")
		}

		if _, err := tx.ExecContext(ctx, `
insert into users (id, email, is_staff) values ($1, $2, $3)
on conflict (id) do update set email = excluded.email, is_staff = excluded.is_staff`,
			user.ID, user.Email, user.IsStaff); err != nil {
			return errors.Wrap(err, "upsert user")
		}

		q, args, err = qb.Insert(borrowingsTableName).
			Columns("borrow_date", "expected_return_date", "actual_return_date", "book_id", "user_id").
			Values(borrowing.BorrowDate, borrowing.ExpectedReturnDate, nil, borrowing.BookID, user.ID).
			Suffix("returning " + strings.Join(borrowingColumns, ", ")).
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &res, q, args...); err != nil {
			r.log.Error("CreateBorrowing", zap.String("q", q), zap.Any("args", args), zap.Error(err))
			return errors.Wrap(err, "insert borrowing")
		}
		return nil
	})
	if err != nil {
		return model.Borrowing{}, model.Book{}, classify(err)
	}
	return res, book, nil
}

func (r *repository) noStockOrNotFound(ctx context.Context, tx *sqlx.Tx, bookID int64) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `select exists(select 1 from books where id = $1)`, bookID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return errs.ErrNotFound
	}
	return errs.ErrNoStock
}

// ReturnBorrowing closes an open borrowing and puts the copy back in one transaction.
// The borrowing row stays locked until commit so a concurrent return sees it closed.
func (r *repository) ReturnBorrowing(ctx context.Context, id int64, actualReturnDate time.Time) (model.Borrowing, error) {
	var closed model.Borrowing
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		q, args, err := qb.Select(borrowingColumns...).
			From(borrowingsTableName).
			Where(sq.Eq{"id": id}).
			Suffix("for update").
			ToSql()
		if err != nil {
			return err
		}
		var current model.Borrowing
		if err := tx.GetContext(ctx, &current, q, args...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return errors.Wrap(err, "lock borrowing")
		}

		if closed, err = current.Close(actualReturnDate); err != nil {
			return err
		}

		q, args, err = qb.Update(borrowingsTableName).
			Set("actual_return_date", *closed.ActualReturnDate).
			Where(sq.Eq{"id": id}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrap(err, "close borrowing")
		}

		q, args, err = qb.Update(booksTableName).
			Set("inventory", sq.Expr("inventory + 1")).
			Where(sq.Eq{"id": current.BookID}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrap(err, "put book back")
		}
		return nil
	})
	if err != nil {
		return model.Borrowing{}, classify(err)
	}
	return closed, nil
}

func borrowingDetailQuery() sq.SelectBuilder {
	return qb.Select(
		"br.id", "br.borrow_date", "br.expected_return_date", "br.actual_return_date",
		`b.id as "book.id"`, `b.title as "book.title"`, `b.author as "book.author"`,
		`b.cover as "book.cover"`, `b.daily_fee as "book.daily_fee"`,
		`u.id as "user.id"`, `u.email as "user.email"`, `u.is_staff as "user.is_staff"`,
	).
		From(borrowingsTableName + " br").
		Join(booksTableName + " b on b.id = br.book_id").
		Join(usersTableName + " u on u.id = br.user_id")
}

func withFilter(q sq.SelectBuilder, filter model.BorrowingFilter) sq.SelectBuilder {
	if filter.OnlyActive {
		q = q.Where(sq.Eq{"br.actual_return_date": nil})
	}
	if filter.UserID != 0 {
		q = q.Where(sq.Eq{"br.user_id": filter.UserID})
	}
	return q
}

func (r *repository) ListBorrowings(ctx context.Context, filter model.BorrowingFilter) ([]model.BorrowingDetail, error) {
	query, args, err := withFilter(borrowingDetailQuery(), filter).
		OrderBy("br.id").
		ToSql()
	if err != nil {
		return nil, err
	}
	r.log.Debug("ListBorrowings", zap.String("query", query), zap.Any("args", args))

	items := make([]model.BorrowingDetail, 0)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) GetBorrowing(ctx context.Context, id int64) (model.BorrowingDetail, error) {
	query, args, err := borrowingDetailQuery().
		Where(sq.Eq{"br.id": id}).
		ToSql()
	if err != nil {
		return model.BorrowingDetail{}, err
	}

	var item model.BorrowingDetail
	if err := r.db.GetContext(ctx, &item, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BorrowingDetail{}, errs.ErrNotFound
		}
		return model.BorrowingDetail{}, err
	}
	return item, nil
}

func (r *repository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "db.BeginTxx")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.log.Warn("tx.Rollback", zap.Error(rbErr))
			}
			return
		}
		err = errors.Wrap(tx.Commit(), "tx.Commit")
	}()
	return fn(tx)
}

// classify maps storage errors onto the service error set.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.CheckViolation:
		if pgErr.ConstraintName == "books_inventory_check" {
			return errs.ErrNoStock
		}
		return errs.Validation(pgErr.Message)
	case pgerrcode.NumericValueOutOfRange:
		return errs.Validation("numeric value out of range")
	case pgerrcode.ForeignKeyViolation:
		return errs.ErrNotFound
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.UniqueViolation:
		return errs.ErrConflict
	}
	return err
}
