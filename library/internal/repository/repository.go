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
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Repository interface {
	ListBooks(ctx context.Context) ([]model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)
	CreateBook(ctx context.Context, book model.Book) (model.Book, error)
	UpdateBook(ctx context.Context, book model.Book) (model.Book, error)
	PatchBook(ctx context.Context, id int64, patch model.BookPatch) (model.Book, error)
	DeleteBook(ctx context.Context, id int64) error

	CreateBorrowing(ctx context.Context, borrowing model.Borrowing, user auth.Caller) (model.Borrowing, model.Book, error)
	ReturnBorrowing(ctx context.Context, id int64, actualReturnDate time.Time) (model.Borrowing, error)
	ListBorrowings(ctx context.Context, filter model.BorrowingFilter) ([]model.BorrowingDetail, error)
	GetBorrowing(ctx context.Context, id int64) (model.BorrowingDetail, error)
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	booksTableName      = `books`
	borrowingsTableName = `borrowings`
	usersTableName      = `users`
)

var (
	qb          = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	bookColumns = []string{"id", "title", "author", "cover", "inventory", "daily_fee"}
)

func (r *repository) ListBooks(ctx context.Context) ([]model.Book, error) {
	query, args, err := qb.Select(bookColumns...).
		From(booksTableName).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}

	books := make([]model.Book, 0)
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *repository) GetBook(ctx context.Context, id int64) (model.Book, error) {
	query, args, err := qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var book model.Book
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) CreateBook(ctx context.Context, book model.Book) (model.Book, error) {
	query, args, err := qb.Insert(booksTableName).
		Columns("title", "author", "cover", "inventory", "daily_fee").
		Values(book.Title, book.Author, book.Cover, book.Inventory, book.DailyFee).
		Suffix("returning " + strings.Join(bookColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var res model.Book
	if err := r.db.GetContext(ctx, &res, query, args...); err != nil {
		r.log.Error("CreateBook", zap.String("q", query), zap.Any("args", args), zap.Error(err))
		return model.Book{}, classify(err)
	}
	return res, nil
}

func (r *repository) UpdateBook(ctx context.Context, book model.Book) (model.Book, error) {
	query, args, err := qb.Update(booksTableName).
		SetMap(map[string]interface{}{
			"title":     book.Title,
			"author":    book.Author,
			"cover":     book.Cover,
			"inventory": book.Inventory,
			"daily_fee": book.DailyFee,
		}).
		Where(sq.Eq{"id": book.ID}).
		Suffix("returning " + strings.Join(bookColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var res model.Book
	if err := r.db.GetContext(ctx, &res, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		r.log.Error("UpdateBook", zap.String("q", query), zap.Any("args", args), zap.Error(err))
		return model.Book{}, classify(err)
	}
	return res, nil
}

// PatchBook locks the book row, validates the patched book and sets only the
// provided columns, so a concurrent inventory change is never overwritten.
func (r *repository) PatchBook(ctx context.Context, id int64, patch model.BookPatch) (model.Book, error) {
	var res model.Book
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		q, args, err := qb.Select(bookColumns...).
			From(booksTableName).
			Where(sq.Eq{"id": id}).
			Suffix("for update").
			ToSql()
		if err != nil {
			return err
		}
		var current model.Book
		if err := tx.GetContext(ctx, &current, q, args...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return errors.Wrap(err, "lock book")
		}
		if err := patch.Apply(current).Validate(); err != nil {
			return err
		}

		set := patch.Columns()
		if len(set) == 0 {
			res = current
			return nil
		}
		q, args, err = qb.Update(booksTableName).
			SetMap(set).
			Where(sq.Eq{"id": id}).
			Suffix("returning " + strings.Join(bookColumns, ", ")).
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &res, q, args...); err != nil {
			r.log.Error("PatchBook", zap.String("q", q), zap.Any("args", args), zap.Error(err))
			return errors.Wrap(err, "patch book")
		}
		return nil
	})
	if err != nil {
		return model.Book{}, classify(err)
	}
	return res, nil
}

// DeleteBook relies on the schema cascade to drop the book's borrowings.
func (r *repository) DeleteBook(ctx context.Context, id int64) error {
	query, args, err := qb.Delete(booksTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}
