package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tazhibaev/lending-service/internal/errs"
	"github.com/tazhibaev/lending-service/internal/model"
)

var bookColumns = []string{
	"id", "title", "author", "genre", "description", "publisher",
	"publication_year", "language", "total_copies", "available_copies",
	"is_active", "created_at", "deleted_at",
}

func (r *repository) CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error) {
	lang := req.Language
	if lang == "" {
		lang = "English"
	}
	q, args, err := qb.Insert(booksTableName).
		Columns("title", "author", "genre", "description", "publisher",
			"publication_year", "language", "total_copies", "available_copies").
		Values(req.Title, req.Author, req.Genre, req.Description, req.Publisher,
			req.PublicationYear, lang, req.TotalCopies, req.TotalCopies).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := r.db.GetContext(ctx, &book, q, args...); err != nil {
		r.log.Error("CreateBook", zap.String("q", q), zap.Any("args", args))
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) GetBook(ctx context.Context, id int) (model.Book, error) {
	q, args, err := qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := r.db.GetContext(ctx, &book, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) ListBooks(ctx context.Context, f model.BookFilter) (model.ListBooks, error) {
	q := qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"deleted_at": nil})

	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		q = q.Where(sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"author": pattern},
			sq.ILike{"genre": pattern},
		})
	}
	if f.Genre != "" {
		q = q.Where(sq.Eq{"genre": f.Genre})
	}
	if f.AvailableOnly {
		q = q.Where(sq.Gt{"available_copies": 0}).Where(sq.Eq{"is_active": true})
	}
	if f.ActiveOnly {
		q = q.Where(sq.Eq{"is_active": true})
	}
	if f.Page != 0 && f.Size != 0 {
		q = q.Limit(uint64(f.Size)).Offset(uint64((f.Page - 1) * f.Size))
	}

	query, args, err := q.OrderBy("created_at desc").ToSql()
	if err != nil {
		return model.ListBooks{}, err
	}
	r.log.Debug("ListBooks", zap.String("query", query), zap.Any("args", args))

	books := make([]model.Book, 0)
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return model.ListBooks{}, err
	}

	return model.ListBooks{
		Paging: model.Paging{
			Page:          f.Page,
			PageSize:      f.Size,
			TotalElements: len(books),
		},
		Items: books,
	}, nil
}

// UpdateBook applies a partial update. A total_copies change shifts
// available_copies by the same delta, so the open-loan count stays intact.
func (r *repository) UpdateBook(ctx context.Context, id int, req model.UpdateBookRequest) (model.Book, error) {
	var book model.Book
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var current model.Book
		q := fmt.Sprintf(`select %s from %s where id = $1 and deleted_at is null for update`,
			strings.Join(bookColumns, ", "), booksTableName)
		if err := tx.GetContext(ctx, &current, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}

		if req == (model.UpdateBookRequest{}) {
			book = current
			return nil
		}

		upd := qb.Update(booksTableName).Where(sq.Eq{"id": id})
		if req.Title != nil {
			upd = upd.Set("title", *req.Title)
		}
		if req.Author != nil {
			upd = upd.Set("author", *req.Author)
		}
		if req.Genre != nil {
			upd = upd.Set("genre", *req.Genre)
		}
		if req.Description != nil {
			upd = upd.Set("description", *req.Description)
		}
		if req.Publisher != nil {
			upd = upd.Set("publisher", *req.Publisher)
		}
		if req.PublicationYear != nil {
			upd = upd.Set("publication_year", *req.PublicationYear)
		}
		if req.Language != nil {
			upd = upd.Set("language", *req.Language)
		}
		if req.IsActive != nil {
			upd = upd.Set("is_active", *req.IsActive)
		}
		if req.TotalCopies != nil {
			delta := *req.TotalCopies - current.TotalCopies
			upd = upd.
				Set("total_copies", *req.TotalCopies).
				Set("available_copies", sq.Expr("available_copies + ?", delta))
		}

		query, args, err := upd.Suffix("returning *").ToSql()
		if err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &book, query, args...); err != nil {
			if isCheckViolation(err) {
				// shrinking total below the number of copies still out
				return errs.ErrHasActiveLoans
			}
			r.log.Error("UpdateBook", zap.String("q", query), zap.Any("args", args))
			return err
		}
		return nil
	})
	if err != nil {
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) DeleteBook(ctx context.Context, id int) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		var open bool
		q := fmt.Sprintf(`select exists(select 1 from %s where book_id = $1 and status = $2)`, transactionsTableName)
		if err := tx.GetContext(ctx, &open, q, id, model.StatusBorrowed); err != nil {
			return err
		}
		if open {
			return errs.ErrHasActiveLoans
		}

		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`update %s set deleted_at = now() where id = $1 and deleted_at is null`, booksTableName), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

func (r *repository) RestoreBook(ctx context.Context, id int) (model.Book, error) {
	q := fmt.Sprintf(`update %s set deleted_at = null where id = $1 and deleted_at is not null returning %s`,
		booksTableName, strings.Join(bookColumns, ", "))
	var book model.Book
	if err := r.db.GetContext(ctx, &book, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}
