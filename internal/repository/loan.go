package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tazhibaev/lending-service/internal/errs"
	"github.com/tazhibaev/lending-service/internal/model"
)

var transactionColumns = []string{
	"id", "transaction_uid", "book_id", "borrower_id",
	"borrowed_at", "due_date", "returned_at", "status",
}

// Borrow is the borrow unit of work: check book, check duplicate loan,
// reserve a copy, record the loan, bump the borrower counter. The book row
// is locked first and the borrower row second, everywhere, so concurrent
// borrow/return calls serialize instead of deadlocking.
func (r *repository) Borrow(ctx context.Context, bookID, borrowerID int, now time.Time) (model.LoanResult, error) {
	var res model.LoanResult
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var book model.Book
		q := fmt.Sprintf(`select %s from %s where id = $1 and deleted_at is null for update`,
			strings.Join(bookColumns, ", "), booksTableName)
		if err := tx.GetContext(ctx, &book, q, bookID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if !book.IsActive {
			return errs.ErrBookInactive
		}

		var open bool
		q = fmt.Sprintf(`select exists(select 1 from %s where book_id = $1 and borrower_id = $2 and status = $3)`,
			transactionsTableName)
		if err := tx.GetContext(ctx, &open, q, bookID, borrowerID, model.StatusBorrowed); err != nil {
			return err
		}
		if open {
			return errs.ErrAlreadyBorrowed
		}

		if book.AvailableCopies <= 0 {
			return errs.ErrNoCopiesAvailable
		}
		// conditional decrement: the guard re-checks under the row lock
		q = fmt.Sprintf(`update %s set available_copies = available_copies - 1
			where id = $1 and available_copies > 0 returning %s`,
			booksTableName, strings.Join(bookColumns, ", "))
		if err := tx.GetContext(ctx, &res.Book, q, bookID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNoCopiesAvailable
			}
			return err
		}

		insQ, args, err := qb.Insert(transactionsTableName).
			Columns("transaction_uid", "book_id", "borrower_id", "borrowed_at", "due_date", "status").
			Values(uuid.New(), bookID, borrowerID, now, now.Add(model.LoanPeriod), model.StatusBorrowed).
			Suffix("returning *").
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &res.Transaction, insQ, args...); err != nil {
			r.log.Error("Borrow insert", zap.String("q", insQ), zap.Any("args", args))
			return err
		}

		q = fmt.Sprintf(`update %s set borrowed_books = borrowed_books + 1, status = %s
			where id = $1 and deleted_at is null returning %s`,
			borrowersTableName,
			fmt.Sprintf(borrowerStatusExpr, "$1", "$2"),
			strings.Join(borrowerColumns, ", "))
		if err := tx.GetContext(ctx, &res.Borrower, q, borrowerID, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return model.LoanResult{}, err
	}
	return res, nil
}

// Return closes a loan and releases its copy in one unit of work. The
// transaction row is locked to make double returns race-free.
func (r *repository) Return(ctx context.Context, transactionID, actingBorrowerID int, isAdmin bool, now time.Time) (model.LoanResult, error) {
	var res model.LoanResult
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var tr model.Transaction
		q := fmt.Sprintf(`select %s from %s where id = $1 for update`,
			strings.Join(transactionColumns, ", "), transactionsTableName)
		if err := tx.GetContext(ctx, &tr, q, transactionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if !isAdmin && tr.BorrowerID != actingBorrowerID {
			return errs.ErrUnauthorized
		}
		if tr.Status == model.StatusReturned {
			return errors.Wrapf(errs.ErrAlreadyReturned, "returned at %s",
				tr.ReturnedAt.Format(time.RFC3339))
		}

		q = fmt.Sprintf(`update %s set status = $2, returned_at = $3 where id = $1 returning %s`,
			transactionsTableName, strings.Join(transactionColumns, ", "))
		if err := tx.GetContext(ctx, &res.Transaction, q, transactionID, model.StatusReturned, now); err != nil {
			return err
		}

		// the guard should be unreachable with correct callers, it protects
		// the ledger invariant rather than any expected flow
		q = fmt.Sprintf(`update %s set available_copies = available_copies + 1
			where id = $1 and available_copies < total_copies returning %s`,
			booksTableName, strings.Join(bookColumns, ", "))
		if err := tx.GetContext(ctx, &res.Book, q, tr.BookID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrOverRelease
			}
			return err
		}

		q = fmt.Sprintf(`update %s set borrowed_books = borrowed_books - 1, status = %s
			where id = $1 returning %s`,
			borrowersTableName,
			fmt.Sprintf(borrowerStatusExpr, "$1", "$2"),
			strings.Join(borrowerColumns, ", "))
		if err := tx.GetContext(ctx, &res.Borrower, q, tr.BorrowerID, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return model.LoanResult{}, err
	}
	return res, nil
}

func (r *repository) GetTransaction(ctx context.Context, id int) (model.Transaction, error) {
	q, args, err := qb.Select(transactionColumns...).
		From(transactionsTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Transaction{}, err
	}
	var tr model.Transaction
	if err := r.db.GetContext(ctx, &tr, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Transaction{}, errs.ErrNotFound
		}
		return model.Transaction{}, err
	}
	return tr, nil
}

func (r *repository) ListTransactions(ctx context.Context, f model.TransactionFilter, now time.Time) (model.ListTransactions, error) {
	q := qb.Select(transactionColumns...).
		From(transactionsTableName)

	if f.BorrowerID != 0 {
		q = q.Where(sq.Eq{"borrower_id": f.BorrowerID})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}
	if f.OverdueOnly {
		q = q.Where(sq.Eq{"status": model.StatusBorrowed}).
			Where(sq.Lt{"due_date": now})
	}
	if f.Page != 0 && f.Size != 0 {
		q = q.Limit(uint64(f.Size)).Offset(uint64((f.Page - 1) * f.Size))
	}

	query, args, err := q.OrderBy("borrowed_at desc").ToSql()
	if err != nil {
		return model.ListTransactions{}, err
	}
	r.log.Debug("ListTransactions", zap.String("query", query), zap.Any("args", args))

	items := make([]model.Transaction, 0)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return model.ListTransactions{}, err
	}
	return model.ListTransactions{
		Paging: model.Paging{
			Page:          f.Page,
			PageSize:      f.Size,
			TotalElements: len(items),
		},
		Items: items,
	}, nil
}
