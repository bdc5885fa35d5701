package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tazhibaev/lending-service/internal/errs"
	"github.com/tazhibaev/lending-service/internal/model"
)

var borrowerColumns = []string{
	"id", "name", "email", "borrowed_books", "status", "created_at", "deleted_at",
}

// borrowerStatusExpr derives active/overdue from the borrower's open loans.
// Placeholders: $n = borrower id, $n+1 = now.
const borrowerStatusExpr = `case when exists(
	select 1 from transactions
	where borrower_id = %[1]s and status = 'borrowed' and due_date < %[2]s
) then 'overdue' else 'active' end`

func (r *repository) CreateBorrower(ctx context.Context, req model.CreateBorrowerRequest) (model.Borrower, error) {
	q, args, err := qb.Insert(borrowersTableName).
		Columns("name", "email").
		Values(req.Name, req.Email).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Borrower{}, err
	}
	var b model.Borrower
	if err := r.db.GetContext(ctx, &b, q, args...); err != nil {
		if isUniqueViolation(err) {
			return model.Borrower{}, errs.ErrEmailTaken
		}
		r.log.Error("CreateBorrower", zap.String("q", q), zap.Any("args", args))
		return model.Borrower{}, err
	}
	return b, nil
}

func (r *repository) GetBorrowerByEmail(ctx context.Context, email string) (model.Borrower, error) {
	return r.borrowerBy(ctx, sq.Eq{"email": email, "deleted_at": nil})
}

func (r *repository) getBorrower(ctx context.Context, id int) (model.Borrower, error) {
	return r.borrowerBy(ctx, sq.Eq{"id": id, "deleted_at": nil})
}

func (r *repository) borrowerBy(ctx context.Context, pred sq.Eq) (model.Borrower, error) {
	q, args, err := qb.Select(borrowerColumns...).
		From(borrowersTableName).
		Where(pred).
		ToSql()
	if err != nil {
		return model.Borrower{}, err
	}
	var b model.Borrower
	if err := r.db.GetContext(ctx, &b, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Borrower{}, errs.ErrNotFound
		}
		return model.Borrower{}, err
	}
	return b, nil
}

// RefreshBorrowerStatus re-derives status on read, so a loan that went
// overdue purely by elapsed time is reflected without any write event.
func (r *repository) RefreshBorrowerStatus(ctx context.Context, id int, now time.Time) (model.Borrower, error) {
	q := fmt.Sprintf(`update %s set status = %s where id = $1 and deleted_at is null returning %s`,
		borrowersTableName,
		fmt.Sprintf(borrowerStatusExpr, "$1", "$2"),
		strings.Join(borrowerColumns, ", "))

	var b model.Borrower
	if err := r.db.GetContext(ctx, &b, q, id, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Borrower{}, errs.ErrNotFound
		}
		return model.Borrower{}, err
	}
	return b, nil
}

func (r *repository) ListBorrowers(ctx context.Context, page, size int) (model.ListBorrowers, error) {
	q := qb.Select(borrowerColumns...).
		From(borrowersTableName).
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("created_at desc")

	if page != 0 && size != 0 {
		q = q.Limit(uint64(size)).Offset(uint64((page - 1) * size))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.ListBorrowers{}, err
	}

	items := make([]model.Borrower, 0)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return model.ListBorrowers{}, err
	}
	return model.ListBorrowers{
		Paging: model.Paging{
			Page:          page,
			PageSize:      size,
			TotalElements: len(items),
		},
		Items: items,
	}, nil
}

func (r *repository) ListBorrowerLoans(ctx context.Context, borrowerID int) ([]model.Transaction, error) {
	q, args, err := qb.Select(transactionColumns...).
		From(transactionsTableName).
		Where(sq.Eq{"borrower_id": borrowerID, "status": model.StatusBorrowed}).
		OrderBy("borrowed_at desc").
		ToSql()
	if err != nil {
		return nil, err
	}
	items := make([]model.Transaction, 0)
	if err := r.db.SelectContext(ctx, &items, q, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) UpdateBorrower(ctx context.Context, id int, req model.UpdateBorrowerRequest) (model.Borrower, error) {
	if req == (model.UpdateBorrowerRequest{}) {
		return r.getBorrower(ctx, id)
	}
	upd := qb.Update(borrowersTableName).
		Where(sq.Eq{"id": id, "deleted_at": nil})
	if req.Name != nil {
		upd = upd.Set("name", *req.Name)
	}
	if req.Email != nil {
		upd = upd.Set("email", *req.Email)
	}

	q, args, err := upd.Suffix("returning *").ToSql()
	if err != nil {
		return model.Borrower{}, err
	}
	var b model.Borrower
	if err := r.db.GetContext(ctx, &b, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Borrower{}, errs.ErrNotFound
		}
		if isUniqueViolation(err) {
			return model.Borrower{}, errs.ErrEmailTaken
		}
		return model.Borrower{}, err
	}
	return b, nil
}

// DeleteBorrower soft-deletes, refused while any loan is still open.
func (r *repository) DeleteBorrower(ctx context.Context, id int) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		var b model.Borrower
		q := fmt.Sprintf(`select %s from %s where id = $1 and deleted_at is null for update`,
			strings.Join(borrowerColumns, ", "), borrowersTableName)
		if err := tx.GetContext(ctx, &b, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if b.BorrowedBooks > 0 {
			return errs.ErrHasActiveLoans
		}
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`update %s set deleted_at = now() where id = $1`, borrowersTableName), id)
		return err
	})
}
