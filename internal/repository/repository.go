package repository

import (
	"context"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	sq "github.com/Masterminds/squirrel"

	"github.com/tazhibaev/lending-service/internal/model"
)

type Repository interface {
	CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error)
	GetBook(ctx context.Context, id int) (model.Book, error)
	ListBooks(ctx context.Context, f model.BookFilter) (model.ListBooks, error)
	UpdateBook(ctx context.Context, id int, req model.UpdateBookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, id int) error
	RestoreBook(ctx context.Context, id int) (model.Book, error)

	CreateBorrower(ctx context.Context, req model.CreateBorrowerRequest) (model.Borrower, error)
	GetBorrowerByEmail(ctx context.Context, email string) (model.Borrower, error)
	RefreshBorrowerStatus(ctx context.Context, id int, now time.Time) (model.Borrower, error)
	ListBorrowers(ctx context.Context, page, size int) (model.ListBorrowers, error)
	ListBorrowerLoans(ctx context.Context, borrowerID int) ([]model.Transaction, error)
	UpdateBorrower(ctx context.Context, id int, req model.UpdateBorrowerRequest) (model.Borrower, error)
	DeleteBorrower(ctx context.Context, id int) error

	Borrow(ctx context.Context, bookID, borrowerID int, now time.Time) (model.LoanResult, error)
	Return(ctx context.Context, transactionID, actingBorrowerID int, isAdmin bool, now time.Time) (model.LoanResult, error)
	GetTransaction(ctx context.Context, id int) (model.Transaction, error)
	ListTransactions(ctx context.Context, f model.TransactionFilter, now time.Time) (model.ListTransactions, error)
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
	booksTableName        = `books`
	borrowersTableName    = `borrowers`
	transactionsTableName = `transactions`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// withTx runs fn inside a single database transaction. Any error rolls the
// whole unit back, so a half-applied borrow/return can never commit.
func (r *repository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

// IsTransient reports whether err is a lock/serialization conflict worth
// retrying as a whole unit.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation
}
