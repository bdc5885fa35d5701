package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tazhibaev/lending-service/internal/errs"
	"github.com/tazhibaev/lending-service/internal/model"
	"github.com/tazhibaev/lending-service/internal/repository"
)

type Service struct {
	log   *zap.Logger
	repo  repository.Repository
	nowFn func() time.Time
}

func NewService(repo repository.Repository, log *zap.Logger) *Service {
	return &Service{
		log:   log,
		repo:  repo,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

const (
	txRetries    = 2
	retryBackoff = 50 * time.Millisecond
)

// withRetry re-runs the whole unit of work on lock/serialization conflicts.
// The unit is short, so a couple of attempts with backoff is enough.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !repository.IsTransient(err) || attempt == txRetries {
			return err
		}
		s.log.Warn("transient storage conflict",
			zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff << attempt):
		}
	}
}

func (s *Service) Borrow(ctx context.Context, bookID int, username string) (model.LoanResult, error) {
	borrower, err := s.repo.GetBorrowerByEmail(ctx, username)
	if err != nil {
		return model.LoanResult{}, err
	}

	now := s.nowFn()
	var res model.LoanResult
	if err := s.withRetry(ctx, "borrow", func() error {
		var err error
		res, err = s.repo.Borrow(ctx, bookID, borrower.ID, now)
		return err
	}); err != nil {
		return model.LoanResult{}, err
	}

	s.log.Info("loan opened",
		zap.String("transactionUid", res.Transaction.TransactionUid),
		zap.Int("bookId", bookID),
		zap.Int("borrowerId", borrower.ID))
	return res, nil
}

func (s *Service) Return(ctx context.Context, transactionID int, username string, isAdmin bool) (model.LoanResult, error) {
	actingID := 0
	if !isAdmin {
		borrower, err := s.repo.GetBorrowerByEmail(ctx, username)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return model.LoanResult{}, errs.ErrUnauthorized
			}
			return model.LoanResult{}, err
		}
		actingID = borrower.ID
	}

	now := s.nowFn()
	var res model.LoanResult
	if err := s.withRetry(ctx, "return", func() error {
		var err error
		res, err = s.repo.Return(ctx, transactionID, actingID, isAdmin, now)
		return err
	}); err != nil {
		return model.LoanResult{}, err
	}

	s.log.Info("loan closed",
		zap.String("transactionUid", res.Transaction.TransactionUid),
		zap.Int("bookId", res.Transaction.BookID),
		zap.Int("borrowerId", res.Transaction.BorrowerID))
	return res, nil
}

func (s *Service) GetTransaction(ctx context.Context, id int, username string, isAdmin bool) (model.Transaction, error) {
	tr, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return model.Transaction{}, err
	}
	if !isAdmin {
		borrower, err := s.repo.GetBorrowerByEmail(ctx, username)
		if err != nil || borrower.ID != tr.BorrowerID {
			return model.Transaction{}, errs.ErrUnauthorized
		}
	}
	return tr.WithDerivedStatus(s.nowFn()), nil
}

func (s *Service) ListTransactions(ctx context.Context, username string, isAdmin bool, status string, page, size int) (model.ListTransactions, error) {
	f := model.TransactionFilter{Page: page, Size: size}
	if !isAdmin {
		borrower, err := s.repo.GetBorrowerByEmail(ctx, username)
		if err != nil {
			return model.ListTransactions{}, err
		}
		f.BorrowerID = borrower.ID
	}
	switch model.LoanStatus(status) {
	case model.StatusOverdue:
		f.OverdueOnly = true
	case model.StatusBorrowed, model.StatusReturned:
		f.Status = model.LoanStatus(status)
	}

	now := s.nowFn()
	list, err := s.repo.ListTransactions(ctx, f, now)
	if err != nil {
		return model.ListTransactions{}, err
	}
	for i := range list.Items {
		list.Items[i] = list.Items[i].WithDerivedStatus(now)
	}
	return list, nil
}

func (s *Service) MyLoans(ctx context.Context, username string) ([]model.Transaction, error) {
	borrower, err := s.repo.GetBorrowerByEmail(ctx, username)
	if err != nil {
		return nil, err
	}
	loans, err := s.repo.ListBorrowerLoans(ctx, borrower.ID)
	if err != nil {
		return nil, err
	}
	now := s.nowFn()
	for i := range loans {
		loans[i] = loans[i].WithDerivedStatus(now)
	}
	return loans, nil
}

// ListOverdue is the admin report of open loans past due.
func (s *Service) ListOverdue(ctx context.Context, page, size int) (model.ListTransactions, error) {
	now := s.nowFn()
	list, err := s.repo.ListTransactions(ctx, model.TransactionFilter{
		OverdueOnly: true,
		Page:        page,
		Size:        size,
	}, now)
	if err != nil {
		return model.ListTransactions{}, err
	}
	for i := range list.Items {
		list.Items[i] = list.Items[i].WithDerivedStatus(now)
	}
	return list, nil
}
