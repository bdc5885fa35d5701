package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tazhibaev/lending-service/internal/model"
)

func (s *Service) CreateBorrower(ctx context.Context, req model.CreateBorrowerRequest) (model.Borrower, error) {
	return s.repo.CreateBorrower(ctx, req)
}

// GetBorrower refreshes the derived status and fetches the open loans in
// parallel.
func (s *Service) GetBorrower(ctx context.Context, id int) (model.BorrowerDetails, error) {
	now := s.nowFn()

	var details model.BorrowerDetails
	gg, ctx := errgroup.WithContext(ctx)
	gg.Go(func() error {
		b, err := s.repo.RefreshBorrowerStatus(ctx, id, now)
		if err != nil {
			return err
		}
		details.Borrower = b
		return nil
	})
	gg.Go(func() error {
		loans, err := s.repo.ListBorrowerLoans(ctx, id)
		if err != nil {
			return err
		}
		for i := range loans {
			loans[i] = loans[i].WithDerivedStatus(now)
		}
		details.Loans = loans
		return nil
	})
	if err := gg.Wait(); err != nil {
		return model.BorrowerDetails{}, err
	}
	return details, nil
}

func (s *Service) ListBorrowers(ctx context.Context, page, size int) (model.ListBorrowers, error) {
	return s.repo.ListBorrowers(ctx, page, size)
}

func (s *Service) UpdateBorrower(ctx context.Context, id int, req model.UpdateBorrowerRequest) (model.Borrower, error) {
	return s.repo.UpdateBorrower(ctx, id, req)
}

func (s *Service) DeleteBorrower(ctx context.Context, id int) error {
	return s.repo.DeleteBorrower(ctx, id)
}
