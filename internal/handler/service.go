package handler

import (
	"context"

	"github.com/tazhibaev/lending-service/internal/model"
	"github.com/tazhibaev/lending-service/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type LendingService interface {
	Borrow(ctx context.Context, bookID int, username string) (model.LoanResult, error)
	Return(ctx context.Context, transactionID int, username string, isAdmin bool) (model.LoanResult, error)
	GetTransaction(ctx context.Context, id int, username string, isAdmin bool) (model.Transaction, error)
	ListTransactions(ctx context.Context, username string, isAdmin bool, status string, page, size int) (model.ListTransactions, error)
	MyLoans(ctx context.Context, username string) ([]model.Transaction, error)
	ListOverdue(ctx context.Context, page, size int) (model.ListTransactions, error)
}

type CatalogService interface {
	CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error)
	GetBook(ctx context.Context, id int) (model.Book, error)
	ListBooks(ctx context.Context, f model.BookFilter) (model.ListBooks, error)
	UpdateBook(ctx context.Context, id int, req model.UpdateBookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, id int) error
	RestoreBook(ctx context.Context, id int) (model.Book, error)
}

type BorrowerService interface {
	CreateBorrower(ctx context.Context, req model.CreateBorrowerRequest) (model.Borrower, error)
	GetBorrower(ctx context.Context, id int) (model.BorrowerDetails, error)
	ListBorrowers(ctx context.Context, page, size int) (model.ListBorrowers, error)
	UpdateBorrower(ctx context.Context, id int, req model.UpdateBorrowerRequest) (model.Borrower, error)
	DeleteBorrower(ctx context.Context, id int) error
}

var (
	_ LendingService  = (*service.Service)(nil)
	_ CatalogService  = (*service.Service)(nil)
	_ BorrowerService = (*service.Service)(nil)
)
