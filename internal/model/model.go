package model

import (
	"time"
)

// LoanPeriod is the fixed borrowing window added to borrowed_at.
const LoanPeriod = 14 * 24 * time.Hour

type LoanStatus string

const (
	StatusBorrowed LoanStatus = "borrowed"
	StatusReturned LoanStatus = "returned"
	// StatusOverdue is derived on read, never stored.
	StatusOverdue LoanStatus = "overdue"
)

type BorrowerStatus string

const (
	BorrowerActive  BorrowerStatus = "active"
	BorrowerOverdue BorrowerStatus = "overdue"
)

type Book struct {
	ID              int        `json:"id" db:"id"`
	Title           string     `json:"title" db:"title"`
	Author          string     `json:"author" db:"author"`
	Genre           string     `json:"genre" db:"genre"`
	Description     string     `json:"description" db:"description"`
	Publisher       string     `json:"publisher" db:"publisher"`
	PublicationYear *int       `json:"publicationYear" db:"publication_year"`
	Language        string     `json:"language" db:"language"`
	TotalCopies     int        `json:"totalCopies" db:"total_copies"`
	AvailableCopies int        `json:"availableCopies" db:"available_copies"`
	IsActive        bool       `json:"isActive" db:"is_active"`
	CreatedAt       time.Time  `json:"-" db:"created_at"`
	DeletedAt       *time.Time `json:"-" db:"deleted_at"`
}

type Borrower struct {
	ID            int            `json:"id" db:"id"`
	Name          string         `json:"name" db:"name"`
	Email         string         `json:"email" db:"email"`
	BorrowedBooks int            `json:"borrowedBooks" db:"borrowed_books"`
	Status        BorrowerStatus `json:"status" db:"status"`
	CreatedAt     time.Time      `json:"-" db:"created_at"`
	DeletedAt     *time.Time     `json:"-" db:"deleted_at"`
}

type Transaction struct {
	ID             int        `json:"id" db:"id"`
	TransactionUid string     `json:"transactionUid" db:"transaction_uid"`
	BookID         int        `json:"bookId" db:"book_id"`
	BorrowerID     int        `json:"borrowerId" db:"borrower_id"`
	BorrowedAt     time.Time  `json:"borrowedAt" db:"borrowed_at"`
	DueDate        time.Time  `json:"dueDate" db:"due_date"`
	ReturnedAt     *time.Time `json:"returnedAt" db:"returned_at"`
	Status         LoanStatus `json:"status" db:"status"`
}

// IsOverdue derives the overdue view of an open loan. Stored status stays
// borrowed/returned; overdue exists only at read time.
func (t Transaction) IsOverdue(now time.Time) bool {
	return t.Status == StatusBorrowed && t.ReturnedAt == nil && t.DueDate.Before(now)
}

// WithDerivedStatus returns a copy whose Status reflects elapsed time.
func (t Transaction) WithDerivedStatus(now time.Time) Transaction {
	if t.IsOverdue(now) {
		t.Status = StatusOverdue
	}
	return t
}

type LoanResult struct {
	Transaction Transaction `json:"transaction"`
	Book        Book        `json:"book"`
	Borrower    Borrower    `json:"borrower"`
}

type BorrowerDetails struct {
	Borrower Borrower      `json:"borrower"`
	Loans    []Transaction `json:"loans"`
}

type LoanEvent struct {
	Type           string    `json:"type"`
	TransactionUid string    `json:"transactionUid"`
	BookID         int       `json:"bookId"`
	Borrower       string    `json:"borrower"`
	At             time.Time `json:"at"`
}

const (
	LoanEventBorrowed = "borrowed"
	LoanEventReturned = "returned"
)

type CreateBookRequest struct {
	Title           string `json:"title" validate:"required,max=255"`
	Author          string `json:"author" validate:"required,max=255"`
	Genre           string `json:"genre" validate:"max=100"`
	Description     string `json:"description"`
	Publisher       string `json:"publisher" validate:"max=255"`
	PublicationYear *int   `json:"publicationYear" validate:"omitempty,gte=1800"`
	Language        string `json:"language" validate:"max=50"`
	TotalCopies     int    `json:"totalCopies" validate:"required,min=1"`
}

type UpdateBookRequest struct {
	Title           *string `json:"title" validate:"omitempty,max=255"`
	Author          *string `json:"author" validate:"omitempty,max=255"`
	Genre           *string `json:"genre" validate:"omitempty,max=100"`
	Description     *string `json:"description"`
	Publisher       *string `json:"publisher" validate:"omitempty,max=255"`
	PublicationYear *int    `json:"publicationYear" validate:"omitempty,gte=1800"`
	Language        *string `json:"language" validate:"omitempty,max=50"`
	TotalCopies     *int    `json:"totalCopies" validate:"omitempty,min=1"`
	IsActive        *bool   `json:"isActive"`
}

type CreateBorrowerRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"required,email"`
}

type UpdateBorrowerRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=255"`
	Email *string `json:"email" validate:"omitempty,email"`
}

// BookFilter carries the recognized catalog-listing filters.
type BookFilter struct {
	Search        string
	Genre         string
	AvailableOnly bool
	ActiveOnly    bool
	Page          int
	Size          int
}

type TransactionFilter struct {
	BorrowerID  int
	Status      LoanStatus
	OverdueOnly bool
	Page        int
	Size        int
}

type Paging struct {
	Page          int `json:"page"`
	PageSize      int `json:"pageSize"`
	TotalElements int `json:"totalElements"`
}

type ListBooks struct {
	Paging `json:",inline"`
	Items  []Book `json:"items"`
}

type ListBorrowers struct {
	Paging `json:",inline"`
	Items  []Borrower `json:"items"`
}

type ListTransactions struct {
	Paging `json:",inline"`
	Items  []Transaction `json:"items"`
}
