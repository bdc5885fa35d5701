package errs

import (
	"errors"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrBookInactive      = errors.New("book is not active")
	ErrNoCopiesAvailable = errors.New("no available copies")
	ErrOverRelease       = errors.New("available copies would exceed total")
	ErrAlreadyBorrowed   = errors.New("book is already borrowed by this borrower")
	ErrAlreadyReturned   = errors.New("loan is already returned")
	ErrUnauthorized      = errors.New("not allowed to act on this loan")
	ErrHasActiveLoans    = errors.New("active loans exist")
	ErrEmailTaken        = errors.New("email is already in use")
)
