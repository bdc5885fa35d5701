package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tazhibaev/lending-service/internal/errs"
	"github.com/tazhibaev/lending-service/internal/handler"
	"github.com/tazhibaev/lending-service/internal/model"
	"github.com/tazhibaev/lending-service/pkg/auth"
	"github.com/tazhibaev/lending-service/pkg/validate"

	service_mocks "github.com/tazhibaev/lending-service/internal/handler/mocks"
)

// asUser seeds the auth context the way the jwt middleware does, so
// handlers can be mounted without real tokens.
func asUser(username, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.SetAuthContext(c.Request().Context(), username, role)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func TestHandler_Borrow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	okResult := model.LoanResult{
		Transaction: model.Transaction{
			ID:             1,
			TransactionUid: "f7cdc58f-2caf-4b15-9727-f89dcc629b27",
			BookID:         10,
			BorrowerID:     3,
			BorrowedAt:     now,
			DueDate:        now.Add(model.LoanPeriod),
			Status:         model.StatusBorrowed,
		},
		Book: model.Book{
			ID:              10,
			Title:           "The Go Programming Language",
			Author:          "Alan Donovan",
			Genre:           "Programming",
			Language:        "English",
			TotalCopies:     2,
			AvailableCopies: 1,
			IsActive:        true,
		},
		Borrower: model.Borrower{
			ID:            3,
			Name:          "Ivan Petrov",
			Email:         "ivan@lib.io",
			BorrowedBooks: 1,
			Status:        model.BorrowerActive,
		},
	}

	type input struct {
		bookID   string
		username string
	}
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLendingService, req input)

	var tests = []struct {
		name         string
		mockBehavior mockBehavior
		input        input
		response     response
	}{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockLendingService, req input) {
				r.EXPECT().
					Borrow(gomock.Any(), 10, req.username).
					Return(okResult, nil)
			},
			input: input{bookID: "10", username: "ivan@lib.io"},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"transaction":{"id":1,"transactionUid":"f7cdc58f-2caf-4b15-9727-f89dcc629b27","bookId":10,"borrowerId":3,"borrowedAt":"2024-03-15T12:00:00Z","dueDate":"2024-03-29T12:00:00Z","returnedAt":null,"status":"borrowed"},"book":{"id":10,"title":"The Go Programming Language","author":"Alan Donovan","genre":"Programming","description":"","publisher":"","publicationYear":null,"language":"English","totalCopies":2,"availableCopies":1,"isActive":true},"borrower":{"id":3,"name":"Ivan Petrov","email":"ivan@lib.io","borrowedBooks":1,"status":"active"}}`,
			},
		},
		{
			name: "err. no copies",
			mockBehavior: func(r *service_mocks.MockLendingService, req input) {
				r.EXPECT().
					Borrow(gomock.Any(), 10, req.username).
					Return(model.LoanResult{}, errs.ErrNoCopiesAvailable)
			},
			input: input{bookID: "10", username: "ivan@lib.io"},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"no available copies"}`,
			},
		},
		{
			name: "err. duplicate open loan",
			mockBehavior: func(r *service_mocks.MockLendingService, req input) {
				r.EXPECT().
					Borrow(gomock.Any(), 10, req.username).
					Return(model.LoanResult{}, errs.ErrAlreadyBorrowed)
			},
			input: input{bookID: "10", username: "ivan@lib.io"},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"book is already borrowed by this borrower"}`,
			},
		},
		{
			name: "err. inactive book",
			mockBehavior: func(r *service_mocks.MockLendingService, req input) {
				r.EXPECT().
					Borrow(gomock.Any(), 10, req.username).
					Return(model.LoanResult{}, errs.ErrBookInactive)
			},
			input: input{bookID: "10", username: "ivan@lib.io"},
			response: response{
				expectedCode: http.StatusUnprocessableEntity,
				expectedBody: `{"message":"book is not active"}`,
			},
		},
		{
			name:         "err. invalid id",
			mockBehavior: func(r *service_mocks.MockLendingService, req input) {},
			input:        input{bookID: "abc", username: "ivan@lib.io"},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"id is invalid"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			lending := service_mocks.NewMockLendingService(c)
			catalog := service_mocks.NewMockCatalogService(c)
			borrowers := service_mocks.NewMockBorrowerService(c)
			log := zap.NewExample().Named("test")
			h := handler.New(lending, catalog, borrowers, nil, log)

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/api/v1/books/:id/borrow", h.Borrow, asUser(tt.input.username, auth.RoleMember))

			r := httptest.NewRequest(
				http.MethodPost, fmt.Sprintf("/api/v1/books/%s/borrow", tt.input.bookID), http.NoBody)
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(lending, tt.input)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_Return(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	returned := now
	okResult := model.LoanResult{
		Transaction: model.Transaction{
			ID:             7,
			TransactionUid: "83575e12-7ce0-48ee-9931-51919ff3c9ee",
			BookID:         10,
			BorrowerID:     3,
			BorrowedAt:     now.Add(-5 * 24 * time.Hour),
			DueDate:        now.Add(9 * 24 * time.Hour),
			ReturnedAt:     &returned,
			Status:         model.StatusReturned,
		},
		Book: model.Book{
			ID:              10,
			Title:           "The Go Programming Language",
			Author:          "Alan Donovan",
			Genre:           "Programming",
			Language:        "English",
			TotalCopies:     2,
			AvailableCopies: 2,
			IsActive:        true,
		},
		Borrower: model.Borrower{
			ID:     3,
			Name:   "Ivan Petrov",
			Email:  "ivan@lib.io",
			Status: model.BorrowerActive,
		},
	}

	type input struct {
		transactionID string
		username      string
		role          string
	}
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLendingService, req input)

	var tests = []struct {
		name         string
		mockBehavior mockBehavior
		input        input
		response     response
	}{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockLendingService, req input) {
				r.EXPECT().
					Return(gomock.Any(), 7, req.username, false).
					Return(okResult, nil)
			},
			input: input{transactionID: "7", username: "ivan@lib.io", role: auth.RoleMember},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"transaction":{"id":7,"transactionUid":"83575e12-7ce0-48ee-9931-51919ff3c9ee","bookId":10,"borrowerId":3,"borrowedAt":"2024-03-10T12:00:00Z","dueDate":"2024-03-24T12:00:00Z","returnedAt":"2024-03-15T12:00:00Z","status":"returned"},"book":{"id":10,"title":"The Go Programming Language","author":"Alan Donovan","genre":"Programming","description":"","publisher":"","publicationYear":null,"language":"English","totalCopies":2,"availableCopies":2,"isActive":true},"borrower":{"id":3,"name":"Ivan Petrov","email":"ivan@lib.io","borrowedBooks":0,"status":"active"}}`,
			},
		},
		{
			name: "ok. admin closes someone else's loan",
			mockBehavior: func(r *service_mocks.MockLendingService, req input) {
				r.EXPECT().
					Return(gomock.Any(), 7, req.username, true).
					Return(okResult, nil)
			},
			input: input{transactionID: "7", username: "root@lib.io", role: auth.RoleAdmin},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"transaction":{"id":7,"transactionUid":"83575e12-7ce0-48ee-9931-51919ff3c9ee","bookId":10,"borrowerId":3,"borrowedAt":"2024-03-10T12:00:00Z","dueDate":"2024-03-24T12:00:00Z","returnedAt":"2024-03-15T12:00:00Z","status":"returned"},"book":{"id":10,"title":"The Go Programming Language","author":"Alan Donovan","genre":"Programming","description":"","publisher":"","publicationYear":null,"language":"English","totalCopies":2,"availableCopies":2,"isActive":true},"borrower":{"id":3,"name":"Ivan Petrov","email":"ivan@lib.io","borrowedBooks":0,"status":"active"}}`,
			},
		},
		{
			name: "err. already returned",
			mockBehavior: func(r *service_mocks.MockLendingService, req input) {
				r.EXPECT().
					Return(gomock.Any(), 7, req.username, false).
					Return(model.LoanResult{}, errors.Wrapf(errs.ErrAlreadyReturned, "returned at %s", "2024-03-01T09:30:00Z"))
			},
			input: input{transactionID: "7", username: "ivan@lib.io", role: auth.RoleMember},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"returned at 2024-03-01T09:30:00Z: loan is already returned"}`,
			},
		},
		{
			name: "err. not the loan owner",
			mockBehavior: func(r *service_mocks.MockLendingService, req input) {
				r.EXPECT().
					Return(gomock.Any(), 7, req.username, false).
					Return(model.LoanResult{}, errs.ErrUnauthorized)
			},
			input: input{transactionID: "7", username: "other@lib.io", role: auth.RoleMember},
			response: response{
				expectedCode: http.StatusForbidden,
				expectedBody: `{"message":"not allowed to act on this loan"}`,
			},
		},
		{
			name: "err. unknown transaction",
			mockBehavior: func(r *service_mocks.MockLendingService, req input) {
				r.EXPECT().
					Return(gomock.Any(), 404, req.username, false).
					Return(model.LoanResult{}, errs.ErrNotFound)
			},
			input: input{transactionID: "404", username: "ivan@lib.io", role: auth.RoleMember},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"message":"not found"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			lending := service_mocks.NewMockLendingService(c)
			catalog := service_mocks.NewMockCatalogService(c)
			borrowers := service_mocks.NewMockBorrowerService(c)
			log := zap.NewExample().Named("test")
			h := handler.New(lending, catalog, borrowers, nil, log)

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/api/v1/transactions/:id/return", h.Return, asUser(tt.input.username, tt.input.role))

			r := httptest.NewRequest(
				http.MethodPost, fmt.Sprintf("/api/v1/transactions/%s/return", tt.input.transactionID), http.NoBody)
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(lending, tt.input)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_ListBooks(t *testing.T) {
	t.Parallel()

	type input struct {
		query string
	}
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockCatalogService, req input)

	var tests = []struct {
		name         string
		mockBehavior mockBehavior
		input        input
		response     response
	}{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockCatalogService, req input) {
				r.EXPECT().
					ListBooks(context.Background(), model.BookFilter{
						Genre:         "Programming",
						AvailableOnly: true,
						ActiveOnly:    true,
					}).
					Return(model.ListBooks{
						Paging: model.Paging{
							Page:          0,
							PageSize:      0,
							TotalElements: 1,
						},
						Items: []model.Book{
							{
								ID:              10,
								Title:           "The Go Programming Language",
								Author:          "Alan Donovan",
								Genre:           "Programming",
								Language:        "English",
								TotalCopies:     2,
								AvailableCopies: 1,
								IsActive:        true,
							},
						},
					}, nil)
			},
			input: input{query: "?genre=Programming&available=true"},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"page":0,"pageSize":0,"totalElements":1,"items":[{"id":10,"title":"The Go Programming Language","author":"Alan Donovan","genre":"Programming","description":"","publisher":"","publicationYear":null,"language":"English","totalCopies":2,"availableCopies":1,"isActive":true}]}`,
			},
		},
		{
			name:         "err. bad available flag",
			mockBehavior: func(r *service_mocks.MockCatalogService, req input) {},
			input:        input{query: "?available=maybe"},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"available is invalid"}`,
			},
		},
		{
			name: "err. internal",
			mockBehavior: func(r *service_mocks.MockCatalogService, req input) {
				r.EXPECT().
					ListBooks(context.Background(), model.BookFilter{ActiveOnly: true}).
					Return(model.ListBooks{}, errors.New("db internal"))
			},
			input: input{query: ""},
			response: response{
				expectedCode: http.StatusInternalServerError,
				expectedBody: `{"message":"db internal"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			lending := service_mocks.NewMockLendingService(c)
			catalog := service_mocks.NewMockCatalogService(c)
			borrowers := service_mocks.NewMockBorrowerService(c)
			log := zap.NewExample().Named("test")
			h := handler.New(lending, catalog, borrowers, nil, log)

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.GET("/api/v1/books", h.ListBooks)

			r := httptest.NewRequest(http.MethodGet, "/api/v1/books"+tt.input.query, http.NoBody)
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(catalog, tt.input)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}
