package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tazhibaev/lending-service/internal/errs"
	"github.com/tazhibaev/lending-service/internal/model"
	"github.com/tazhibaev/lending-service/pkg/auth"
	cb "github.com/tazhibaev/lending-service/pkg/circuit_breaker"
	"github.com/tazhibaev/lending-service/pkg/kafka"
	"github.com/tazhibaev/lending-service/pkg/validate"
)

type Handler struct {
	lendingSvc  LendingService
	catalogSvc  CatalogService
	borrowerSvc BorrowerService
	enqueuer    Enqueuer
	eventCB     cb.CircuitBreaker
	log         *zap.Logger
}

func New(lendingSvc LendingService, catalogSvc CatalogService, borrowerSvc BorrowerService, enqueuer Enqueuer, log *zap.Logger) *Handler {
	h := &Handler{
		lendingSvc:  lendingSvc,
		catalogSvc:  catalogSvc,
		borrowerSvc: borrowerSvc,
		enqueuer:    enqueuer,
		eventCB:     cb.New(20, time.Second*30, 0.5, 5),
		log:         log,
	}
	return h
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", newRateLimiterMW(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(requestLoggerConfig()),
		middleware.RequestID(),
		newRateLimiterMW(apiRPS),
		JwtAuthentication,
	)

	api.GET("/books", h.ListBooks)
	api.GET("/books/:id", h.GetBook)
	api.POST("/books/:id/borrow", h.Borrow)

	api.GET("/loans", h.MyLoans)
	api.GET("/transactions", h.ListTransactions)
	api.GET("/transactions/:id", h.GetTransaction)
	api.POST("/transactions/:id/return", h.Return)

	admin := api.Group("", adminOnly)
	admin.POST("/books", h.CreateBook)
	admin.PUT("/books/:id", h.UpdateBook)
	admin.DELETE("/books/:id", h.DeleteBook)
	admin.POST("/books/:id/restore", h.RestoreBook)

	admin.GET("/borrowers", h.ListBorrowers)
	admin.POST("/borrowers", h.CreateBorrower)
	admin.GET("/borrowers/:id", h.GetBorrower)
	admin.PUT("/borrowers/:id", h.UpdateBorrower)
	admin.DELETE("/borrowers/:id", h.DeleteBorrower)

	admin.GET("/transactions/overdue", h.ListOverdue)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// httpErr maps core error kinds onto HTTP statuses. The core only reports
// the kind, the mapping lives here.
func httpErr(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrBookInactive):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, errs.ErrAlreadyBorrowed),
		errors.Is(err, errs.ErrAlreadyReturned),
		errors.Is(err, errs.ErrNoCopiesAvailable),
		errors.Is(err, errs.ErrOverRelease),
		errors.Is(err, errs.ErrHasActiveLoans),
		errors.Is(err, errs.ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func pathID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, errors.New("id is invalid")
	}
	return id, nil
}

func paging(c echo.Context) (page, size int, err error) {
	if pageParam := c.QueryParam("page"); pageParam != "" {
		if page, err = strconv.Atoi(pageParam); err != nil {
			return 0, 0, errors.New("page is invalid")
		}
	}
	if sizeParam := c.QueryParam("size"); sizeParam != "" {
		if size, err = strconv.Atoi(sizeParam); err != nil {
			return 0, 0, errors.New("size is invalid")
		}
	}
	return page, size, nil
}

func (h *Handler) Borrow(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	a, ok := auth.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no auth context")
	}

	res, err := h.lendingSvc.Borrow(ctx, id, a.Username)
	if err != nil {
		return httpErr(err)
	}
	h.publishLoanEvent(model.LoanEventBorrowed, res)
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) Return(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	a, ok := auth.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no auth context")
	}

	res, err := h.lendingSvc.Return(ctx, id, a.Username, a.IsAdmin())
	if err != nil {
		return httpErr(err)
	}
	h.publishLoanEvent(model.LoanEventReturned, res)
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) publishLoanEvent(typ string, res model.LoanResult) {
	if h.enqueuer == nil {
		return
	}
	ev := model.LoanEvent{
		Type:           typ,
		TransactionUid: res.Transaction.TransactionUid,
		BookID:         res.Transaction.BookID,
		Borrower:       res.Borrower.Email,
		At:             time.Now().UTC(),
	}
	if err := h.eventCB.Call(func() error {
		return h.enqueuer.Enqueue(kafka.LoanEventsTopic, ev)
	}); err != nil {
		h.log.Warn("loan event publish", zap.String("type", typ), zap.Error(err))
	}
}

func (h *Handler) MyLoans(c echo.Context) error {
	ctx := c.Request().Context()
	a, ok := auth.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no auth context")
	}
	loans, err := h.lendingSvc.MyLoans(ctx, a.Username)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, loans)
}

func (h *Handler) ListTransactions(c echo.Context) error {
	ctx := c.Request().Context()
	a, ok := auth.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no auth context")
	}
	page, size, err := paging(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	status := c.QueryParam("status")
	switch status {
	case "", "borrowed", "returned", "overdue":
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status is invalid")
	}

	list, err := h.lendingSvc.ListTransactions(ctx, a.Username, a.IsAdmin(), status, page, size)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) GetTransaction(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	a, ok := auth.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no auth context")
	}
	tr, err := h.lendingSvc.GetTransaction(ctx, id, a.Username, a.IsAdmin())
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, tr)
}

func (h *Handler) ListOverdue(c echo.Context) error {
	page, size, err := paging(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	list, err := h.lendingSvc.ListOverdue(c.Request().Context(), page, size)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, list)
}
