package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tazhibaev/lending-service/internal/model"
)

func (h *Handler) ListBorrowers(c echo.Context) error {
	page, size, err := paging(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	borrowers, err := h.borrowerSvc.ListBorrowers(c.Request().Context(), page, size)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, borrowers)
}

func (h *Handler) CreateBorrower(c echo.Context) error {
	var req model.CreateBorrowerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	borrower, err := h.borrowerSvc.CreateBorrower(c.Request().Context(), req)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusCreated, borrower)
}

func (h *Handler) GetBorrower(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	details, err := h.borrowerSvc.GetBorrower(c.Request().Context(), id)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, details)
}

func (h *Handler) UpdateBorrower(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var req model.UpdateBorrowerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	borrower, err := h.borrowerSvc.UpdateBorrower(c.Request().Context(), id, req)
	if err != nil {
		return httpErr(err)
	}
	return c.JSON(http.StatusOK, borrower)
}

func (h *Handler) DeleteBorrower(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.borrowerSvc.DeleteBorrower(c.Request().Context(), id); err != nil {
		return httpErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}
