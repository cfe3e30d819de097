package handler

import (
	"net/http"
	"strconv"

	"github.com/Astemirdum/library-borrowing/library/internal/model"
	"github.com/Astemirdum/library-borrowing/pkg/auth"
	"github.com/labstack/echo/v4"
)

// ListBorrowings
// @Summary List borrowings
// @Description Users see their own borrowings. Staff see everybody's and may filter by user_id.
// @Tags borrowings
// @Security Bearer
// @Produce json
// @Param is_active query string false "any value selects not returned borrowings"
// @Param user_id query int false "owner, staff only"
// @Success 200 {array} model.BorrowingDetail
// @Router /borrowings [get]
func (h *Handler) ListBorrowings(c echo.Context) error {
	filter := model.BorrowingFilter{
		OnlyActive: c.QueryParam("is_active") != "",
	}
	if userIDParam := c.QueryParam("user_id"); userIDParam != "" {
		userID, err := strconv.ParseInt(userIDParam, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "user_id is invalid")
		}
		filter.UserID = userID
	}

	ctx := c.Request().Context()
	items, err := h.ledgerSvc.ListBorrowings(ctx, auth.GetCaller(ctx), filter)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// GetBorrowing
// @Summary Borrowing detail
// @Tags borrowings
// @Security Bearer
// @Produce json
// @Param id path int true "borrowing id"
// @Success 200 {object} model.BorrowingDetail
// @Failure 404 {object} errs.ValidationErrorResponse
// @Router /borrowings/{id} [get]
func (h *Handler) GetBorrowing(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	item, err := h.ledgerSvc.GetBorrowing(ctx, auth.GetCaller(ctx), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

// CreateBorrowing
// @Summary Borrow a book
// @Tags borrowings
// @Security Bearer
// @Accept json
// @Produce json
// @Param borrowing body model.CreateBorrowingRequest true "borrowing"
// @Success 201 {object} model.Borrowing
// @Failure 400,401,404 {object} errs.ValidationErrorResponse
// @Router /borrowings/create [post]
func (h *Handler) CreateBorrowing(c echo.Context) error {
	var req model.CreateBorrowingRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	borrowing, err := h.ledgerSvc.CreateBorrowing(ctx, auth.GetCaller(ctx), req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, borrowing)
}

// ReturnBorrowing
// @Summary Return a borrowed book
// @Tags borrowings
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "borrowing id"
// @Param borrowing body model.ReturnBorrowingRequest false "return date, now by default"
// @Success 200 {object} model.Borrowing
// @Failure 400,401,403,404 {object} errs.ValidationErrorResponse
// @Router /borrowings/return/{id} [post]
func (h *Handler) ReturnBorrowing(c echo.Context) error {
	if err := h.permit(c, auth.CanReturnBorrowing); err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req model.ReturnBorrowingRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	borrowing, err := h.ledgerSvc.ReturnBorrowing(ctx, auth.GetCaller(ctx), id, req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, borrowing)
}
