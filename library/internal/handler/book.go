package handler

import (
	"net/http"

	"github.com/Astemirdum/library-borrowing/library/internal/model"
	"github.com/Astemirdum/library-borrowing/pkg/auth"
	"github.com/labstack/echo/v4"
)

// ListBooks
// @Summary List books
// @Tags books
// @Produce json
// @Success 200 {array} model.Book
// @Router /books [get]
func (h *Handler) ListBooks(c echo.Context) error {
	books, err := h.catalogSvc.ListBooks(c.Request().Context())
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

// GetBook
// @Summary Book detail
// @Tags books
// @Produce json
// @Param id path int true "book id"
// @Success 200 {object} model.Book
// @Failure 404 {object} errs.ValidationErrorResponse
// @Router /books/{id} [get]
func (h *Handler) GetBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	book, err := h.catalogSvc.GetBook(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

// CreateBook
// @Summary Add a book
// @Tags books
// @Security Bearer
// @Accept json
// @Produce json
// @Param book body model.BookRequest true "book"
// @Success 201 {object} model.Book
// @Failure 400,401,403 {object} errs.ValidationErrorResponse
// @Router /books [post]
func (h *Handler) CreateBook(c echo.Context) error {
	if err := h.permit(c, auth.CanMutateCatalog); err != nil {
		return err
	}
	var req model.BookRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	book, err := h.catalogSvc.CreateBook(ctx, auth.GetCaller(ctx), req.Book())
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, book)
}

// UpdateBook replaces the whole book.
// @Summary Replace a book
// @Tags books
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "book id"
// @Param book body model.BookRequest true "book"
// @Success 200 {object} model.Book
// @Router /books/{id} [put]
func (h *Handler) UpdateBook(c echo.Context) error {
	if err := h.permit(c, auth.CanMutateCatalog); err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req model.BookRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	book, err := h.catalogSvc.UpdateBook(ctx, auth.GetCaller(ctx), id, req.Book())
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

// PatchBook
// @Summary Update some fields of a book
// @Tags books
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "book id"
// @Param book body model.BookPatch true "fields"
// @Success 200 {object} model.Book
// @Router /books/{id} [patch]
func (h *Handler) PatchBook(c echo.Context) error {
	if err := h.permit(c, auth.CanMutateCatalog); err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req model.BookPatch
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	book, err := h.catalogSvc.PatchBook(ctx, auth.GetCaller(ctx), id, req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

// DeleteBook
// @Summary Delete a book with its borrowings
// @Tags books
// @Security Bearer
// @Param id path int true "book id"
// @Success 204
// @Router /books/{id} [delete]
func (h *Handler) DeleteBook(c echo.Context) error {
	if err := h.permit(c, auth.CanMutateCatalog); err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.catalogSvc.DeleteBook(ctx, auth.GetCaller(ctx), id); err != nil {
		return h.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
