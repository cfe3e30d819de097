package handler

import (
	"context"

	"github.com/Astemirdum/library-borrowing/library/internal/model"
	"github.com/Astemirdum/library-borrowing/library/internal/service"
	"github.com/Astemirdum/library-borrowing/pkg/auth"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

var (
	_ CatalogService = (*service.Service)(nil)
	_ LedgerService  = (*service.Service)(nil)
)

type CatalogService interface {
	ListBooks(ctx context.Context) ([]model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)
	CreateBook(ctx context.Context, caller auth.Caller, book model.Book) (model.Book, error)
	UpdateBook(ctx context.Context, caller auth.Caller, id int64, book model.Book) (model.Book, error)
	PatchBook(ctx context.Context, caller auth.Caller, id int64, patch model.BookPatch) (model.Book, error)
	DeleteBook(ctx context.Context, caller auth.Caller, id int64) error
}

type LedgerService interface {
	CreateBorrowing(ctx context.Context, caller auth.Caller, req model.CreateBorrowingRequest) (model.Borrowing, error)
	ReturnBorrowing(ctx context.Context, caller auth.Caller, id int64, req model.ReturnBorrowingRequest) (model.Borrowing, error)
	ListBorrowings(ctx context.Context, caller auth.Caller, filter model.BorrowingFilter) ([]model.BorrowingDetail, error)
	GetBorrowing(ctx context.Context, caller auth.Caller, id int64) (model.BorrowingDetail, error)
}
