package service

import (
	"context"

	"github.com/Astemirdum/library-borrowing/library/internal/model"
	"github.com/Astemirdum/library-borrowing/pkg/auth"
	"go.uber.org/zap"
)

func (s *Service) ListBooks(ctx context.Context) ([]model.Book, error) {
	if books, ok := s.cache.Books(ctx); ok {
		return books, nil
	}
	gen := s.cache.Generation(ctx)
	books, err := s.repo.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetBooks(ctx, gen, books)
	return books, nil
}

func (s *Service) GetBook(ctx context.Context, id int64) (model.Book, error) {
	if book, ok := s.cache.Book(ctx, id); ok {
		return book, nil
	}
	gen := s.cache.Generation(ctx)
	book, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return model.Book{}, err
	}
	s.cache.SetBook(ctx, gen, book)
	return book, nil
}

func (s *Service) CreateBook(ctx context.Context, caller auth.Caller, book model.Book) (model.Book, error) {
	if err := authorize(caller, auth.CanMutateCatalog); err != nil {
		return model.Book{}, err
	}
	if err := book.Validate(); err != nil {
		return model.Book{}, err
	}
	res, err := s.repo.CreateBook(ctx, book)
	if err != nil {
		return model.Book{}, err
	}
	s.cache.Invalidate(ctx)
	s.log.Info("book created", zap.Int64("book_id", res.ID), zap.Int64("by", caller.ID))
	return res, nil
}

// UpdateBook replaces every field of the book.
func (s *Service) UpdateBook(ctx context.Context, caller auth.Caller, id int64, book model.Book) (model.Book, error) {
	if err := authorize(caller, auth.CanMutateCatalog); err != nil {
		return model.Book{}, err
	}
	book.ID = id
	if err := book.Validate(); err != nil {
		return model.Book{}, err
	}
	res, err := s.repo.UpdateBook(ctx, book)
	if err != nil {
		return model.Book{}, err
	}
	s.cache.Invalidate(ctx, id)
	return res, nil
}

// PatchBook writes only the provided fields; inventory moved by borrowings
// in the meantime is kept unless the patch sets it.
func (s *Service) PatchBook(ctx context.Context, caller auth.Caller, id int64, patch model.BookPatch) (model.Book, error) {
	if err := authorize(caller, auth.CanMutateCatalog); err != nil {
		return model.Book{}, err
	}
	res, err := s.repo.PatchBook(ctx, id, patch)
	if err != nil {
		return model.Book{}, err
	}
	s.cache.Invalidate(ctx, id)
	return res, nil
}

func (s *Service) DeleteBook(ctx context.Context, caller auth.Caller, id int64) error {
	if err := authorize(caller, auth.CanMutateCatalog); err != nil {
		return err
	}
	if err := s.repo.DeleteBook(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	s.log.Info("book deleted", zap.Int64("book_id", id), zap.Int64("by", caller.ID))
	return nil
}
