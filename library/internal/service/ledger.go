package service

import (
	"context"

	"github.com/Astemirdum/library-borrowing/library/internal/errs"
	"github.com/Astemirdum/library-borrowing/library/internal/model"
	"github.com/Astemirdum/library-borrowing/pkg/auth"
	"github.com/Astemirdum/library-borrowing/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	opCreate = "create"
	opReturn = "return"
)

// CreateBorrowing opens a borrowing for caller and takes one copy of the book.
// The notification is sent after commit and never fails the call.
func (s *Service) CreateBorrowing(ctx context.Context, caller auth.Caller, req model.CreateBorrowingRequest) (model.Borrowing, error) {
	if err := authorize(caller, auth.CanCreateBorrowing); err != nil {
		return model.Borrowing{}, err
	}
	borrowDate := s.now().UTC()
	if req.BorrowDate != nil {
		borrowDate = req.BorrowDate.UTC()
	}
	expected := req.ExpectedReturnDate.UTC()
	if err := model.ValidateDates(borrowDate, expected); err != nil {
		metrics.ObserveBorrowing(opCreate, err)
		return model.Borrowing{}, err
	}

	borrowing, book, err := s.repo.CreateBorrowing(ctx, model.Borrowing{
		BorrowDate:         borrowDate,
		ExpectedReturnDate: expected,
		BookID:             req.BookID,
	}, caller)
	metrics.ObserveBorrowing(opCreate, err)
	if err != nil {
		return model.Borrowing{}, err
	}
	s.cache.Invalidate(ctx, book.ID)
	s.log.Info("borrowing created",
		zap.Int64("borrowing_id", borrowing.ID),
		zap.Int64("book_id", book.ID),
		zap.Int("inventory", book.Inventory),
		zap.Int64("user_id", caller.ID))

	event := model.BorrowingEvent{
		EventID:            uuid.NewString(),
		BorrowingID:        borrowing.ID,
		UserID:             caller.ID,
		UserEmail:          caller.Email,
		BookID:             book.ID,
		BookTitle:          book.Title,
		BookAuthor:         book.Author,
		DailyFee:           book.DailyFee,
		BorrowDate:         borrowing.BorrowDate,
		ExpectedReturnDate: borrowing.ExpectedReturnDate,
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.log.Warn("notifier.Notify", zap.Int64("borrowing_id", borrowing.ID), zap.Error(err))
	}
	return borrowing, nil
}

// ReturnBorrowing closes an open borrowing and puts the copy back.
// Only staff may return; the check happens before the borrowing is read.
func (s *Service) ReturnBorrowing(ctx context.Context, caller auth.Caller, id int64, req model.ReturnBorrowingRequest) (model.Borrowing, error) {
	if err := authorize(caller, auth.CanReturnBorrowing); err != nil {
		return model.Borrowing{}, err
	}
	actual := s.now().UTC()
	if req.ActualReturnDate != nil {
		actual = req.ActualReturnDate.UTC()
	}

	borrowing, err := s.repo.ReturnBorrowing(ctx, id, actual)
	metrics.ObserveBorrowing(opReturn, err)
	if err != nil {
		return model.Borrowing{}, err
	}
	s.cache.Invalidate(ctx, borrowing.BookID)
	s.log.Info("borrowing returned",
		zap.Int64("borrowing_id", borrowing.ID),
		zap.Int64("book_id", borrowing.BookID),
		zap.Int64("by", caller.ID))
	return borrowing, nil
}

// ListBorrowings ignores filter.UserID for non-staff callers and shows
// them their own borrowings only.
func (s *Service) ListBorrowings(ctx context.Context, caller auth.Caller, filter model.BorrowingFilter) ([]model.BorrowingDetail, error) {
	if err := authorize(caller, auth.CanCreateBorrowing); err != nil {
		return nil, err
	}
	if !auth.CanReadAll(caller) {
		filter.UserID = caller.ID
	}
	return s.repo.ListBorrowings(ctx, filter)
}

// GetBorrowing answers ErrNotFound for somebody else's borrowing.
func (s *Service) GetBorrowing(ctx context.Context, caller auth.Caller, id int64) (model.BorrowingDetail, error) {
	if err := authorize(caller, auth.CanCreateBorrowing); err != nil {
		return model.BorrowingDetail{}, err
	}
	item, err := s.repo.GetBorrowing(ctx, id)
	if err != nil {
		return model.BorrowingDetail{}, err
	}
	if !auth.CanReadBorrowing(caller, item.User.ID) {
		return model.BorrowingDetail{}, errs.ErrNotFound
	}
	return item, nil
}
