package model

import (
	"fmt"
	"time"

	"github.com/Astemirdum/library-borrowing/library/internal/errs"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

type Borrowing struct {
	ID                 int64      `json:"id" db:"id"`
	BorrowDate         time.Time  `json:"borrow_date" db:"borrow_date"`
	ExpectedReturnDate time.Time  `json:"expected_return_date" db:"expected_return_date"`
	ActualReturnDate   *time.Time `json:"actual_return_date" db:"actual_return_date"`
	BookID             int64      `json:"book" db:"book_id"`
	UserID             int64      `json:"user" db:"user_id"`
}

func (b Borrowing) Status() Status {
	if b.ActualReturnDate == nil {
		return StatusOpen
	}
	return StatusClosed
}

func (b Borrowing) String() string {
	return fmt.Sprintf("User: %d, book: %d, expected return date: %s",
		b.UserID, b.BookID, b.ExpectedReturnDate.Format(time.DateOnly))
}

func ValidateDates(borrowDate, expectedReturnDate time.Time) error {
	if !expectedReturnDate.After(borrowDate) {
		return errs.ErrInvalidDates
	}
	return nil
}

// Close moves an open borrowing to the closed state. Closed is terminal.
func (b Borrowing) Close(actualReturnDate time.Time) (Borrowing, error) {
	if b.Status() == StatusClosed {
		return b, errs.ErrAlreadyReturned
	}
	if !actualReturnDate.After(b.BorrowDate) {
		return b, errs.Validation("actual_return_date should be later than borrow_date")
	}
	at := actualReturnDate.UTC()
	b.ActualReturnDate = &at
	return b, nil
}

type BookSummary struct {
	ID       int64           `json:"id" db:"id"`
	Title    string          `json:"title" db:"title"`
	Author   string          `json:"author" db:"author"`
	Cover    Cover           `json:"cover" db:"cover"`
	DailyFee decimal.Decimal `json:"daily_fee" db:"daily_fee"`
}

type UserSummary struct {
	ID      int64  `json:"id" db:"id"`
	Email   string `json:"email" db:"email"`
	IsStaff bool   `json:"is_staff" db:"is_staff"`
}

// BorrowingDetail is the list/retrieve representation with nested book and user.
type BorrowingDetail struct {
	ID                 int64       `json:"id" db:"id"`
	BorrowDate         time.Time   `json:"borrow_date" db:"borrow_date"`
	ExpectedReturnDate time.Time   `json:"expected_return_date" db:"expected_return_date"`
	ActualReturnDate   *time.Time  `json:"actual_return_date" db:"actual_return_date"`
	Book               BookSummary `json:"book" db:"book"`
	User               UserSummary `json:"user" db:"user"`
}

type BorrowingFilter struct {
	// OnlyActive selects borrowings without actual_return_date.
	OnlyActive bool
	// UserID of 0 means all users.
	UserID int64
}

type CreateBorrowingRequest struct {
	BookID             int64      `json:"book" validate:"required,gt=0"`
	BorrowDate         *time.Time `json:"borrow_date"`
	ExpectedReturnDate time.Time  `json:"expected_return_date" validate:"required"`
}

type ReturnBorrowingRequest struct {
	ActualReturnDate *time.Time `json:"actual_return_date"`
}

// BorrowingEvent is what the notifier publishes for a new borrowing.
type BorrowingEvent struct {
	EventID            string          `json:"event_id"`
	BorrowingID        int64           `json:"borrowing_id"`
	UserID             int64           `json:"user_id"`
	UserEmail          string          `json:"user_email"`
	BookID             int64           `json:"book_id"`
	BookTitle          string          `json:"book_title"`
	BookAuthor         string          `json:"book_author"`
	DailyFee           decimal.Decimal `json:"daily_fee"`
	BorrowDate         time.Time       `json:"borrow_date"`
	ExpectedReturnDate time.Time       `json:"expected_return_date"`
}

func (e BorrowingEvent) Text() string {
	return fmt.Sprintf("New borrowing #%d\nUser: %s\nBook: %s, author %s\nDaily fee: %s\nBorrowed: %s\nExpected return: %s",
		e.BorrowingID, e.UserEmail, e.BookTitle, e.BookAuthor, e.DailyFee.StringFixed(2),
		e.BorrowDate.Format(time.DateOnly), e.ExpectedReturnDate.Format(time.DateOnly))
}
