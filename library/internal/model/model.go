package model

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Astemirdum/library-borrowing/library/internal/errs"
	"github.com/shopspring/decimal"
)

type Cover string

const (
	CoverHard Cover = "HARD"
	CoverSoft Cover = "SOFT"
)

func (c Cover) Valid() bool {
	return c == CoverHard || c == CoverSoft
}

const maxTextLen = 255

// maxDailyFee is the first value numeric(8,2) cannot hold.
var maxDailyFee = decimal.NewFromInt(1_000_000)

type Book struct {
	ID        int64           `json:"id" db:"id"`
	Title     string          `json:"title" db:"title"`
	Author    string          `json:"author" db:"author"`
	Cover     Cover           `json:"cover" db:"cover"`
	Inventory int             `json:"inventory" db:"inventory"`
	DailyFee  decimal.Decimal `json:"daily_fee" db:"daily_fee"`
}

func (b Book) String() string {
	return fmt.Sprintf("%s, author %s", b.Title, b.Author)
}

func (b Book) Validate() error {
	switch {
	case strings.TrimSpace(b.Title) == "":
		return errs.Validation("title is required")
	case utf8.RuneCountInString(b.Title) > maxTextLen:
		return errs.Validationf("title is longer than %d characters", maxTextLen)
	case strings.TrimSpace(b.Author) == "":
		return errs.Validation("author is required")
	case utf8.RuneCountInString(b.Author) > maxTextLen:
		return errs.Validationf("author is longer than %d characters", maxTextLen)
	case !b.Cover.Valid():
		return errs.Validationf("cover must be one of %s, %s", CoverHard, CoverSoft)
	case b.Inventory < 0:
		return errs.Validation("inventory must not be negative")
	case b.DailyFee.IsNegative():
		return errs.Validation("daily_fee must not be negative")
	case b.DailyFee.GreaterThanOrEqual(maxDailyFee):
		return errs.Validationf("daily_fee must be less than %s", maxDailyFee)
	case !b.DailyFee.Equal(b.DailyFee.Truncate(2)):
		return errs.Validation("daily_fee must have at most 2 decimal places")
	}
	return nil
}

// BookRequest is the body of POST and PUT.
type BookRequest struct {
	Title     string          `json:"title" validate:"required,max=255"`
	Author    string          `json:"author" validate:"required,max=255"`
	Cover     Cover           `json:"cover" validate:"omitempty,oneof=HARD SOFT"`
	Inventory *int            `json:"inventory" validate:"required,gte=0"`
	DailyFee  decimal.Decimal `json:"daily_fee"`
}

func (r BookRequest) Book() Book {
	b := Book{
		Title:    r.Title,
		Author:   r.Author,
		Cover:    r.Cover,
		DailyFee: r.DailyFee,
	}
	if r.Inventory != nil {
		b.Inventory = *r.Inventory
	}
	if b.Cover == "" {
		b.Cover = CoverHard
	}
	return b
}

// BookPatch is the body of PATCH; nil fields are left untouched.
type BookPatch struct {
	Title     *string          `json:"title" validate:"omitempty,min=1,max=255"`
	Author    *string          `json:"author" validate:"omitempty,min=1,max=255"`
	Cover     *Cover           `json:"cover" validate:"omitempty,oneof=HARD SOFT"`
	Inventory *int             `json:"inventory" validate:"omitempty,gte=0"`
	DailyFee  *decimal.Decimal `json:"daily_fee"`
}

func (p BookPatch) Apply(b Book) Book {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.Cover != nil {
		b.Cover = *p.Cover
	}
	if p.Inventory != nil {
		b.Inventory = *p.Inventory
	}
	if p.DailyFee != nil {
		b.DailyFee = *p.DailyFee
	}
	return b
}

// Columns maps the provided fields to their column names.
func (p BookPatch) Columns() map[string]interface{} {
	set := make(map[string]interface{})
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Author != nil {
		set["author"] = *p.Author
	}
	if p.Cover != nil {
		set["cover"] = *p.Cover
	}
	if p.Inventory != nil {
		set["inventory"] = *p.Inventory
	}
	if p.DailyFee != nil {
		set["daily_fee"] = *p.DailyFee
	}
	return set
}
