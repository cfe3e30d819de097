package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Astemirdum/library-borrowing/library/internal/cache"
	"github.com/Astemirdum/library-borrowing/library/internal/errs"
	"github.com/Astemirdum/library-borrowing/library/internal/model"
	"github.com/Astemirdum/library-borrowing/pkg/auth"
	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memRepo keeps the ledger in memory under one lock, which gives the same
// all-or-nothing behaviour as the database transactions.
type memRepo struct {
	mu         sync.Mutex
	books      map[int64]model.Book
	borrowings map[int64]model.Borrowing
	users      map[int64]auth.Caller
	nextID     int64
}

func newMemRepo(books ...model.Book) *memRepo {
	r := &memRepo{
		books:      make(map[int64]model.Book),
		borrowings: make(map[int64]model.Borrowing),
		users:      make(map[int64]auth.Caller),
	}
	for _, b := range books {
		r.books[b.ID] = b
		if b.ID > r.nextID {
			r.nextID = b.ID
		}
	}
	return r
}

func (r *memRepo) ListBooks(context.Context) ([]model.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	books := make([]model.Book, 0, len(r.books))
	for _, b := range r.books {
		books = append(books, b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books, nil
}

func (r *memRepo) GetBook(_ context.Context, id int64) (model.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok {
		return model.Book{}, errs.ErrNotFound
	}
	return b, nil
}

func (r *memRepo) CreateBook(_ context.Context, book model.Book) (model.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	book.ID = r.nextID
	r.books[book.ID] = book
	return book, nil
}

func (r *memRepo) UpdateBook(_ context.Context, book model.Book) (model.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.books[book.ID]; !ok {
		return model.Book{}, errs.ErrNotFound
	}
	r.books[book.ID] = book
	return book, nil
}

func (r *memRepo) PatchBook(_ context.Context, id int64, patch model.BookPatch) (model.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.books[id]
	if !ok {
		return model.Book{}, errs.ErrNotFound
	}
	book := patch.Apply(current)
	if err := book.Validate(); err != nil {
		return model.Book{}, err
	}
	r.books[id] = book
	return book, nil
}

func (r *memRepo) DeleteBook(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.books[id]; !ok {
		return errs.ErrNotFound
	}
	delete(r.books, id)
	for bid, b := range r.borrowings {
		if b.BookID == id {
			delete(r.borrowings, bid)
		}
	}
	return nil
}

func (r *memRepo) CreateBorrowing(_ context.Context, borrowing model.Borrowing, user auth.Caller) (model.Borrowing, model.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	book, ok := r.books[borrowing.BookID]
	if !ok {
		return model.Borrowing{}, model.Book{}, errs.ErrNotFound
	}
	if book.Inventory == 0 {
		return model.Borrowing{}, model.Book{}, errs.ErrNoStock
	}
	book.Inventory--
	r.books[book.ID] = book
	r.users[user.ID] = user
	r.nextID++
	borrowing.ID = r.nextID
	borrowing.UserID = user.ID
	r.borrowings[borrowing.ID] = borrowing
	return borrowing, book, nil
}

func (r *memRepo) ReturnBorrowing(_ context.Context, id int64, actual time.Time) (model.Borrowing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.borrowings[id]
	if !ok {
		return model.Borrowing{}, errs.ErrNotFound
	}
	closed, err := current.Close(actual)
	if err != nil {
		return model.Borrowing{}, err
	}
	r.borrowings[id] = closed
	book := r.books[closed.BookID]
	book.Inventory++
	r.books[book.ID] = book
	return closed, nil
}

func (r *memRepo) detail(b model.Borrowing) model.BorrowingDetail {
	book, user := r.books[b.BookID], r.users[b.UserID]
	return model.BorrowingDetail{
		ID:                 b.ID,
		BorrowDate:         b.BorrowDate,
		ExpectedReturnDate: b.ExpectedReturnDate,
		ActualReturnDate:   b.ActualReturnDate,
		Book:               model.BookSummary{ID: book.ID, Title: book.Title, Author: book.Author, Cover: book.Cover, DailyFee: book.DailyFee},
		User:               model.UserSummary{ID: user.ID, Email: user.Email, IsStaff: user.IsStaff},
	}
}

func matches(b model.Borrowing, filter model.BorrowingFilter) bool {
	if filter.OnlyActive && b.Status() != model.StatusOpen {
		return false
	}
	return filter.UserID == 0 || b.UserID == filter.UserID
}

func (r *memRepo) ListBorrowings(_ context.Context, filter model.BorrowingFilter) ([]model.BorrowingDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]model.BorrowingDetail, 0)
	for _, b := range r.borrowings {
		if matches(b, filter) {
			items = append(items, r.detail(b))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *memRepo) GetBorrowing(_ context.Context, id int64) (model.BorrowingDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.borrowings[id]
	if !ok {
		return model.BorrowingDetail{}, errs.ErrNotFound
	}
	return r.detail(b), nil
}

func (r *memRepo) inventory(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.books[id].Inventory
}

type recorder struct {
	mu     sync.Mutex
	events []model.BorrowingEvent
	err    error
}

func (n *recorder) Notify(_ context.Context, event model.BorrowingEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

var (
	staff = auth.Caller{ID: 1, Email: "admin@mail.com", IsStaff: true}
	user  = auth.Caller{ID: 2, Email: "test_user@mail.com"}
	other = auth.Caller{ID: 3, Email: "other_user@mail.com"}

	day0 = time.Date(2023, 6, 10, 0, 0, 0, 0, time.UTC)
)

func sampleBook(id int64, inventory int) model.Book {
	return model.Book{
		ID:        id,
		Title:     "Sample title",
		Author:    "Sample author",
		Cover:     model.CoverHard,
		Inventory: inventory,
		DailyFee:  decimal.RequireFromString("1.25"),
	}
}

func newTestService(repo *memRepo, n *recorder) *Service {
	s := NewService(repo, cache.NewNop(), n, zap.NewNop())
	s.now = func() time.Time { return day0 }
	return s
}

// interleavedRepo runs between once, right after the first catalog read,
// to model a borrowing committed by another request.
type interleavedRepo struct {
	*memRepo
	once    sync.Once
	between func()
}

func (r *interleavedRepo) interleave() {
	r.once.Do(func() {
		if r.between != nil {
			r.between()
		}
	})
}

func (r *interleavedRepo) ListBooks(ctx context.Context) ([]model.Book, error) {
	books, err := r.memRepo.ListBooks(ctx)
	r.interleave()
	return books, err
}

func (r *interleavedRepo) GetBook(ctx context.Context, id int64) (model.Book, error) {
	book, err := r.memRepo.GetBook(ctx, id)
	r.interleave()
	return book, err
}

func (r *interleavedRepo) PatchBook(ctx context.Context, id int64, patch model.BookPatch) (model.Book, error) {
	r.interleave()
	return r.memRepo.PatchBook(ctx, id, patch)
}

func TestService_BorrowReturnRoundTrip(t *testing.T) {
	t.Parallel()
	repo := newMemRepo(sampleBook(1, 5))
	n := &recorder{}
	s := newTestService(repo, n)
	ctx := context.Background()

	borrowing, err := s.CreateBorrowing(ctx, user, model.CreateBorrowingRequest{
		BookID:             1,
		ExpectedReturnDate: day0.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	require.Equal(t, 4, repo.inventory(1))
	require.Equal(t, user.ID, borrowing.UserID)
	require.Equal(t, day0, borrowing.BorrowDate)
	require.Equal(t, model.StatusOpen, borrowing.Status())

	require.Len(t, n.events, 1)
	require.Equal(t, borrowing.ID, n.events[0].BorrowingID)
	require.Equal(t, "Sample title", n.events[0].BookTitle)
	require.Equal(t, user.Email, n.events[0].UserEmail)
	require.NotEmpty(t, n.events[0].EventID)

	returned, err := s.ReturnBorrowing(ctx, staff, borrowing.ID, model.ReturnBorrowingRequest{})
	require.NoError(t, err)
	require.Equal(t, model.StatusClosed, returned.Status())
	require.Equal(t, 5, repo.inventory(1))

	_, err = s.ReturnBorrowing(ctx, staff, borrowing.ID, model.ReturnBorrowingRequest{})
	require.ErrorIs(t, err, errs.ErrAlreadyReturned)
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Equal(t, 5, repo.inventory(1))
}

func TestService_CreateBorrowing(t *testing.T) {
	t.Parallel()
	tomorrow := day0.AddDate(0, 0, 1)

	tests := []struct {
		name    string
		caller  auth.Caller
		req     model.CreateBorrowingRequest
		wantErr error
	}{
		{
			name:    "anonymous",
			req:     model.CreateBorrowingRequest{BookID: 1, ExpectedReturnDate: tomorrow},
			wantErr: errs.ErrUnauthorized,
		},
		{
			name:    "no stock",
			caller:  user,
			req:     model.CreateBorrowingRequest{BookID: 2, ExpectedReturnDate: tomorrow},
			wantErr: errs.ErrNoStock,
		},
		{
			name:    "unknown book",
			caller:  user,
			req:     model.CreateBorrowingRequest{BookID: 42, ExpectedReturnDate: tomorrow},
			wantErr: errs.ErrNotFound,
		},
		{
			name:    "expected equals borrow",
			caller:  user,
			req:     model.CreateBorrowingRequest{BookID: 1, ExpectedReturnDate: day0},
			wantErr: errs.ErrInvalidDates,
		},
		{
			name:   "expected before explicit borrow date",
			caller: user,
			req: model.CreateBorrowingRequest{
				BookID:             1,
				BorrowDate:         &tomorrow,
				ExpectedReturnDate: day0,
			},
			wantErr: errs.ErrValidation,
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			repo := newMemRepo(sampleBook(1, 5), sampleBook(2, 0))
			n := &recorder{}
			s := newTestService(repo, n)

			_, err := s.CreateBorrowing(context.Background(), test.caller, test.req)
			require.ErrorIs(t, err, test.wantErr)
			require.Equal(t, 5, repo.inventory(1))
			require.Equal(t, 0, repo.inventory(2))
			require.Empty(t, repo.borrowings)
			require.Empty(t, n.events)
		})
	}
}

func TestService_CreateBorrowingNotifyFailure(t *testing.T) {
	t.Parallel()
	repo := newMemRepo(sampleBook(1, 1))
	s := newTestService(repo, &recorder{err: errors.New("sink is down")})

	_, err := s.CreateBorrowing(context.Background(), user, model.CreateBorrowingRequest{
		BookID:             1,
		ExpectedReturnDate: day0.AddDate(0, 0, 3),
	})
	require.NoError(t, err)
	require.Equal(t, 0, repo.inventory(1))
}

func TestService_ReturnBorrowing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newMemRepo(sampleBook(1, 5))
	s := newTestService(repo, &recorder{})

	borrowing, err := s.CreateBorrowing(ctx, user, model.CreateBorrowingRequest{
		BookID:             1,
		ExpectedReturnDate: day0.AddDate(0, 0, 1),
	})
	require.NoError(t, err)

	_, err = s.ReturnBorrowing(ctx, auth.Caller{}, borrowing.ID, model.ReturnBorrowingRequest{})
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = s.ReturnBorrowing(ctx, user, borrowing.ID, model.ReturnBorrowingRequest{})
	require.ErrorIs(t, err, errs.ErrForbidden)

	// permission is checked before the borrowing is looked up
	_, err = s.ReturnBorrowing(ctx, user, 404, model.ReturnBorrowingRequest{})
	require.ErrorIs(t, err, errs.ErrForbidden)

	_, err = s.ReturnBorrowing(ctx, staff, 404, model.ReturnBorrowingRequest{})
	require.ErrorIs(t, err, errs.ErrNotFound)

	early := day0.Add(-time.Hour)
	_, err = s.ReturnBorrowing(ctx, staff, borrowing.ID, model.ReturnBorrowingRequest{ActualReturnDate: &early})
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Equal(t, 4, repo.inventory(1))

	late := day0.AddDate(0, 0, 2)
	got, err := s.ReturnBorrowing(ctx, staff, borrowing.ID, model.ReturnBorrowingRequest{ActualReturnDate: &late})
	require.NoError(t, err)
	require.Equal(t, late, *got.ActualReturnDate)
	require.Equal(t, 5, repo.inventory(1))
}

func TestService_BorrowingVisibility(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newMemRepo(sampleBook(1, 5))
	s := newTestService(repo, &recorder{})

	req := model.CreateBorrowingRequest{BookID: 1, ExpectedReturnDate: day0.AddDate(0, 0, 1)}
	mine, err := s.CreateBorrowing(ctx, user, req)
	require.NoError(t, err)
	theirs, err := s.CreateBorrowing(ctx, other, req)
	require.NoError(t, err)
	closed, err := s.CreateBorrowing(ctx, user, req)
	require.NoError(t, err)
	_, err = s.ReturnBorrowing(ctx, staff, closed.ID, model.ReturnBorrowingRequest{})
	require.NoError(t, err)

	ids := func(items []model.BorrowingDetail) []int64 {
		res := make([]int64, 0, len(items))
		for _, item := range items {
			res = append(res, item.ID)
		}
		return res
	}

	t.Run("anonymous", func(t *testing.T) {
		_, err := s.ListBorrowings(ctx, auth.Caller{}, model.BorrowingFilter{})
		require.ErrorIs(t, err, errs.ErrUnauthorized)
		_, err = s.GetBorrowing(ctx, auth.Caller{}, mine.ID)
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	})

	t.Run("user sees own only", func(t *testing.T) {
		items, err := s.ListBorrowings(ctx, user, model.BorrowingFilter{})
		require.NoError(t, err)
		require.Equal(t, []int64{mine.ID, closed.ID}, ids(items))
		require.Equal(t, user.Email, items[0].User.Email)
		require.Equal(t, "Sample title", items[0].Book.Title)
	})

	t.Run("user_id is ignored for users", func(t *testing.T) {
		items, err := s.ListBorrowings(ctx, user, model.BorrowingFilter{UserID: other.ID})
		require.NoError(t, err)
		require.Equal(t, []int64{mine.ID, closed.ID}, ids(items))
	})

	t.Run("is_active", func(t *testing.T) {
		items, err := s.ListBorrowings(ctx, user, model.BorrowingFilter{OnlyActive: true})
		require.NoError(t, err)
		require.Equal(t, []int64{mine.ID}, ids(items))
	})

	t.Run("staff sees all", func(t *testing.T) {
		items, err := s.ListBorrowings(ctx, staff, model.BorrowingFilter{})
		require.NoError(t, err)
		require.Equal(t, []int64{mine.ID, theirs.ID, closed.ID}, ids(items))
	})

	t.Run("staff filters by user", func(t *testing.T) {
		items, err := s.ListBorrowings(ctx, staff, model.BorrowingFilter{UserID: other.ID, OnlyActive: true})
		require.NoError(t, err)
		require.Equal(t, []int64{theirs.ID}, ids(items))
	})

	t.Run("detail", func(t *testing.T) {
		got, err := s.GetBorrowing(ctx, user, mine.ID)
		require.NoError(t, err)
		require.Equal(t, mine.ID, got.ID)

		_, err = s.GetBorrowing(ctx, user, theirs.ID)
		require.ErrorIs(t, err, errs.ErrNotFound)

		got, err = s.GetBorrowing(ctx, staff, theirs.ID)
		require.NoError(t, err)
		require.Equal(t, other.ID, got.User.ID)
	})
}

func TestService_Catalog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newMemRepo(sampleBook(1, 5))
	s := newTestService(repo, &recorder{})

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)

	newBook := model.Book{Title: "Dune", Author: "Frank Herbert", Cover: model.CoverSoft, Inventory: 2}

	_, err = s.CreateBook(ctx, auth.Caller{}, newBook)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = s.CreateBook(ctx, user, newBook)
	require.ErrorIs(t, err, errs.ErrForbidden)

	invalid := newBook
	invalid.Inventory = -1
	_, err = s.CreateBook(ctx, staff, invalid)
	require.ErrorIs(t, err, errs.ErrValidation)

	created, err := s.CreateBook(ctx, staff, newBook)
	require.NoError(t, err)
	require.Equal(t, "Dune, author Frank Herbert", created.String())

	title := "Dune Messiah"
	patched, err := s.PatchBook(ctx, staff, created.ID, model.BookPatch{Title: &title})
	require.NoError(t, err)
	require.Equal(t, title, patched.Title)
	require.Equal(t, 2, patched.Inventory)

	replaced, err := s.UpdateBook(ctx, staff, created.ID, model.Book{Title: "Emma", Author: "Jane Austen", Cover: model.CoverHard})
	require.NoError(t, err)
	require.Equal(t, created.ID, replaced.ID)
	require.Equal(t, 0, replaced.Inventory)

	_, err = s.PatchBook(ctx, staff, 404, model.BookPatch{Title: &title})
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.ErrorIs(t, s.DeleteBook(ctx, user, created.ID), errs.ErrForbidden)
	require.NoError(t, s.DeleteBook(ctx, staff, created.ID))
	_, err = s.GetBook(ctx, created.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestService_PatchKeepsConcurrentBorrowing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := &interleavedRepo{memRepo: newMemRepo(sampleBook(1, 5))}
	s := NewService(repo, cache.NewNop(), &recorder{}, zap.NewNop())
	s.now = func() time.Time { return day0 }
	repo.between = func() {
		_, err := s.CreateBorrowing(ctx, user, model.CreateBorrowingRequest{BookID: 1, ExpectedReturnDate: day0.AddDate(0, 0, 1)})
		require.NoError(t, err)
	}

	title := "New title"
	patched, err := s.PatchBook(ctx, staff, 1, model.BookPatch{Title: &title})
	require.NoError(t, err)
	require.Equal(t, title, patched.Title)
	require.Equal(t, 4, patched.Inventory)
	require.Equal(t, 4, repo.inventory(1))

	items, err := s.ListBorrowings(ctx, staff, model.BorrowingFilter{OnlyActive: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestService_CacheNotStaleAfterConcurrentBorrowing(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	borrow := func(s *Service) func() {
		return func() {
			_, err := s.CreateBorrowing(ctx, user, model.CreateBorrowingRequest{BookID: 1, ExpectedReturnDate: day0.AddDate(0, 0, 1)})
			require.NoError(t, err)
		}
	}

	t.Run("list", func(t *testing.T) {
		mr.FlushAll()
		repo := &interleavedRepo{memRepo: newMemRepo(sampleBook(1, 5))}
		s := NewService(repo, cache.NewRedisCache(rdb, time.Minute, zap.NewNop()), &recorder{}, zap.NewNop())
		s.now = func() time.Time { return day0 }
		repo.between = borrow(s)

		books, err := s.ListBooks(ctx)
		require.NoError(t, err)
		require.Equal(t, 5, books[0].Inventory)

		books, err = s.ListBooks(ctx)
		require.NoError(t, err)
		require.Equal(t, 4, books[0].Inventory)
	})

	t.Run("detail", func(t *testing.T) {
		mr.FlushAll()
		repo := &interleavedRepo{memRepo: newMemRepo(sampleBook(1, 5))}
		s := NewService(repo, cache.NewRedisCache(rdb, time.Minute, zap.NewNop()), &recorder{}, zap.NewNop())
		s.now = func() time.Time { return day0 }
		repo.between = borrow(s)

		book, err := s.GetBook(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, 5, book.Inventory)

		book, err = s.GetBook(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, 4, book.Inventory)
	})
}

func TestService_DeleteBookCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newMemRepo(sampleBook(1, 5))
	s := newTestService(repo, &recorder{})

	_, err := s.CreateBorrowing(ctx, user, model.CreateBorrowingRequest{BookID: 1, ExpectedReturnDate: day0.AddDate(0, 0, 1)})
	require.NoError(t, err)
	require.NoError(t, s.DeleteBook(ctx, staff, 1))

	items, err := s.ListBorrowings(ctx, staff, model.BorrowingFilter{})
	require.NoError(t, err)
	require.Empty(t, items)
}
