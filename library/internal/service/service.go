package service

import (
	"time"

	"github.com/Astemirdum/library-borrowing/library/internal/cache"
	"github.com/Astemirdum/library-borrowing/library/internal/errs"
	"github.com/Astemirdum/library-borrowing/library/internal/notify"
	"github.com/Astemirdum/library-borrowing/library/internal/repository"
	"github.com/Astemirdum/library-borrowing/pkg/auth"
	"go.uber.org/zap"
)

type Service struct {
	log      *zap.Logger
	repo     repository.Repository
	cache    cache.BookCache
	notifier notify.Notifier
	now      func() time.Time
}

func NewService(repo repository.Repository, bookCache cache.BookCache, notifier notify.Notifier, log *zap.Logger) *Service {
	return &Service{
		log:      log.Named("service"),
		repo:     repo,
		cache:    bookCache,
		notifier: notifier,
		now:      time.Now,
	}
}

// authorize fails with ErrUnauthorized for anonymous callers before the
// predicate is consulted.
func authorize(caller auth.Caller, allowed func(auth.Caller) bool) error {
	if !caller.Authenticated() {
		return errs.ErrUnauthorized
	}
	if !allowed(caller) {
		return errs.ErrForbidden
	}
	return nil
}
