package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

var (
	ErrNoCaller     = errors.New("caller is not authenticated")
	ErrInvalidToken = errors.New("invalid token")
)

// Caller is the identity a request acts on behalf of.
// The zero value is an anonymous caller.
type Caller struct {
	ID      int64  `json:"id"`
	Email   string `json:"email"`
	IsStaff bool   `json:"is_staff"`
}

func (c Caller) Authenticated() bool {
	return c.ID > 0
}

func CanReadAll(c Caller) bool {
	return c.Authenticated() && c.IsStaff
}

func CanMutateCatalog(c Caller) bool {
	return c.Authenticated() && c.IsStaff
}

func CanReturnBorrowing(c Caller) bool {
	return c.Authenticated() && c.IsStaff
}

func CanCreateBorrowing(c Caller) bool {
	return c.Authenticated()
}

// CanReadBorrowing reports whether c may see a borrowing owned by ownerID.
func CanReadBorrowing(c Caller, ownerID int64) bool {
	return CanReadAll(c) || (c.Authenticated() && c.ID == ownerID)
}

type Claims struct {
	UserID  int64  `json:"user_id"`
	Email   string `json:"email"`
	IsStaff bool   `json:"is_staff"`
	jwt.RegisteredClaims
}

func NewToken(secret []byte, caller Caller, ttl time.Duration) (string, error) {
	if !caller.Authenticated() {
		return "", ErrNoCaller
	}
	now := time.Now()
	claims := &Claims{
		UserID:  caller.ID,
		Email:   caller.Email,
		IsStaff: caller.IsStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func ParseToken(secret []byte, tokenStr string) (Caller, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return Caller{}, ErrInvalidToken
	}
	caller := Caller{ID: claims.UserID, Email: claims.Email, IsStaff: claims.IsStaff}
	if !caller.Authenticated() {
		return Caller{}, ErrInvalidToken
	}
	return caller, nil
}

type callerKey struct{}

func SetCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// GetCaller returns the anonymous caller when none was set.
func GetCaller(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	return c
}
