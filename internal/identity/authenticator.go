package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"printbroker/internal/domain"
)

// Accounts resolves account ids by login email.
type Accounts interface {
	UserByEmail(ctx context.Context, email string) (domain.User, error)
	ShopByOwnerEmail(ctx context.Context, email string) (domain.Shop, error)
}

// Authenticator turns bearer tokens into principals.
type Authenticator struct {
	cache    *Cache
	accounts Accounts
	now      func() time.Time
}

func NewAuthenticator(cache *Cache, accounts Accounts) *Authenticator {
	return &Authenticator{cache: cache, accounts: accounts, now: time.Now}
}

// Authenticate validates token and resolves the account behind it.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
	}
	if !a.cache.Ready() {
		return domain.Principal{}, domain.ErrTokenStoreNotReady
	}
	e, ok := a.cache.Lookup(token)
	if !ok {
		return domain.Principal{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if e.Expired(a.now()) {
		return domain.Principal{}, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	}

	p := domain.Principal{Email: e.Email, Role: e.Role}
	var err error
	switch e.Role {
	case domain.RoleUser:
		p.ID, err = a.ResolveUserByEmail(ctx, e.Email)
	case domain.RoleShopkeeper:
		var sh domain.Shop
		sh, err = a.accounts.ShopByOwnerEmail(ctx, e.Email)
		p.ID = sh.ID
	default:
		return domain.Principal{}, fmt.Errorf("%w: unknown role", domain.ErrUnauthorized)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Principal{}, fmt.Errorf("%w: account no longer exists", domain.ErrUnauthorized)
	}
	if err != nil {
		return domain.Principal{}, err
	}
	return p, nil
}

// ResolveUserByEmail returns the user id for email or ErrNotFound.
func (a *Authenticator) ResolveUserByEmail(ctx context.Context, email string) (int64, error) {
	u, err := a.accounts.UserByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}
