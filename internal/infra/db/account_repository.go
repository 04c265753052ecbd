package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"printbroker/internal/domain"
	"printbroker/internal/identity"
	"printbroker/internal/infra/logging"
)

// AccountRepository reads users, shops and access tokens.
type AccountRepository struct {
	*Store
}

func NewAccountRepository(s *Store) *AccountRepository {
	return &AccountRepository{Store: s}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserByID loads a user account.
func (s *AccountRepository) UserByID(ctx context.Context, id int64) (domain.User, error) {
	return s.user(ctx, `SELECT id, name, email, contact, address FROM users WHERE id = ?`, id)
}

// UserByEmail loads a user account by its login email.
func (s *AccountRepository) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.user(ctx, `SELECT id, name, email, contact, address FROM users WHERE email = ?`, normalizeEmail(email))
}

func (s *AccountRepository) user(ctx context.Context, query string, arg any) (domain.User, error) {
	var (
		u       domain.User
		contact sql.NullString
		address sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.q(query), arg).Scan(&u.ID, &u.Name, &u.Email, &contact, &address)
	if err != nil {
		return domain.User{}, storageErr("get user", err)
	}
	u.Contact = contact.String
	u.Address = address.String
	return u, nil
}

const shopColumns = `id, name, email, shop_name, address, contact, cost_single_side, cost_both_sides`

func scanShop(row rowScanner) (domain.Shop, error) {
	var (
		sh      domain.Shop
		contact sql.NullString
	)
	if err := row.Scan(&sh.ID, &sh.OwnerName, &sh.OwnerEmail, &sh.Name, &sh.Address, &contact,
		&sh.CostSingleSide, &sh.CostBothSides); err != nil {
		return domain.Shop{}, err
	}
	sh.Contact = contact.String
	return sh, nil
}

// ShopByID loads a shop.
func (s *AccountRepository) ShopByID(ctx context.Context, id int64) (domain.Shop, error) {
	sh, err := scanShop(s.db.QueryRowContext(ctx, s.q(`SELECT `+shopColumns+` FROM shopkeepers WHERE id = ?`), id))
	if err != nil {
		return domain.Shop{}, storageErr(fmt.Sprintf("get shop %d", id), err)
	}
	return sh, nil
}

// ShopByName loads a shop by its display name.
func (s *AccountRepository) ShopByName(ctx context.Context, name string) (domain.Shop, error) {
	sh, err := scanShop(s.db.QueryRowContext(ctx, s.q(`SELECT `+shopColumns+` FROM shopkeepers WHERE shop_name = ?`), strings.TrimSpace(name)))
	if err != nil {
		return domain.Shop{}, storageErr(fmt.Sprintf("get shop %q", name), err)
	}
	return sh, nil
}

// ShopByOwnerEmail loads the shop run by the shopkeeper with the given email.
func (s *AccountRepository) ShopByOwnerEmail(ctx context.Context, email string) (domain.Shop, error) {
	sh, err := scanShop(s.db.QueryRowContext(ctx, s.q(`SELECT `+shopColumns+` FROM shopkeepers WHERE email = ?`), normalizeEmail(email)))
	if err != nil {
		return domain.Shop{}, storageErr("get shop by owner", err)
	}
	return sh, nil
}

// ListShops returns every shop ordered by name.
func (s *AccountRepository) ListShops(ctx context.Context) ([]domain.Shop, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+shopColumns+` FROM shopkeepers ORDER BY shop_name`)
	if err != nil {
		return nil, storageErr("list shops", err)
	}
	defer rows.Close()

	out := []domain.Shop{}
	for rows.Next() {
		sh, err := scanShop(rows)
		if err != nil {
			return nil, storageErr("scan shop", err)
		}
		out = append(out, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate shops", err)
	}
	return out, nil
}

// LoadTokens reads all access tokens keyed by token hash. Rows with an unknown
// role are logged and skipped.
func (s *AccountRepository) LoadTokens(ctx context.Context) (map[string]identity.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT token_hash, email, role, rate_limit, expires_at FROM access_tokens`)
	if err != nil {
		return nil, storageErr("load tokens", err)
	}
	defer rows.Close()

	out := make(map[string]identity.Entry)
	for rows.Next() {
		var (
			hash    string
			e       identity.Entry
			role    string
			expires sql.NullTime
		)
		if err := rows.Scan(&hash, &e.Email, &role, &e.RateLimit, &expires); err != nil {
			return nil, storageErr("scan token", err)
		}
		e.Role = domain.Role(role)
		if !e.Role.Valid() {
			logging.Warn("Skipping access token with unknown role", "email", e.Email, "role", role)
			continue
		}
		e.Email = normalizeEmail(e.Email)
		if expires.Valid {
			e.ExpiresAt = expires.Time.UTC()
		}
		out[hash] = e
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate tokens", err)
	}
	return out, nil
}

// CreateUser inserts a user account. A duplicate email is ErrConflict.
func (s *AccountRepository) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	u.Email = normalizeEmail(u.Email)
	if u.Name == "" || u.Email == "" {
		return domain.User{}, fmt.Errorf("create user: %w: name and email are required", domain.ErrValidation)
	}
	err := s.db.QueryRowContext(ctx, s.q(`INSERT INTO users (name, email, contact, address, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`),
		u.Name, u.Email, nullString(u.Contact), nullString(u.Address), time.Now().UTC(),
	).Scan(&u.ID)
	if err != nil {
		return domain.User{}, storageErr("create user", err)
	}
	return u, nil
}

// CreateShop inserts a shopkeeper account. A duplicate email or shop name is ErrConflict.
func (s *AccountRepository) CreateShop(ctx context.Context, sh domain.Shop) (domain.Shop, error) {
	sh.OwnerEmail = normalizeEmail(sh.OwnerEmail)
	sh.Name = strings.TrimSpace(sh.Name)
	if sh.OwnerName == "" || sh.OwnerEmail == "" || sh.Name == "" || sh.Address == "" {
		return domain.Shop{}, fmt.Errorf("create shop: %w: owner name, email, shop name and address are required", domain.ErrValidation)
	}
	if sh.CostSingleSide < 0 || sh.CostBothSides < 0 {
		return domain.Shop{}, fmt.Errorf("create shop: %w: costs must not be negative", domain.ErrValidation)
	}
	err := s.db.QueryRowContext(ctx, s.q(`INSERT INTO shopkeepers
		(name, email, shop_name, address, contact, cost_single_side, cost_both_sides, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		sh.OwnerName, sh.OwnerEmail, sh.Name, sh.Address, nullString(sh.Contact),
		sh.CostSingleSide, sh.CostBothSides, time.Now().UTC(),
	).Scan(&sh.ID)
	if err != nil {
		return domain.Shop{}, storageErr("create shop", err)
	}
	return sh, nil
}

// SaveToken stores a token hash for an account, replacing an existing row with the same hash.
func (s *AccountRepository) SaveToken(ctx context.Context, hash string, e identity.Entry, comment string) error {
	if hash == "" || !e.Role.Valid() || e.Email == "" {
		return fmt.Errorf("save token: %w: hash, email and a valid role are required", domain.ErrValidation)
	}
	var expires sql.NullTime
	if !e.ExpiresAt.IsZero() {
		expires = sql.NullTime{Time: e.ExpiresAt.UTC(), Valid: true}
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM access_tokens WHERE token_hash = ?`), hash); err != nil {
			return storageErr("replace token", err)
		}
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO access_tokens
			(token_hash, email, role, rate_limit, expires_at, created_at, comment)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			hash, normalizeEmail(e.Email), string(e.Role), e.RateLimit, expires, time.Now().UTC(), nullString(comment),
		)
		return storageErr("save token", err)
	})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
