package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"printbroker/internal/domain"
	"printbroker/internal/infra/logging"
)

// Provisioner writes accounts and tokens.
type Provisioner interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	CreateShop(ctx context.Context, sh domain.Shop) (domain.Shop, error)
	SaveToken(ctx context.Context, hash string, e Entry, comment string) error
}

type SeedUser struct {
	Name    string `yaml:"name"`
	Email   string `yaml:"email"`
	Contact string `yaml:"contact"`
	Address string `yaml:"address"`
}

type SeedShop struct {
	OwnerName      string  `yaml:"owner_name"`
	OwnerEmail     string  `yaml:"owner_email"`
	Name           string  `yaml:"shop_name"`
	Address        string  `yaml:"address"`
	Contact        string  `yaml:"contact"`
	CostSingleSide float64 `yaml:"cost_single_side"`
	CostBothSides  float64 `yaml:"cost_both_sides"`
}

// SeedToken carries the raw token; only its hash is stored.
type SeedToken struct {
	Token     string    `yaml:"token"`
	Email     string    `yaml:"email"`
	Role      string    `yaml:"role"`
	RateLimit int       `yaml:"rate_limit"`
	ExpiresAt time.Time `yaml:"expires_at"`
	Comment   string    `yaml:"comment"`
}

// SeedFile is the YAML layout accepted by Seed.
type SeedFile struct {
	Users  []SeedUser  `yaml:"users"`
	Shops  []SeedShop  `yaml:"shops"`
	Tokens []SeedToken `yaml:"tokens"`
}

// SeedFromFile provisions the accounts and tokens listed in a YAML file.
func SeedFromFile(ctx context.Context, p Provisioner, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	return Seed(ctx, p, f)
}

// Seed provisions f. Accounts that already exist are skipped; tokens are upserted.
func Seed(ctx context.Context, p Provisioner, f SeedFile) error {
	for _, u := range f.Users {
		_, err := p.CreateUser(ctx, domain.User{Name: u.Name, Email: u.Email, Contact: u.Contact, Address: u.Address})
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}
	for _, s := range f.Shops {
		_, err := p.CreateShop(ctx, domain.Shop{
			OwnerName:      s.OwnerName,
			OwnerEmail:     s.OwnerEmail,
			Name:           s.Name,
			Address:        s.Address,
			Contact:        s.Contact,
			CostSingleSide: s.CostSingleSide,
			CostBothSides:  s.CostBothSides,
		})
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("seed shop %s: %w", s.Name, err)
		}
	}
	for _, t := range f.Tokens {
		if t.Token == "" {
			return fmt.Errorf("seed token for %s: %w: token is empty", t.Email, domain.ErrValidation)
		}
		limit := t.RateLimit
		if limit == 0 {
			limit = 60
		}
		e := Entry{Email: t.Email, Role: domain.Role(t.Role), RateLimit: limit, ExpiresAt: t.ExpiresAt}
		if err := p.SaveToken(ctx, HashToken(t.Token), e, t.Comment); err != nil {
			return fmt.Errorf("seed token for %s: %w", t.Email, err)
		}
	}
	logging.Info("Seed applied", "users", len(f.Users), "shops", len(f.Shops), "tokens", len(f.Tokens))
	return nil
}
