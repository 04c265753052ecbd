package shops

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printbroker/internal/domain"
)

type fakeRepo struct {
	shops []domain.Shop
	err   error
}

func (f fakeRepo) ListShops(context.Context) ([]domain.Shop, error) { return f.shops, f.err }

func (f fakeRepo) ShopByID(_ context.Context, id int64) (domain.Shop, error) {
	if f.err != nil {
		return domain.Shop{}, f.err
	}
	for _, sh := range f.shops {
		if sh.ID == id {
			return sh, nil
		}
	}
	return domain.Shop{}, fmt.Errorf("shop %d: %w", id, domain.ErrNotFound)
}

func (f fakeRepo) ShopByName(_ context.Context, name string) (domain.Shop, error) {
	for _, sh := range f.shops {
		if sh.Name == name {
			return sh, nil
		}
	}
	return domain.Shop{}, fmt.Errorf("shop %q: %w", name, domain.ErrNotFound)
}

var corner = domain.Shop{ID: 7, OwnerEmail: "ravi@copy.test", Name: "Copy Corner", CostSingleSide: 1.5, CostBothSides: 2.25}

func TestDirectory_Lookups(t *testing.T) {
	d := NewDirectory(fakeRepo{shops: []domain.Shop{corner}})
	ctx := context.Background()

	list, err := d.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	sh, err := d.ByName(ctx, "Copy Corner")
	require.NoError(t, err)
	assert.Equal(t, int64(7), sh.ID)

	_, err = d.ByName(ctx, "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = d.ByName(ctx, "Elsewhere")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = d.ByID(ctx, 8)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDirectory_Owns(t *testing.T) {
	d := NewDirectory(fakeRepo{shops: []domain.Shop{corner}})
	ctx := context.Background()

	owns, err := d.Owns(ctx, 7, "RAVI@copy.test ")
	require.NoError(t, err)
	assert.True(t, owns)

	owns, err = d.Owns(ctx, 7, "someone@else.test")
	require.NoError(t, err)
	assert.False(t, owns)

	owns, err = d.Owns(ctx, 99, "ravi@copy.test")
	require.NoError(t, err)
	assert.False(t, owns)

	_, err = NewDirectory(fakeRepo{err: domain.ErrStorage}).Owns(ctx, 7, "ravi@copy.test")
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestQuote(t *testing.T) {
	single := domain.Spec{TotalPages: 10, Copies: 3, PrintSide: domain.PrintSideSingle}
	double := domain.Spec{TotalPages: 10, Copies: 3, PrintSide: domain.PrintSideDouble}

	assert.Equal(t, 45.0, Quote(corner, single))
	assert.Equal(t, 67.5, Quote(corner, double))

	odd := domain.Shop{CostSingleSide: 0.333}
	assert.Equal(t, 1.0, Quote(odd, domain.Spec{TotalPages: 3, Copies: 1, PrintSide: domain.PrintSideSingle}))
}
