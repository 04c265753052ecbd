// Package ledger owns the lifecycle of print requests from submission to completion.
//
//	Pending --accept--> Responded(Accepted) --mark printed--> Printed
//	Pending --decline--> Responded(Declined)
//
// Every transition is checked against one table; the repository serializes
// mutations of the same record.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"printbroker/internal/domain"
	"printbroker/internal/infra/logging"
)

// Repository stores print requests.
type Repository interface {
	Insert(ctx context.Context, r domain.PrintRequest) (domain.PrintRequest, error)
	Get(ctx context.Context, id int64) (domain.PrintRequest, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.PrintRequest, error)
	// ListByShop filters by status and, unless action is empty, by action.
	ListByShop(ctx context.Context, shopID int64, status domain.Status, action domain.Action) ([]domain.PrintRequest, error)
	// Mutate applies fn to the locked record and persists it when fn reports a change.
	Mutate(ctx context.Context, id int64, fn func(*domain.PrintRequest) (bool, error)) (domain.PrintRequest, error)
	Delete(ctx context.Context, id int64) (domain.PrintRequest, error)
}

type Users interface {
	UserByID(ctx context.Context, id int64) (domain.User, error)
}

type Shops interface {
	ShopByID(ctx context.Context, id int64) (domain.Shop, error)
}

// FeedCache caches ListForUser results. Implementations swallow their own failures.
type FeedCache interface {
	// Get returns the cached list. On a miss, version identifies the cache
	// generation the caller must pass to Set.
	Get(ctx context.Context, userID int64) (list []domain.PrintRequest, version int64, ok bool)
	// Set stores list under version. Lists stored under a version that
	// Invalidate has since moved past are never returned by Get.
	Set(ctx context.Context, userID, version int64, list []domain.PrintRequest)
	Invalidate(ctx context.Context, userID int64)
}

type noFeed struct{}

func (noFeed) Get(context.Context, int64) ([]domain.PrintRequest, int64, bool) { return nil, -1, false }
func (noFeed) Set(context.Context, int64, int64, []domain.PrintRequest)        {}
func (noFeed) Invalidate(context.Context, int64)                               {}

type Option func(*Ledger)

// WithFeedCache serves ListForUser from c.
func WithFeedCache(c FeedCache) Option {
	return func(l *Ledger) {
		if c != nil {
			l.feed = c
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger is the authoritative store of print requests and their lifecycle.
type Ledger struct {
	repo  Repository
	users Users
	shops Shops
	feed  FeedCache
	now   func() time.Time
}

func New(repo Repository, users Users, shops Shops, opts ...Option) *Ledger {
	l := &Ledger{repo: repo, users: users, shops: shops, feed: noFeed{}, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Ledger) clock() time.Time {
	return l.now().UTC()
}

// Submit records a new Pending request from userID to shopID.
func (l *Ledger) Submit(ctx context.Context, userID, shopID int64, spec domain.Spec, artifact string) (domain.PrintRequest, error) {
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return domain.PrintRequest{}, err
	}
	if strings.TrimSpace(artifact) == "" {
		return domain.PrintRequest{}, fmt.Errorf("%w: artifact is required", domain.ErrValidation)
	}
	if _, err := l.users.UserByID(ctx, userID); err != nil {
		return domain.PrintRequest{}, fmt.Errorf("user %d: %w", userID, err)
	}
	if _, err := l.shops.ShopByID(ctx, shopID); err != nil {
		return domain.PrintRequest{}, fmt.Errorf("shop %d: %w", shopID, err)
	}

	now := l.clock()
	r, err := l.repo.Insert(ctx, domain.PrintRequest{
		UserID:    userID,
		ShopID:    shopID,
		Spec:      spec,
		Artifact:  artifact,
		Status:    domain.StatusPending,
		Action:    domain.ActionPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.PrintRequest{}, err
	}
	l.feed.Invalidate(ctx, userID)
	logging.Info("Print request submitted", "print_request", r.ID, "user_id", userID, "shop_id", shopID)
	return r, nil
}

// Get returns one request or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, id int64) (domain.PrintRequest, error) {
	return l.repo.Get(ctx, id)
}

// ListForUser returns every request owned by userID in insertion order.
func (l *Ledger) ListForUser(ctx context.Context, userID int64) ([]domain.PrintRequest, error) {
	list, version, ok := l.feed.Get(ctx, userID)
	if ok {
		return list, nil
	}
	list, err := l.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	l.feed.Set(ctx, userID, version, list)
	return list, nil
}

// ListPendingForShop returns the shop's Pending requests. Only the shop's owner may ask.
func (l *Ledger) ListPendingForShop(ctx context.Context, shopID int64, requesterEmail string) ([]domain.PrintRequest, error) {
	sh, err := l.shops.ShopByID(ctx, shopID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: shop %d is not run by %s", domain.ErrForbidden, shopID, requesterEmail)
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(sh.OwnerEmail, strings.TrimSpace(requesterEmail)) {
		return nil, fmt.Errorf("%w: shop %d is not run by %s", domain.ErrForbidden, shopID, requesterEmail)
	}
	return l.repo.ListByShop(ctx, shopID, domain.StatusPending, "")
}

// ListAcceptedForShop returns accepted requests that are not printed yet.
func (l *Ledger) ListAcceptedForShop(ctx context.Context, shopID int64) ([]domain.PrintRequest, error) {
	return l.repo.ListByShop(ctx, shopID, domain.StatusResponded, domain.ActionAccepted)
}

// Respond accepts or declines a Pending request.
func (l *Ledger) Respond(ctx context.Context, id int64, d domain.Decision) (domain.PrintRequest, error) {
	var o op
	switch d {
	case domain.DecisionAccept:
		o = opAccept
	case domain.DecisionDecline:
		o = opDecline
	default:
		return domain.PrintRequest{}, fmt.Errorf("%w: unknown decision %q", domain.ErrValidation, d)
	}
	return l.transition(ctx, id, o, nil)
}

// MarkPrinted completes an accepted request. Marking a Printed request again
// returns it unchanged.
func (l *Ledger) MarkPrinted(ctx context.Context, id int64) (domain.PrintRequest, error) {
	return l.transition(ctx, id, opMarkPrinted, nil)
}

// UpdateSpec patches the spec of a Pending request. UpdatedAt always advances.
func (l *Ledger) UpdateSpec(ctx context.Context, id int64, patch domain.SpecPatch) (domain.PrintRequest, error) {
	return l.transition(ctx, id, opEdit, func(r *domain.PrintRequest) error {
		spec := patch.Apply(r.Spec).Normalize()
		if err := spec.Validate(); err != nil {
			return err
		}
		r.Spec = spec
		return nil
	})
}

// transition moves id through o. edit, when set, changes fields after the state check.
func (l *Ledger) transition(ctx context.Context, id int64, o op, edit func(*domain.PrintRequest) error) (domain.PrintRequest, error) {
	r, err := l.repo.Mutate(ctx, id, func(r *domain.PrintRequest) (bool, error) {
		to, err := next(*r, o)
		if err != nil {
			return false, err
		}
		if o != opEdit && to == stateOf(*r) {
			return false, nil
		}
		if edit != nil {
			if err := edit(r); err != nil {
				return false, err
			}
		}
		r.Status, r.Action = to.status, to.action
		r.Touch(l.clock())
		return true, nil
	})
	if err != nil {
		return domain.PrintRequest{}, err
	}
	l.feed.Invalidate(ctx, r.UserID)
	logging.Info("Print request updated", "print_request", r.ID, "op", string(o), "status", string(r.Status), "action", string(r.Action))
	return r, nil
}

// Delete removes a request. The referenced artifact is kept.
func (l *Ledger) Delete(ctx context.Context, id int64) error {
	r, err := l.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	l.feed.Invalidate(ctx, r.UserID)
	logging.Info("Print request deleted", "print_request", id, "user_id", r.UserID)
	return nil
}
