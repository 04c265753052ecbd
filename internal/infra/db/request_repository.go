package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"printbroker/internal/domain"
)

const requestColumns = `id, user_id, shop_id, total_pages, print_type, print_side, page_size,
	copies, comments, artifact, status, action, created_at, updated_at`

// RequestRepository persists print requests.
type RequestRepository struct {
	*Store
}

func NewRequestRepository(s *Store) *RequestRepository {
	return &RequestRepository{Store: s}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (domain.PrintRequest, error) {
	var (
		r      domain.PrintRequest
		status string
		action string
	)
	err := row.Scan(
		&r.ID, &r.UserID, &r.ShopID,
		&r.Spec.TotalPages, &r.Spec.PrintType, &r.Spec.PrintSide, &r.Spec.PageSize,
		&r.Spec.Copies, &r.Spec.Comments, &r.Artifact,
		&status, &action, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return domain.PrintRequest{}, err
	}
	r.Status = domain.Status(status)
	r.Action = domain.Action(action)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

// Insert stores r and returns it with the assigned id.
func (s *RequestRepository) Insert(ctx context.Context, r domain.PrintRequest) (domain.PrintRequest, error) {
	err := s.db.QueryRowContext(ctx, s.q(`INSERT INTO print_requests
		(user_id, shop_id, total_pages, print_type, print_side, page_size, copies, comments,
		 artifact, status, action, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		r.UserID, r.ShopID, r.Spec.TotalPages, r.Spec.PrintType, r.Spec.PrintSide, r.Spec.PageSize,
		r.Spec.Copies, r.Spec.Comments, r.Artifact, string(r.Status), string(r.Action),
		r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	).Scan(&r.ID)
	if err != nil {
		return domain.PrintRequest{}, storageErr("insert print request", err)
	}
	return r, nil
}

// Get loads one request.
func (s *RequestRepository) Get(ctx context.Context, id int64) (domain.PrintRequest, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+requestColumns+` FROM print_requests WHERE id = ?`), id)
	r, err := scanRequest(row)
	if err != nil {
		return domain.PrintRequest{}, storageErr(fmt.Sprintf("get print request %d", id), err)
	}
	return r, nil
}

// ListByUser returns the user's requests in insertion order.
func (s *RequestRepository) ListByUser(ctx context.Context, userID int64) ([]domain.PrintRequest, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+requestColumns+`
		FROM print_requests WHERE user_id = ? ORDER BY id`), userID)
	if err != nil {
		return nil, storageErr("list requests by user", err)
	}
	return collect(rows)
}

// ListByShop returns the shop's requests in the given status. An empty action matches any action.
func (s *RequestRepository) ListByShop(ctx context.Context, shopID int64, status domain.Status, action domain.Action) ([]domain.PrintRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM print_requests WHERE shop_id = ? AND status = ?`
	args := []any{shopID, string(status)}
	if action != "" {
		query += ` AND action = ?`
		args = append(args, string(action))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, storageErr("list requests by shop", err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]domain.PrintRequest, error) {
	defer rows.Close()
	out := []domain.PrintRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, storageErr("scan print request", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate print requests", err)
	}
	return out, nil
}

// Mutate locks the row, hands it to fn and writes it back when fn reports a change.
// The whole read-modify-write runs in one transaction.
func (s *RequestRepository) Mutate(ctx context.Context, id int64, fn func(*domain.PrintRequest) (bool, error)) (domain.PrintRequest, error) {
	var out domain.PrintRequest
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.q(`SELECT `+requestColumns+` FROM print_requests WHERE id = ?`+s.dialect.forUpdate()), id)
		r, err := scanRequest(row)
		if err != nil {
			return storageErr(fmt.Sprintf("load print request %d", id), err)
		}

		changed, err := fn(&r)
		if err != nil {
			return err
		}
		out = r
		if !changed {
			return nil
		}

		res, err := tx.ExecContext(ctx, s.q(`UPDATE print_requests SET
			total_pages = ?, print_type = ?, print_side = ?, page_size = ?, copies = ?, comments = ?,
			status = ?, action = ?, updated_at = ?
			WHERE id = ?`),
			r.Spec.TotalPages, r.Spec.PrintType, r.Spec.PrintSide, r.Spec.PageSize, r.Spec.Copies, r.Spec.Comments,
			string(r.Status), string(r.Action), r.UpdatedAt.UTC(), id,
		)
		if err != nil {
			return storageErr(fmt.Sprintf("update print request %d", id), err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("update print request %d: %w", id, domain.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return domain.PrintRequest{}, err
	}
	return out, nil
}

// Delete removes the request and returns the row as it was.
func (s *RequestRepository) Delete(ctx context.Context, id int64) (domain.PrintRequest, error) {
	var out domain.PrintRequest
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.q(`SELECT `+requestColumns+` FROM print_requests WHERE id = ?`+s.dialect.forUpdate()), id)
		r, err := scanRequest(row)
		if err != nil {
			return storageErr(fmt.Sprintf("load print request %d", id), err)
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM print_requests WHERE id = ?`), id)
		if err != nil {
			return storageErr(fmt.Sprintf("delete print request %d", id), err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("delete print request %d: %w", id, domain.ErrNotFound)
		}
		out = r
		return nil
	})
	if err != nil {
		return domain.PrintRequest{}, err
	}
	return out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, storageErr("rollback", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}
