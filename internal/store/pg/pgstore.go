package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"estatehub.org/internal/community"
	"estatehub.org/internal/store"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
	pgErrNumericOutOfRange   = "22003"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Decision traffic is small; keep the pool modest.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return store.ErrUnavailable
	}
	return s.db.PingContext(ctx)
}

func (s *Store) GetTenant(ctx context.Context, id string) (community.Tenant, error) {
	if s.db == nil {
		return community.Tenant{}, store.ErrUnavailable
	}
	var t community.Tenant
	err := s.db.QueryRowContext(ctx, `
		select id, name, status, created_at
		from tenants
		where id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return community.Tenant{}, store.ErrNotFound
	}
	if err != nil {
		return community.Tenant{}, err
	}
	return t, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

// update builds a conditional "update ... set ... where ... returning" statement
// with positional arguments.
type update struct {
	sets  []string
	conds []string
	args  []any
}

func (u *update) arg(v any) string {
	u.args = append(u.args, v)
	return fmt.Sprintf("$%d", len(u.args))
}

func (u *update) set(col string, v any) {
	u.sets = append(u.sets, col+" = "+u.arg(v))
}

func (u *update) where(col string, v any) {
	u.conds = append(u.conds, col+" = "+u.arg(v))
}

// whereIn expands values into individual placeholders.
func (u *update) whereIn(col string, values []string) {
	ph := make([]string, 0, len(values))
	for _, v := range values {
		ph = append(ph, u.arg(v))
	}
	u.conds = append(u.conds, fmt.Sprintf("%s in (%s)", col, strings.Join(ph, ", ")))
}

func (u *update) scoped(scope community.Scope) {
	if !scope.All {
		u.where("tenant_id", scope.TenantID)
	}
}

func (u *update) statement(table, returning string) string {
	sets := append(append([]string{}, u.sets...), "updated_at = now()")
	return fmt.Sprintf("update %s set %s where %s returning %s",
		table, strings.Join(sets, ", "), strings.Join(u.conds, " and "), returning)
}

// scopedQuery appends the tenant filter to a query that already has a where clause.
func scopedQuery(query string, scope community.Scope, args []any) (string, []any) {
	if scope.All {
		return query, args
	}
	args = append(args, scope.TenantID)
	return fmt.Sprintf("%s and tenant_id = $%d", query, len(args)), args
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}
