package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"estatehub.org/internal/community"
	"estatehub.org/internal/ids"
	"estatehub.org/internal/store"
)

func (s *Store) AppendAudit(ctx context.Context, e community.AuditEntry) error {
	if s.db == nil {
		return store.ErrUnavailable
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	before, err := marshalSnapshot(e.Before)
	if err != nil {
		return err
	}
	after, err := marshalSnapshot(e.After)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log (id, tenant_id, actor_id, actor_role, action, resource_type, resource_id, before, after, request_id, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, coalesce($11, now()))
	`, e.ID, nullIfEmpty(e.TenantID), e.ActorID, nullIfEmpty(string(e.ActorRole)), e.Action,
		e.ResourceType, e.ResourceID, before, after, nullIfEmpty(e.RequestID), nullTimeIfZero(e))
	return err
}

func (s *Store) ListAudit(ctx context.Context, scope community.Scope, filter store.AuditFilter) ([]community.AuditEntry, error) {
	if s.db == nil {
		return nil, store.ErrUnavailable
	}
	query := `
		select id, coalesce(tenant_id, ''), actor_id, coalesce(actor_role, ''), action,
		       resource_type, resource_id, before, after, coalesce(request_id, ''), occurred_at
		from audit_log
		where true`
	var args []any
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType)
		query += fmt.Sprintf(" and resource_type = $%d", len(args))
	}
	if filter.ResourceID != "" {
		args = append(args, filter.ResourceID)
		query += fmt.Sprintf(" and resource_id = $%d", len(args))
	}
	query, args = scopedQuery(query, scope, args)
	args = append(args, filter.PageSize())
	query += fmt.Sprintf(" order by occurred_at desc limit $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []community.AuditEntry
	for rows.Next() {
		var (
			e             community.AuditEntry
			role          string
			before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorID, &role, &e.Action,
			&e.ResourceType, &e.ResourceID, &before, &after, &e.RequestID, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.ActorRole = community.Role(role)
		if e.Before, err = unmarshalSnapshot(before); err != nil {
			return nil, err
		}
		if e.After, err = unmarshalSnapshot(after); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func marshalSnapshot(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return b, nil
}

func unmarshalSnapshot(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return m, nil
}

func nullTimeIfZero(e community.AuditEntry) any {
	if e.OccurredAt.IsZero() {
		return nil
	}
	return e.OccurredAt
}
