package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

const userColumns = `id, external_id, role, name, avatar`

func scanIdentity(row *sql.Row) (*types.Identity, error) {
	var (
		identity types.Identity
		role     string
	)
	err := row.Scan(&identity.UserID, &identity.ExternalID, &role, &identity.Name, &identity.Avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	identity.Role = types.ParseRole(role)
	return &identity, nil
}

// GetUserByExternalID resolves an external key to the stored identity.
func (m *Manager) GetUserByExternalID(ctx context.Context, externalID string) (*types.Identity, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID)
	return scanIdentity(row)
}

// GetUser reads a user by internal key.
func (m *Manager) GetUser(ctx context.Context, userID string) (*types.Identity, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
	return scanIdentity(row)
}

// AreFriends checks for an accepted friendship in either direction.
func (m *Manager) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM friendships
			WHERE status = 'accepted'
			  AND ((requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?))
		)
	`
	var exists bool
	if err := m.db.QueryRowContext(ctx, query, userA, userB, userB, userA).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to query friendship: %w", err)
	}
	return exists, nil
}

// ListFriendIDs returns every user with an accepted friendship to userID.
func (m *Manager) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT receiver_id FROM friendships WHERE requester_id = ? AND status = 'accepted'
		UNION
		SELECT requester_id FROM friendships WHERE receiver_id = ? AND status = 'accepted'
	`
	return m.queryIDs(ctx, query, userID, userID)
}

// UpdatePresence persists the online flag, status and last-seen of a user.
func (m *Manager) UpdatePresence(ctx context.Context, presence *types.Presence) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE users SET presence_status = ?, is_online = ?, last_seen = ? WHERE id = ?`,
			string(presence.Status), presence.IsOnline, presence.LastSeen.UTC(), presence.UserID,
		)
		if err != nil {
			return fmt.Errorf("failed to update presence: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return interfaces.ErrNotFound
		}
		return nil
	})
}

// GetPresence reads the persisted presence of a user.
func (m *Manager) GetPresence(ctx context.Context, userID string) (*types.Presence, error) {
	var (
		presence types.Presence
		status   string
		lastSeen sql.NullTime
	)
	err := m.db.QueryRowContext(ctx,
		`SELECT id, presence_status, is_online, last_seen FROM users WHERE id = ?`, userID,
	).Scan(&presence.UserID, &status, &presence.IsOnline, &lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query presence: %w", err)
	}
	presence.Status = types.PresenceStatus(status)
	if lastSeen.Valid {
		presence.LastSeen = lastSeen.Time
	}
	return &presence, nil
}

func (m *Manager) queryIDs(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating id rows: %w", err)
	}
	return ids, nil
}
