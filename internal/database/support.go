package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

const sessionColumns = `id, guest_id, agent_id, agent_name, agent_avatar, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.SupportSession, error) {
	var (
		session                         types.SupportSession
		agentID, agentName, agentAvatar sql.NullString
	)
	err := row.Scan(
		&session.ID,
		&session.GuestID,
		&agentID,
		&agentName,
		&agentAvatar,
		&session.Active,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if agentID.Valid && agentID.String != "" {
		session.Agent = &types.Agent{
			ID:     agentID.String,
			Name:   agentName.String,
			Avatar: agentAvatar.String,
		}
	}
	return &session, nil
}

// GetSupportSession returns the active session of a guest.
func (m *Manager) GetSupportSession(ctx context.Context, guestID string) (*types.SupportSession, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM support_sessions WHERE guest_id = ? AND active = 1`,
		guestID,
	)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query support session: %w", err)
	}
	return session, nil
}

// CreateSupportSession inserts an active session. A second active session for
// the same guest violates idx_support_sessions_active_guest and yields
// interfaces.ErrDuplicate.
func (m *Manager) CreateSupportSession(ctx context.Context, session *types.SupportSession) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		var agentID, agentName, agentAvatar sql.NullString
		if session.Agent != nil {
			agentID = nullString(session.Agent.ID)
			agentName = nullString(session.Agent.Name)
			agentAvatar = nullString(session.Agent.Avatar)
		}

		_, err := db.ExecContext(ctx, `
			INSERT INTO support_sessions (id, guest_id, agent_id, agent_name, agent_avatar, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		`,
			session.ID,
			session.GuestID,
			agentID, agentName, agentAvatar,
			session.CreatedAt.UTC(),
			session.UpdatedAt.UTC(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("support session for %s: %w", session.GuestID, interfaces.ErrDuplicate)
			}
			return fmt.Errorf("failed to insert support session: %w", err)
		}
		return nil
	})
}

// UpdateSupportSessionAgent rebinds or clears (nil agent) the active session's agent.
func (m *Manager) UpdateSupportSessionAgent(ctx context.Context, guestID string, agent *types.Agent, at time.Time) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		var agentID, agentName, agentAvatar sql.NullString
		if agent != nil {
			agentID = nullString(agent.ID)
			agentName = nullString(agent.Name)
			agentAvatar = nullString(agent.Avatar)
		}

		res, err := db.ExecContext(ctx, `
			UPDATE support_sessions
			SET agent_id = ?, agent_name = ?, agent_avatar = ?, updated_at = ?
			WHERE guest_id = ? AND active = 1
		`, agentID, agentName, agentAvatar, at.UTC(), guestID)
		if err != nil {
			return fmt.Errorf("failed to update support session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return interfaces.ErrNotFound
		}
		return nil
	})
}

// ListActiveSupportSessions returns all active sessions, oldest first.
func (m *Manager) ListActiveSupportSessions(ctx context.Context) ([]*types.SupportSession, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM support_sessions WHERE active = 1 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active support sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.SupportSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan support session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating support session rows: %w", err)
	}
	return sessions, nil
}

// StoreHelpMessage persists a support-queue message.
func (m *Manager) StoreHelpMessage(ctx context.Context, message *types.HelpMessage) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO help_messages (id, guest_id, sender, agent_id, agent_name, agent_avatar, staff_id, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			message.ID,
			message.GuestID,
			string(message.Sender),
			nullString(message.AgentID),
			nullString(message.AgentName),
			nullString(message.AgentAvatar),
			nullString(message.StaffID),
			message.Content,
			message.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert help message: %w", err)
		}
		return nil
	})
}

// CountGuestMessages counts guest-authored messages only.
func (m *Manager) CountGuestMessages(ctx context.Context, guestID string) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM help_messages WHERE guest_id = ? AND sender = 'guest'`,
		guestID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count guest messages: %w", err)
	}
	return n, nil
}

// ListAgents returns the active roster ordered by position, then insertion.
func (m *Manager) ListAgents(ctx context.Context) ([]*types.Agent, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, avatar FROM support_agents
		WHERE active = 1
		ORDER BY position, created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []*types.Agent
	for rows.Next() {
		var agent types.Agent
		if err := rows.Scan(&agent.ID, &agent.Name, &agent.Avatar); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, &agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent rows: %w", err)
	}
	return agents, nil
}
