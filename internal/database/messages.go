package database

import (
	"context"
	"database/sql"
	"fmt"

	"eduhub/pkg/types"
)

// StoreMessage persists a validated chat message.
func (m *Manager) StoreMessage(ctx context.Context, message *types.ChatMessage) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		var (
			fileURL, fileType, fileName sql.NullString
			fileSize                    sql.NullInt64
			fileDuration                sql.NullFloat64
		)
		if f := message.File; f != nil {
			fileURL = nullString(f.URL)
			fileType = nullString(f.Type)
			fileName = nullString(f.Name)
			fileSize = sql.NullInt64{Int64: f.Size, Valid: true}
			fileDuration = sql.NullFloat64{Float64: float64(f.Duration), Valid: f.Duration > 0}
		}

		query := `
			INSERT INTO messages (
				id, sender_id, receiver_id, group_id, message_type, content,
				file_url, file_type, file_size, file_name, file_duration,
				is_broadcast, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			message.ID,
			message.SenderID,
			nullStringPtr(message.ReceiverID),
			nullStringPtr(message.GroupID),
			string(message.Kind),
			message.Content,
			fileURL, fileType, fileSize, fileName, fileDuration,
			message.IsBroadcast,
			message.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// CountMessages returns the number of persisted chat messages.
func (m *Manager) CountMessages(ctx context.Context) (int, error) {
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// IsGroupMember reads membership on every call; nothing is cached.
func (m *Manager) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?)`,
		groupID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query group membership: %w", err)
	}
	return exists, nil
}

// ListGroupMembers returns the member IDs of a group in join order.
func (m *Manager) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	return m.queryIDs(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY joined_at, user_id`,
		groupID,
	)
}

// ListTeacherAudience returns the users subscribed to a teacher's announcements.
func (m *Manager) ListTeacherAudience(ctx context.Context, teacherID string) ([]string, error) {
	return m.queryIDs(ctx,
		`SELECT user_id FROM teacher_audience WHERE teacher_id = ? ORDER BY user_id`,
		teacherID,
	)
}
