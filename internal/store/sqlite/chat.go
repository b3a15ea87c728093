package sqlite

import (
	"context"
	"fmt"

	"github.com/neutron420/bloom/internal/domain"
)

func (s *Store) AppendChatMessage(ctx context.Context, msg domain.ChatMessage) error {
	query := "INSERT INTO chat_messages (id, meeting_id, user_id, user_name, message, created_at) VALUES (?, ?, ?, ?, ?, ?)"
	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.MeetingID, msg.UserID, msg.UserName, msg.Message, msg.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

func (s *Store) RecentChatMessages(ctx context.Context, meetingID domain.MeetingID, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, meeting_id, user_id, user_name, message, created_at FROM chat_messages
		WHERE meeting_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, meetingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatMessage, 0)
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.MeetingID, &m.UserID, &m.UserName, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) LogAdminActivity(ctx context.Context, a domain.AdminActivity) error {
	query := "INSERT INTO admin_activity (id, admin_id, action, target, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)"
	if _, err := s.db.ExecContext(ctx, query, a.ID, a.AdminID, a.Action, a.Target, a.Detail, a.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert admin activity: %w", err)
	}
	return nil
}

func (s *Store) AdminActivities(ctx context.Context, limit int) ([]domain.AdminActivity, error) {
	if limit <= 0 {
		limit = -1
	}
	query := "SELECT id, admin_id, action, target, detail, created_at FROM admin_activity ORDER BY created_at DESC, id DESC LIMIT ?"
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin activity: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AdminActivity, 0)
	for rows.Next() {
		var a domain.AdminActivity
		if err := rows.Scan(&a.ID, &a.AdminID, &a.Action, &a.Target, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin activity: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
