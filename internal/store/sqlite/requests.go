package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/neutron420/bloom/internal/domain"
)

const requestColumns = "id, user_id, user_name, meeting_id, status, created_at, resolved_at, resolved_by"

func scanRequest(row rowScanner) (domain.JoinRequest, error) {
	var r domain.JoinRequest
	var resolved sql.NullTime
	var by sql.NullString
	if err := row.Scan(&r.ID, &r.UserID, &r.UserName, &r.MeetingID, &r.Status, &r.CreatedAt, &resolved, &by); err != nil {
		return domain.JoinRequest{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.ResolvedAt = nullTimePtr(resolved)
	r.ResolvedBy = domain.UserID(by.String)
	return r, nil
}

func (s *Store) pendingRequest(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID) (domain.JoinRequest, error) {
	query := "SELECT " + requestColumns + " FROM join_requests WHERE user_id = ? AND meeting_id = ? AND status = 'pending'"
	return scanRequest(s.db.QueryRowContext(ctx, query, userID, meetingID))
}

func (s *Store) CreateJoinRequest(ctx context.Context, userID domain.UserID, userName string, meetingID domain.MeetingID, at time.Time) (domain.JoinRequest, bool, error) {
	if _, err := s.meeting(ctx, s.db, meetingID); err != nil {
		return domain.JoinRequest{}, false, err
	}
	r, err := s.pendingRequest(ctx, userID, meetingID)
	if err == nil {
		return r, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.JoinRequest{}, false, fmt.Errorf("failed to query pending request: %w", err)
	}

	id := uuid.NewString()
	query := "INSERT INTO join_requests (id, user_id, user_name, meeting_id, status, created_at) VALUES (?, ?, ?, ?, 'pending', ?)"
	if _, err := s.db.ExecContext(ctx, query, id, userID, userName, meetingID, at.UTC()); err != nil {
		if isUniqueViolation(err) {
			r, err := s.pendingRequest(ctx, userID, meetingID)
			if err != nil {
				return domain.JoinRequest{}, false, fmt.Errorf("failed to query pending request: %w", err)
			}
			return r, false, nil
		}
		return domain.JoinRequest{}, false, fmt.Errorf("failed to insert join request: %w", err)
	}
	r, err = s.JoinRequest(ctx, domain.JoinRequestID(id))
	return r, err == nil, err
}

func (s *Store) JoinRequest(ctx context.Context, id domain.JoinRequestID) (domain.JoinRequest, error) {
	r, err := scanRequest(s.db.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM join_requests WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.JoinRequest{}, domain.ErrRequestNotFound
	}
	if err != nil {
		return domain.JoinRequest{}, fmt.Errorf("failed to query join request: %w", err)
	}
	return r, nil
}

func (s *Store) PendingJoinRequests(ctx context.Context, meetingID domain.MeetingID) ([]domain.JoinRequest, error) {
	query := "SELECT " + requestColumns + " FROM join_requests WHERE meeting_id = ? AND status = 'pending' ORDER BY created_at"
	rows, err := s.db.QueryContext(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query join requests: %w", err)
	}
	defer rows.Close()

	out := make([]domain.JoinRequest, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan join request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating join requests: %w", err)
	}
	return out, nil
}

// ResolveJoinRequest moves a pending request to status with a conditional
// update. Approval upserts the participant in the same transaction.
func (s *Store) ResolveJoinRequest(ctx context.Context, id domain.JoinRequestID, status domain.JoinRequestStatus, by domain.UserID, at time.Time) (domain.JoinRequest, error) {
	if !status.Terminal() {
		return domain.JoinRequest{}, fmt.Errorf("resolve to %q: %w", status, domain.ErrValidation)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.JoinRequest{}, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := "UPDATE join_requests SET status = ?, resolved_at = ?, resolved_by = ? WHERE id = ? AND status = 'pending'"
	res, err := tx.ExecContext(ctx, query, status, at.UTC(), by, id)
	if err != nil {
		return domain.JoinRequest{}, fmt.Errorf("failed to resolve join request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.JoinRequest{}, fmt.Errorf("failed to resolve join request: %w", err)
	}
	r, err := scanRequest(tx.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM join_requests WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.JoinRequest{}, domain.ErrRequestNotFound
	}
	if err != nil {
		return domain.JoinRequest{}, fmt.Errorf("failed to query join request: %w", err)
	}
	if n == 0 {
		return r, domain.ErrRequestProcessed
	}
	if status == domain.JoinRequestApproved {
		if _, err := s.joinMeeting(ctx, tx, r.UserID, r.MeetingID, at); err != nil {
			return domain.JoinRequest{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.JoinRequest{}, fmt.Errorf("failed to commit: %w", err)
	}
	return r, nil
}
