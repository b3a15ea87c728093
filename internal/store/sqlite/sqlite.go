// Package sqlite implements store.Store on database/sql with mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/store"
)

const driverName = "sqlite3_bloom"

var registerOnce sync.Once

func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				_, err := conn.Exec("PRAGMA foreign_keys = ON", []driver.Value{})
				return err
			},
		})
	})
}

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	registerDriver()
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// sqlite has a single writer; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	for i, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func (s *Store) EnsureUser(ctx context.Context, id domain.UserID, name string) (domain.User, error) {
	query := `INSERT INTO users (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`
	if _, err := s.db.ExecContext(ctx, query, id, name, time.Now().UTC()); err != nil {
		return domain.User{}, fmt.Errorf("failed to upsert user %s: %w", id, err)
	}
	return s.User(ctx, id)
}

func (s *Store) User(ctx context.Context, id domain.UserID) (domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, "SELECT id, name, suspended FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.Name, &u.Suspended)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to query user %s: %w", id, err)
	}
	return u, nil
}

func (s *Store) SetUserSuspended(ctx context.Context, id domain.UserID, suspended bool) error {
	query := `INSERT INTO users (id, name, suspended, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET suspended = excluded.suspended`
	if _, err := s.db.ExecContext(ctx, query, id, string(id), suspended, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update user %s: %w", id, err)
	}
	return nil
}

const meetingColumns = "id, room_id, title, requires_approval, created_at, ended_at"

func scanMeeting(row rowScanner) (domain.Meeting, error) {
	var m domain.Meeting
	var ended sql.NullTime
	if err := row.Scan(&m.ID, &m.RoomID, &m.Title, &m.RequiresApproval, &m.CreatedAt, &ended); err != nil {
		return domain.Meeting{}, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.EndedAt = nullTimePtr(ended)
	return m, nil
}

func (s *Store) GetOrCreateMeeting(ctx context.Context, roomID domain.RoomID) (domain.Meeting, bool, error) {
	m, err := s.MeetingByRoom(ctx, roomID)
	if err == nil {
		return m, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Meeting{}, false, err
	}

	id := uuid.NewString()
	query := "INSERT INTO meetings (id, room_id, title, requires_approval, created_at) VALUES (?, ?, ?, 0, ?)"
	if _, err := s.db.ExecContext(ctx, query, id, roomID, string(roomID), time.Now().UTC()); err != nil {
		if isUniqueViolation(err) {
			m, err := s.MeetingByRoom(ctx, roomID)
			return m, false, err
		}
		return domain.Meeting{}, false, fmt.Errorf("failed to insert meeting for room %s: %w", roomID, err)
	}
	m, err = s.MeetingByRoom(ctx, roomID)
	return m, err == nil, err
}

func (s *Store) Meeting(ctx context.Context, id domain.MeetingID) (domain.Meeting, error) {
	return s.meeting(ctx, s.db, id)
}

func (s *Store) MeetingByRoom(ctx context.Context, roomID domain.RoomID) (domain.Meeting, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+meetingColumns+" FROM meetings WHERE room_id = ?", roomID)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Meeting{}, domain.ErrMeetingNotFound
	}
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("error querying meeting: %w", err)
	}
	return m, nil
}

func (s *Store) meeting(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id domain.MeetingID) (domain.Meeting, error) {
	m, err := scanMeeting(q.QueryRowContext(ctx, "SELECT "+meetingColumns+" FROM meetings WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Meeting{}, domain.ErrMeetingNotFound
	}
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("error querying meeting: %w", err)
	}
	return m, nil
}

func (s *Store) SetRequiresApproval(ctx context.Context, id domain.MeetingID, requires bool) (domain.Meeting, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE meetings SET requires_approval = ? WHERE id = ?", requires, id)
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("failed to update meeting %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Meeting{}, domain.ErrMeetingNotFound
	}
	return s.meeting(ctx, s.db, id)
}

func (s *Store) EndMeeting(ctx context.Context, id domain.MeetingID, at time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.meeting(ctx, tx, id); err != nil {
		return 0, err
	}
	at = at.UTC()
	res, err := tx.ExecContext(ctx, "UPDATE participants SET left_at = ? WHERE meeting_id = ? AND left_at IS NULL", at, id)
	if err != nil {
		return 0, fmt.Errorf("failed to close participants of %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if _, err := tx.ExecContext(ctx, "UPDATE meetings SET ended_at = ? WHERE id = ?", at, id); err != nil {
		return 0, fmt.Errorf("failed to end meeting %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return int(n), nil
}

const participantColumns = "user_id, meeting_id, is_host, joined_at, left_at"

func scanParticipant(row rowScanner) (domain.Participant, error) {
	var p domain.Participant
	var left sql.NullTime
	if err := row.Scan(&p.UserID, &p.MeetingID, &p.IsHost, &p.JoinedAt, &left); err != nil {
		return domain.Participant{}, err
	}
	p.JoinedAt = p.JoinedAt.UTC()
	p.LeftAt = nullTimePtr(left)
	return p, nil
}

func (s *Store) JoinMeeting(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, at time.Time) (domain.Participant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	p, err := s.joinMeeting(ctx, tx, userID, meetingID, at)
	if err != nil {
		return domain.Participant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Participant{}, fmt.Errorf("failed to commit: %w", err)
	}
	return p, nil
}

func (s *Store) joinMeeting(ctx context.Context, tx *sql.Tx, userID domain.UserID, meetingID domain.MeetingID, at time.Time) (domain.Participant, error) {
	if _, err := s.meeting(ctx, tx, meetingID); err != nil {
		return domain.Participant{}, err
	}

	res, err := tx.ExecContext(ctx, "UPDATE participants SET left_at = NULL WHERE user_id = ? AND meeting_id = ?", userID, meetingID)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("failed to rejoin participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var existing int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM participants WHERE meeting_id = ?", meetingID).Scan(&existing); err != nil {
			return domain.Participant{}, fmt.Errorf("failed to count participants: %w", err)
		}
		query := "INSERT INTO participants (user_id, meeting_id, is_host, joined_at) VALUES (?, ?, ?, ?)"
		if _, err := tx.ExecContext(ctx, query, userID, meetingID, existing == 0, at.UTC()); err != nil {
			return domain.Participant{}, fmt.Errorf("failed to insert participant: %w", err)
		}
	}

	row := tx.QueryRowContext(ctx, "SELECT "+participantColumns+" FROM participants WHERE user_id = ? AND meeting_id = ?", userID, meetingID)
	p, err := scanParticipant(row)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("failed to read participant: %w", err)
	}
	return p, nil
}

func (s *Store) Participant(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID) (domain.Participant, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+participantColumns+" FROM participants WHERE user_id = ? AND meeting_id = ?", userID, meetingID)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, fmt.Errorf("participant %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("failed to query participant: %w", err)
	}
	return p, nil
}

func (s *Store) LeaveMeeting(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, at time.Time) error {
	if _, err := s.Participant(ctx, userID, meetingID); err != nil {
		return err
	}
	query := "UPDATE participants SET left_at = ? WHERE user_id = ? AND meeting_id = ? AND left_at IS NULL"
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), userID, meetingID); err != nil {
		return fmt.Errorf("failed to leave meeting: %w", err)
	}
	return nil
}

func (s *Store) ActiveParticipants(ctx context.Context, meetingID domain.MeetingID) ([]domain.Participant, error) {
	query := "SELECT " + participantColumns + " FROM participants WHERE meeting_id = ? AND left_at IS NULL ORDER BY joined_at"
	rows, err := s.db.QueryContext(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}
	return out, nil
}
