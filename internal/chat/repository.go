package chat

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// Repository is the Postgres-backed store for rooms, membership and
// messages. Every multi-step mutation runs inside one transaction.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const roomColumns = `id, room_name, is_private, COALESCE(groupchat_name, ''), COALESCE(admin_id::text, ''), created_at`

func scanRoom(row *sql.Row) (*Room, error) {
	r := &Room{}
	err := row.Scan(&r.ID, &r.RoomName, &r.IsPrivate, &r.GroupchatName, &r.AdminID, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// RoomByName returns the room, or nil when no such room exists.
func (r *Repository) RoomByName(ctx context.Context, roomName string) (*Room, error) {
	query := `SELECT ` + roomColumns + ` FROM chat_rooms WHERE room_name = $1`
	return scanRoom(r.db.QueryRowContext(ctx, query, roomName))
}

func (r *Repository) Members(ctx context.Context, roomID string) ([]Member, error) {
	query := `
		SELECT a.id, a.username, rm.joined_at
		FROM room_members rm
		JOIN accounts a ON a.id = rm.account_id
		WHERE rm.room_id = $1
		ORDER BY rm.joined_at
	`
	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Username, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *Repository) IsMember(ctx context.Context, roomID, accountID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND account_id = $2)`
	err := r.db.QueryRowContext(ctx, query, roomID, accountID).Scan(&exists)
	return exists, err
}

// AddMember joins accountID to the room. Joining twice is a no-op; the
// returned bool reports whether a row was actually inserted.
func (r *Repository) AddMember(ctx context.Context, roomID, accountID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO room_members (room_id, account_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roomID, accountID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FindPrivateRoom looks up the private room between the two accounts,
// or nil when they have never chatted.
func (r *Repository) FindPrivateRoom(ctx context.Context, accountA, accountB string) (*Room, error) {
	query := `SELECT ` + roomColumns + ` FROM chat_rooms WHERE direct_key = $1`
	return scanRoom(r.db.QueryRowContext(ctx, query, directKey(accountA, accountB)))
}

// CreatePrivateRoom creates the private room between the two accounts
// with both as members. The unique direct_key makes creation idempotent
// under concurrent resolution: the loser of a race reads the winner's
// room instead of inserting a duplicate.
func (r *Repository) CreatePrivateRoom(ctx context.Context, accountA, accountB string) (*Room, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	key := directKey(accountA, accountB)
	var roomID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO chat_rooms (id, room_name, is_private, direct_key)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (direct_key) DO NOTHING
		RETURNING id
	`, uuid.NewString(), newRoomName(), key).Scan(&roomID)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race; the existing room wins.
		return r.FindPrivateRoom(ctx, accountA, accountB)
	}
	if err != nil {
		return nil, err
	}

	for _, accountID := range []string{accountA, accountB} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO room_members (room_id, account_id) VALUES ($1, $2)`,
			roomID, accountID,
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.FindPrivateRoom(ctx, accountA, accountB)
}

// CreateGroupRoom creates a group room with adminID as admin and sole
// initial member.
func (r *Repository) CreateGroupRoom(ctx context.Context, adminID, groupchatName string) (*Room, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	room := &Room{
		ID:            uuid.NewString(),
		RoomName:      newRoomName(),
		GroupchatName: groupchatName,
		AdminID:       adminID,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO chat_rooms (id, room_name, is_private, groupchat_name, admin_id)
		VALUES ($1, $2, FALSE, $3, $4)
		RETURNING created_at
	`, room.ID, room.RoomName, room.GroupchatName, room.AdminID).Scan(&room.CreatedAt)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO room_members (room_id, account_id) VALUES ($1, $2)`,
		room.ID, adminID,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return room, nil
}

// UpdateGroupRoom applies the field edit and the member removals in a
// single transaction. The admin cannot be removed from their own room.
func (r *Repository) UpdateGroupRoom(ctx context.Context, roomID, groupchatName string, removeMemberIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var adminID sql.NullString
	err = tx.QueryRowContext(ctx,
		`UPDATE chat_rooms SET groupchat_name = $1 WHERE id = $2 RETURNING admin_id`,
		groupchatName, roomID,
	).Scan(&adminID)
	if err != nil {
		return err
	}

	for _, memberID := range removeMemberIDs {
		if memberID == adminID.String {
			continue
		}
		// No-op when the account is not a member.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM room_members WHERE room_id = $1 AND account_id = $2`,
			roomID, memberID,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteRoom removes the room; messages and memberships go with it via
// foreign-key cascade.
func (r *Repository) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_rooms WHERE id = $1`, roomID)
	return err
}

// RemoveMember takes accountID out of the room. For group rooms, if the
// leaver was admin the role passes to the longest-standing remaining
// member, and a room left with no members is deleted.
func (r *Repository) RemoveMember(ctx context.Context, roomID, accountID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = $1 AND account_id = $2`,
		roomID, accountID,
	); err != nil {
		return err
	}

	var isPrivate bool
	var adminID sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT is_private, admin_id FROM chat_rooms WHERE id = $1`, roomID,
	).Scan(&isPrivate, &adminID)
	if err != nil {
		return err
	}

	if !isPrivate {
		var remaining int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM room_members WHERE room_id = $1`, roomID,
		).Scan(&remaining); err != nil {
			return err
		}

		switch {
		case remaining == 0:
			if _, err := tx.ExecContext(ctx, `DELETE FROM chat_rooms WHERE id = $1`, roomID); err != nil {
				return err
			}
		case adminID.Valid && adminID.String == accountID:
			if _, err := tx.ExecContext(ctx, `
				UPDATE chat_rooms SET admin_id = (
					SELECT account_id FROM room_members
					WHERE room_id = $1 ORDER BY joined_at LIMIT 1
				) WHERE id = $1
			`, roomID); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// RecentMessages returns the newest messages first, at most limit.
func (r *Repository) RecentMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	query := `
		SELECT m.id, m.room_id, m.author_id, a.username, m.body, m.created_at
		FROM messages m
		JOIN accounts a ON a.id = m.author_id
		WHERE m.room_id = $1
		ORDER BY m.created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.AuthorID, &m.AuthorName, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *Repository) CreateMessage(ctx context.Context, roomID, authorID, body string) (*Message, error) {
	m := &Message{ID: uuid.NewString(), RoomID: roomID, AuthorID: authorID, Body: body}
	err := r.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO messages (id, room_id, author_id, body)
			VALUES ($1, $2, $3, $4)
			RETURNING author_id, created_at
		)
		SELECT a.username, i.created_at
		FROM inserted i JOIN accounts a ON a.id = i.author_id
	`, m.ID, roomID, authorID, body).Scan(&m.AuthorName, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RoomSummaries lists the account's rooms for the home page, most
// recently active first.
func (r *Repository) RoomSummaries(ctx context.Context, accountID string) ([]RoomSummary, error) {
	query := `
		SELECT r.id, r.room_name, r.is_private, COALESCE(r.groupchat_name, ''),
		       COALESCE(r.admin_id::text, ''), r.created_at,
		       CASE WHEN r.is_private THEN COALESCE(other.username, '')
		            ELSE COALESCE(r.groupchat_name, '') END,
		       COALESCE(last_msg.body, ''),
		       last_msg.created_at
		FROM chat_rooms r
		JOIN room_members rm ON rm.room_id = r.id AND rm.account_id = $1
		LEFT JOIN LATERAL (
			SELECT a.username FROM room_members m
			JOIN accounts a ON a.id = m.account_id
			WHERE m.room_id = r.id AND m.account_id <> $1
			LIMIT 1
		) other ON TRUE
		LEFT JOIN LATERAL (
			SELECT body, created_at FROM messages
			WHERE room_id = r.id ORDER BY created_at DESC LIMIT 1
		) last_msg ON TRUE
		ORDER BY COALESCE(last_msg.created_at, r.created_at) DESC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []RoomSummary
	for rows.Next() {
		var s RoomSummary
		var lastAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.RoomName, &s.IsPrivate, &s.GroupchatName,
			&s.AdminID, &s.CreatedAt, &s.DisplayName, &s.LastMessage, &lastAt); err != nil {
			return nil, err
		}
		if lastAt.Valid {
			t := lastAt.Time
			s.LastMessageAt = &t
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// directKey is the order-independent identity of a private pair.
func directKey(accountA, accountB string) string {
	if accountB < accountA {
		accountA, accountB = accountB, accountA
	}
	return accountA + ":" + accountB
}

// newRoomName allocates a fresh URL slug for a room.
func newRoomName() string {
	return "room-" + uuid.NewString()
}
