package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertMessage stores or replaces a message keyed on its Discord id. The
// upsert is a single statement, so concurrent overlapping imports can
// interleave without corrupting a row. All fields are overwritten on conflict
// (last write wins). Returns whether a new row was created.
func UpsertMessage(ctx context.Context, dbx *sql.DB, m *Message) (created bool, err error) {
	row := dbx.QueryRowContext(ctx, `
		INSERT INTO messages (discord_id, session_id, posted_at, edited_at, driver,
			author_id, author_name, author_nickname, raw_content, message_text, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		ON CONFLICT (discord_id) DO UPDATE SET
			session_id=EXCLUDED.session_id,
			posted_at=EXCLUDED.posted_at,
			edited_at=EXCLUDED.edited_at,
			driver=EXCLUDED.driver,
			author_id=EXCLUDED.author_id,
			author_name=EXCLUDED.author_name,
			author_nickname=EXCLUDED.author_nickname,
			raw_content=EXCLUDED.raw_content,
			message_text=EXCLUDED.message_text,
			updated_at=NOW()
		RETURNING (xmax = 0)`,
		m.DiscordID, m.SessionID, m.PostedAt, m.EditedAt, m.Driver,
		m.AuthorID, m.AuthorName, m.AuthorNickname, m.RawContent, m.MessageText)
	if err := row.Scan(&created); err != nil {
		return false, fmt.Errorf("upsert message %s: %w", m.DiscordID, err)
	}
	return created, nil
}

// GetMessage fetches a message by Discord id. Returns ErrNotFound when absent.
func GetMessage(ctx context.Context, dbx *sql.DB, discordID string) (*Message, error) {
	row := dbx.QueryRowContext(ctx, `
		SELECT discord_id, session_id, posted_at, edited_at, driver,
			author_id, author_name, author_nickname, raw_content, message_text,
			COALESCE(is_highlight_candidate, FALSE)
		FROM messages WHERE discord_id=$1`, discordID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message %q: %w", discordID, ErrNotFound)
	}
	return m, err
}

// LatestMessageInWindow returns the most recent message for a session with
// posted_at inside [start, end]. Ties on posted_at break toward the highest
// Discord id so repeated queries are deterministic. Returns nil (no error)
// when the window holds no message.
func LatestMessageInWindow(ctx context.Context, dbx *sql.DB, sessionID string, start, end time.Time) (*Message, error) {
	row := dbx.QueryRowContext(ctx, `
		SELECT discord_id, session_id, posted_at, edited_at, driver,
			author_id, author_name, author_nickname, raw_content, message_text,
			COALESCE(is_highlight_candidate, FALSE)
		FROM messages
		WHERE session_id=$1 AND posted_at >= $2 AND posted_at <= $3
		ORDER BY posted_at DESC, discord_id DESC
		LIMIT 1`, sessionID, start, end)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// CountMessages returns the number of messages stored for a session.
func CountMessages(ctx context.Context, dbx *sql.DB, sessionID string) (int, error) {
	var n int
	err := dbx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM messages WHERE session_id=$1`, sessionID).Scan(&n)
	return n, err
}

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	var edited sql.NullTime
	var driver, authorID, authorName, authorNick sql.NullString
	err := row.Scan(&m.DiscordID, &m.SessionID, &m.PostedAt, &edited, &driver,
		&authorID, &authorName, &authorNick, &m.RawContent, &m.MessageText, &m.IsHighlight)
	if err != nil {
		return nil, err
	}
	m.PostedAt = m.PostedAt.UTC()
	if edited.Valid {
		t := edited.Time.UTC()
		m.EditedAt = &t
	}
	if driver.Valid {
		m.Driver = &driver.String
	}
	if authorID.Valid {
		m.AuthorID = &authorID.String
	}
	if authorName.Valid {
		m.AuthorName = &authorName.String
	}
	if authorNick.Valid {
		m.AuthorNickname = &authorNick.String
	}
	return &m, nil
}
