package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/sidekick/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	// Bump the parent's updated timestamp first; zero rows affected means the
	// conversation was deleted out from under us.
	result, err := tx.ExecContext(ctx, `UPDATE conversation SET updated_ts = $1 WHERE uid = $2`,
		create.CreatedTs, create.ConversationUID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to touch conversation")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get affected rows")
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	stmt := `INSERT INTO message (uid, conversation_uid, role, content, created_ts)
		VALUES (` + placeholders(5) + `)
		RETURNING id`
	if err := tx.QueryRowContext(ctx, stmt,
		create.UID, create.ConversationUID, create.Role, create.Content, create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit message")
	}
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.ConversationUID != nil {
		where, args = append(where, "conversation_uid = "+placeholder(len(args)+1)), append(args, *find.ConversationUID)
	}

	query := `SELECT id, uid, conversation_uid, role, content, created_ts
		FROM message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		if err := rows.Scan(&m.ID, &m.UID, &m.ConversationUID, &m.Role, &m.Content, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate messages")
	}
	return list, nil
}

func (d *DB) UpdateMessage(ctx context.Context, update *store.UpdateMessage) (*store.Message, error) {
	if update.Content == nil {
		return nil, errors.New("no fields to update")
	}
	stmt := `UPDATE message SET content = $1 WHERE uid = $2
		RETURNING id, uid, conversation_uid, role, content, created_ts`
	m := &store.Message{}
	if err := d.db.QueryRowContext(ctx, stmt, *update.Content, update.UID).Scan(
		&m.ID, &m.UID, &m.ConversationUID, &m.Role, &m.Content, &m.CreatedTs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to update message")
	}
	return m, nil
}

func (d *DB) TruncateMessagesAfter(ctx context.Context, conversationUID string, messageUID string) (int64, error) {
	var createdTs int64
	row := d.db.QueryRowContext(ctx, `SELECT created_ts FROM message WHERE uid = $1 AND conversation_uid = $2`,
		messageUID, conversationUID)
	if err := row.Scan(&createdTs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Target already gone; nothing to truncate.
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to find truncation target")
	}

	// Strictly later creation time only: the target itself and anything created
	// in the same millisecond stay.
	result, err := d.db.ExecContext(ctx, `DELETE FROM message WHERE conversation_uid = $1 AND created_ts > $2`,
		conversationUID, createdTs)
	if err != nil {
		return 0, errors.Wrap(err, "failed to truncate messages")
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get affected rows")
	}
	return deleted, nil
}
