package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/sidekick/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	// A fresh conversation is placed before every existing one.
	stmt := `INSERT INTO conversation (uid, title, title_source, display_order, created_ts, updated_ts)
		VALUES (` + placeholders(3) + `, (SELECT COALESCE(MIN(display_order), 0) - 1 FROM conversation), ` + placeholder(4) + `, ` + placeholder(5) + `)
		RETURNING id, display_order`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID, create.Title, create.TitleSource, create.CreatedTs, create.UpdatedTs,
	).Scan(&create.ID, &create.DisplayOrder); err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}

	orderBy := "updated_ts DESC, id DESC"
	if find.Order == store.OrderByDisplay {
		orderBy = "display_order ASC, id ASC"
	}

	query := `SELECT id, uid, title, title_source, display_order, created_ts, updated_ts
		FROM conversation
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + orderBy
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := make([]*store.Conversation, 0)
	for rows.Next() {
		c := &store.Conversation{}
		if err := rows.Scan(&c.ID, &c.UID, &c.Title, &c.TitleSource, &c.DisplayOrder, &c.CreatedTs, &c.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate conversations")
	}
	return list, nil
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}
	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.TitleSource != nil {
		set, args = append(set, "title_source = "+placeholder(len(args)+1)), append(args, *update.TitleSource)
	}
	if update.DisplayOrder != nil {
		set, args = append(set, "display_order = "+placeholder(len(args)+1)), append(args, *update.DisplayOrder)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	where, args := []string{"uid = " + placeholder(len(args)+1)}, append(args, update.UID)
	if update.IfTitleSource != nil {
		where, args = append(where, "title_source = "+placeholder(len(args)+1)), append(args, *update.IfTitleSource)
	}

	stmt := `UPDATE conversation SET ` + strings.Join(set, ", ") + ` WHERE ` + strings.Join(where, " AND ") + `
		RETURNING id, uid, title, title_source, display_order, created_ts, updated_ts`
	c := &store.Conversation{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&c.ID, &c.UID, &c.Title, &c.TitleSource, &c.DisplayOrder, &c.CreatedTs, &c.UpdatedTs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to update conversation")
	}
	return c, nil
}

func (d *DB) ReorderConversations(ctx context.Context, uids []string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	for i, uid := range uids {
		// Unknown UIDs are skipped: a conversation deleted concurrently with a
		// reorder must not abort the whole ordering.
		if _, err := tx.ExecContext(ctx, `UPDATE conversation SET display_order = $1 WHERE uid = $2`, int64(i), uid); err != nil {
			return errors.Wrapf(err, "failed to reorder conversation %s", uid)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit reorder")
}

func (d *DB) DeleteConversation(ctx context.Context, uid string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM message WHERE conversation_uid = $1`, uid); err != nil {
		return errors.Wrap(err, "failed to delete conversation messages")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation WHERE uid = $1`, uid); err != nil {
		return errors.Wrap(err, "failed to delete conversation")
	}

	return errors.Wrap(tx.Commit(), "failed to commit delete")
}
