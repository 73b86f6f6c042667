package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/hrygo/sidekick/store"
)

func (d *DB) UpsertUserSetting(ctx context.Context, setting *store.UserSetting) error {
	stmt := `INSERT INTO user_setting (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := d.db.ExecContext(ctx, stmt, setting.Key, setting.Value); err != nil {
		return errors.Wrap(err, "failed to upsert user setting")
	}
	return nil
}

func (d *DB) GetUserSetting(ctx context.Context, key string) (*store.UserSetting, error) {
	setting := &store.UserSetting{}
	row := d.db.QueryRowContext(ctx, `SELECT key, value FROM user_setting WHERE key = $1`, key)
	if err := row.Scan(&setting.Key, &setting.Value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get user setting")
	}
	return setting, nil
}

func (d *DB) ListUserSettings(ctx context.Context) ([]*store.UserSetting, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT key, value FROM user_setting ORDER BY key`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list user settings")
	}
	defer rows.Close()

	list := make([]*store.UserSetting, 0)
	for rows.Next() {
		setting := &store.UserSetting{}
		if err := rows.Scan(&setting.Key, &setting.Value); err != nil {
			return nil, errors.Wrap(err, "failed to scan user setting")
		}
		list = append(list, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate user settings")
	}
	return list, nil
}
