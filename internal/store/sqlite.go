package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/Kotpilota/crypto-tracker-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite is a single-writer engine; one connection serializes writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// --- Coins ---

// UpsertCoin inserts or updates a coin's identity fields. Price columns are
// never touched here so a config reload cannot wipe the latest fetch.
func (r *SQLiteRepo) UpsertCoin(ctx context.Context, c domain.Coin) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO coins (coin_id, display_name, currency)
		VALUES (?, ?, ?)
		ON CONFLICT(coin_id) DO UPDATE SET
			display_name = excluded.display_name,
			currency     = excluded.currency`,
		c.ID, c.Name, c.Currency,
	)
	return err
}

// GetCoin returns a coin by id or ErrNotFound.
func (r *SQLiteRepo) GetCoin(ctx context.Context, coinID string) (*domain.Coin, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT coin_id, display_name, currency, current_price, price_updated_at
		FROM coins
		WHERE coin_id = ?`,
		coinID,
	)
	c, err := scanCoin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("coin %s: %w", coinID, ErrNotFound)
	}
	return c, err
}

// ListCoins returns all tracked coins ordered by id.
func (r *SQLiteRepo) ListCoins(ctx context.Context) ([]domain.Coin, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT coin_id, display_name, currency, current_price, price_updated_at
		FROM coins
		ORDER BY coin_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Coin
	for rows.Next() {
		c, err := scanCoin(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *c)
	}
	return res, rows.Err()
}

// SetCoinPrice records the latest successful fetch for a coin.
func (r *SQLiteRepo) SetCoinPrice(ctx context.Context, coinID string, price decimal.Decimal, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE coins
		SET current_price = ?, price_updated_at = ?
		WHERE coin_id = ?`,
		price.String(), at.UTC().Unix(), coinID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("coin %s: %w", coinID, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoin(row rowScanner) (*domain.Coin, error) {
	var (
		c       domain.Coin
		priceNS sql.NullString
		atNS    sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Currency, &priceNS, &atNS); err != nil {
		return nil, err
	}
	price, err := decFromNull(priceNS)
	if err != nil {
		return nil, err
	}
	c.CurrentPrice = price
	c.PriceUpdatedAt = timeFromNull(atNS)
	return &c, nil
}

// --- User settings ---

const settingColumns = `chat_id, coin_id, owned_amount, invested_amount,
	threshold_percent, last_notified_price, active, created_at`

// GetOrCreateSetting returns the setting row for (chatID, coinID), creating
// it with the given defaults on first interaction.
func (r *SQLiteRepo) GetOrCreateSetting(ctx context.Context, chatID int64, coinID string, defaults SettingDefaults) (*domain.UserSetting, error) {
	s, err := r.getSetting(ctx, chatID, coinID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_settings (chat_id, coin_id, owned_amount, invested_amount,
			threshold_percent, last_notified_price, active, created_at)
		VALUES (?, ?, '0', '0', ?, NULL, 1, ?)`,
		chatID, coinID, defaults.ThresholdPercent.String(), now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	return &domain.UserSetting{
		ChatID:           chatID,
		CoinID:           coinID,
		OwnedAmount:      decimal.Zero,
		InvestedAmount:   decimal.Zero,
		ThresholdPercent: defaults.ThresholdPercent,
		Active:           true,
		CreatedAt:        now,
	}, nil
}

// UpdateSetting applies a validated patch and returns the updated row.
// Invalid patches are rejected with *ValidationError; nothing is written.
func (r *SQLiteRepo) UpdateSetting(ctx context.Context, chatID int64, coinID string, patch SettingPatch) (*domain.UserSetting, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	s, err := r.getSetting(ctx, chatID, coinID)
	if err != nil {
		return nil, err
	}
	if patch.OwnedAmount != nil {
		s.OwnedAmount = *patch.OwnedAmount
	}
	if patch.InvestedAmount != nil {
		s.InvestedAmount = *patch.InvestedAmount
	}
	if patch.ThresholdPercent != nil {
		s.ThresholdPercent = *patch.ThresholdPercent
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE user_settings
		SET owned_amount = ?, invested_amount = ?, threshold_percent = ?
		WHERE chat_id = ? AND coin_id = ?`,
		s.OwnedAmount.String(), s.InvestedAmount.String(), s.ThresholdPercent.String(),
		chatID, coinID,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SetLastNotified advances the notification baseline; a single atomic
// field write, only called from the evaluation pass.
func (r *SQLiteRepo) SetLastNotified(ctx context.Context, chatID int64, coinID string, price decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_settings
		SET last_notified_price = ?
		WHERE chat_id = ? AND coin_id = ?`,
		price.String(), chatID, coinID,
	)
	return err
}

// SetActive toggles delivery for a user/coin pair. Blocked users are
// deactivated here rather than deleted, so settings survive re-engagement.
func (r *SQLiteRepo) SetActive(ctx context.Context, chatID int64, coinID string, active bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_settings
		SET active = ?
		WHERE chat_id = ? AND coin_id = ?`,
		boolToInt(active), chatID, coinID,
	)
	return err
}

// ListActiveByCoin returns every active setting tracking the given coin.
func (r *SQLiteRepo) ListActiveByCoin(ctx context.Context, coinID string) ([]domain.UserSetting, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+settingColumns+`
		FROM user_settings
		WHERE coin_id = ? AND active = 1
		ORDER BY chat_id`,
		coinID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.UserSetting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

// DeleteSetting removes a user/coin pair entirely (explicit user removal).
func (r *SQLiteRepo) DeleteSetting(ctx context.Context, chatID int64, coinID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM user_settings
		WHERE chat_id = ? AND coin_id = ?`,
		chatID, coinID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("setting %d/%s: %w", chatID, coinID, ErrNotFound)
	}
	return nil
}

// CountUsers returns the number of distinct chats with any settings row.
func (r *SQLiteRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT chat_id) FROM user_settings`,
	).Scan(&n)
	return n, err
}

func (r *SQLiteRepo) getSetting(ctx context.Context, chatID int64, coinID string) (*domain.UserSetting, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+settingColumns+`
		FROM user_settings
		WHERE chat_id = ? AND coin_id = ?`,
		chatID, coinID,
	)
	s, err := scanSetting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("setting %d/%s: %w", chatID, coinID, ErrNotFound)
	}
	return s, err
}

func scanSetting(row rowScanner) (*domain.UserSetting, error) {
	var (
		s         domain.UserSetting
		owned     string
		invested  string
		threshold string
		lastNS    sql.NullString
		activeInt int
		createdAt int64
	)
	if err := row.Scan(&s.ChatID, &s.CoinID, &owned, &invested, &threshold,
		&lastNS, &activeInt, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if s.OwnedAmount, err = decimal.NewFromString(owned); err != nil {
		return nil, fmt.Errorf("stored owned_amount %q: %w", owned, err)
	}
	if s.InvestedAmount, err = decimal.NewFromString(invested); err != nil {
		return nil, fmt.Errorf("stored invested_amount %q: %w", invested, err)
	}
	if s.ThresholdPercent, err = decimal.NewFromString(threshold); err != nil {
		return nil, fmt.Errorf("stored threshold_percent %q: %w", threshold, err)
	}
	if s.LastNotifiedPrice, err = decFromNull(lastNS); err != nil {
		return nil, err
	}
	s.Active = activeInt != 0
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &s, nil
}
