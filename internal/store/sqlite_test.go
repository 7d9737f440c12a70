package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kotpilota/crypto-tracker-bot/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func openTestRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.UpsertCoin(context.Background(), domain.Coin{
		ID: "fpi-bank", Name: "FPI Bank", Currency: "rub",
	}))
	return repo
}

func TestCoinPriceLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	c, err := repo.GetCoin(ctx, "fpi-bank")
	require.NoError(t, err)
	assert.Nil(t, c.CurrentPrice, "price must be unset before first fetch")
	assert.Nil(t, c.PriceUpdatedAt)

	at := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetCoinPrice(ctx, "fpi-bank", dec("12.34"), at))

	c, err = repo.GetCoin(ctx, "fpi-bank")
	require.NoError(t, err)
	require.NotNil(t, c.CurrentPrice)
	assert.True(t, c.CurrentPrice.Equal(dec("12.34")))
	require.NotNil(t, c.PriceUpdatedAt)
	assert.Equal(t, at, *c.PriceUpdatedAt)

	// Re-upserting the coin identity must not wipe the price.
	require.NoError(t, repo.UpsertCoin(ctx, domain.Coin{ID: "fpi-bank", Name: "FPI Bank v2", Currency: "rub"}))
	c, err = repo.GetCoin(ctx, "fpi-bank")
	require.NoError(t, err)
	assert.Equal(t, "FPI Bank v2", c.Name)
	require.NotNil(t, c.CurrentPrice)
}

func TestSetCoinPrice_UnknownCoin(t *testing.T) {
	repo := openTestRepo(t)
	err := repo.SetCoinPrice(context.Background(), "nope", dec("1"), time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrCreateSetting(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	defaults := SettingDefaults{ThresholdPercent: dec("5")}

	s, err := repo.GetOrCreateSetting(ctx, 42, "fpi-bank", defaults)
	require.NoError(t, err)
	assert.True(t, s.Active)
	assert.True(t, s.OwnedAmount.IsZero())
	assert.True(t, s.ThresholdPercent.Equal(dec("5")))
	assert.Nil(t, s.LastNotifiedPrice)

	// Second call returns the existing row, defaults do not overwrite.
	owned := dec("100")
	_, err = repo.UpdateSetting(ctx, 42, "fpi-bank", SettingPatch{OwnedAmount: &owned})
	require.NoError(t, err)

	s, err = repo.GetOrCreateSetting(ctx, 42, "fpi-bank", SettingDefaults{ThresholdPercent: dec("99")})
	require.NoError(t, err)
	assert.True(t, s.OwnedAmount.Equal(dec("100")))
	assert.True(t, s.ThresholdPercent.Equal(dec("5")))
}

func TestUpdateSetting_RejectsNegativeAmount(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	defaults := SettingDefaults{ThresholdPercent: dec("5")}

	_, err := repo.GetOrCreateSetting(ctx, 42, "fpi-bank", defaults)
	require.NoError(t, err)
	owned := dec("100")
	_, err = repo.UpdateSetting(ctx, 42, "fpi-bank", SettingPatch{OwnedAmount: &owned})
	require.NoError(t, err)

	negative := dec("-1")
	_, err = repo.UpdateSetting(ctx, 42, "fpi-bank", SettingPatch{OwnedAmount: &negative})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "owned_amount", verr.Field)

	// Prior value retained.
	s, err := repo.GetOrCreateSetting(ctx, 42, "fpi-bank", defaults)
	require.NoError(t, err)
	assert.True(t, s.OwnedAmount.Equal(dec("100")))
}

func TestUpdateSetting_RejectsZeroThreshold(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	_, err := repo.GetOrCreateSetting(ctx, 42, "fpi-bank", SettingDefaults{ThresholdPercent: dec("5")})
	require.NoError(t, err)

	zero := decimal.Zero
	_, err = repo.UpdateSetting(ctx, 42, "fpi-bank", SettingPatch{ThresholdPercent: &zero})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "threshold_percent", verr.Field)
}

func TestSetLastNotifiedAndListActive(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	defaults := SettingDefaults{ThresholdPercent: dec("5")}

	for _, chatID := range []int64{1, 2, 3} {
		_, err := repo.GetOrCreateSetting(ctx, chatID, "fpi-bank", defaults)
		require.NoError(t, err)
	}
	require.NoError(t, repo.SetLastNotified(ctx, 1, "fpi-bank", dec("106")))
	require.NoError(t, repo.SetActive(ctx, 2, "fpi-bank", false))

	settings, err := repo.ListActiveByCoin(ctx, "fpi-bank")
	require.NoError(t, err)
	require.Len(t, settings, 2, "deactivated user must be excluded")
	assert.Equal(t, int64(1), settings[0].ChatID)
	require.NotNil(t, settings[0].LastNotifiedPrice)
	assert.True(t, settings[0].LastNotifiedPrice.Equal(dec("106")))
	assert.Equal(t, int64(3), settings[1].ChatID)
	assert.Nil(t, settings[1].LastNotifiedPrice)
}

func TestDeleteSettingAndCountUsers(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	defaults := SettingDefaults{ThresholdPercent: dec("5")}

	_, err := repo.GetOrCreateSetting(ctx, 1, "fpi-bank", defaults)
	require.NoError(t, err)
	_, err = repo.GetOrCreateSetting(ctx, 2, "fpi-bank", defaults)
	require.NoError(t, err)

	n, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, repo.DeleteSetting(ctx, 1, "fpi-bank"))
	assert.ErrorIs(t, repo.DeleteSetting(ctx, 1, "fpi-bank"), ErrNotFound)

	n, err = repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
