package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/vaultsync/internal/changelog"
	"github.com/iudanet/vaultsync/internal/models"
)

func setupLog(t *testing.T, deviceID string) *Storage {
	t.Helper()
	s, err := New(context.Background(), ":memory:", deviceID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendLocal_VersionStamping(t *testing.T) {
	s := setupLog(t, "dev-a")
	ctx := context.Background()

	r1, err := s.AppendLocal(ctx, &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r1", Data: []byte("one"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), r1.Version)
	assert.Equal(t, "dev-a", r1.DeviceID)
	assert.Equal(t, int64(1), r1.Seq)
	assert.NotZero(t, r1.ClockHint)

	r2, err := s.AppendLocal(ctx, &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r1", Data: []byte("two"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), r2.Version)
	assert.Equal(t, int64(2), r2.Seq)

	// Версии независимы per record.
	other, err := s.AppendLocal(ctx, &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r2", Data: []byte("x"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.Version)
}

func TestAppendLocal_DominatesObservedRemote(t *testing.T) {
	s := setupLog(t, "dev-a")
	ctx := context.Background()

	// Наблюдали версию 5 от peer.
	_, err := s.AppendRemote(ctx, &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r1", DeviceID: "dev-b", Version: 5, Data: []byte("remote"),
	})
	require.NoError(t, err)

	// Локальная правка должна доминировать наблюдавшуюся версию.
	local, err := s.AppendLocal(ctx, &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r1", Data: []byte("local"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), local.Version)
}

func TestAppendLocal_TombstoneTerminal(t *testing.T) {
	s := setupLog(t, "dev-a")
	ctx := context.Background()

	_, err := s.AppendLocal(ctx, &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r1", Data: []byte("one"),
	})
	require.NoError(t, err)

	_, err = s.AppendLocal(ctx, &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r1", Tombstone: true,
	})
	require.NoError(t, err)

	// Обычная правка поверх tombstone запрещена.
	_, err = s.AppendLocal(ctx, &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r1", Data: []byte("resurrect"),
	})
	assert.ErrorIs(t, err, changelog.ErrTombstoned)

	// Resolver может воскресить запись новой доминирующей версией.
	res, err := s.AppendResolution(ctx, &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r1", Data: []byte("resolved"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Version)
	assert.False(t, res.Tombstone)
}

func TestAppendLocal_StampingSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "changes.db")

	s, err := New(ctx, path, "dev-a")
	require.NoError(t, err)
	for _, data := range []string{"one", "two"} {
		_, err := s.AppendLocal(ctx, &models.VaultChangeRecord{
			VaultID: "v1", RecordID: "r1", Data: []byte(data),
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	// После рестарта часы пустые: голова журнала продолжает нумерацию.
	reopened, err := New(ctx, path, "dev-a")
	require.NoError(t, err)
	r3, err := reopened.AppendLocal(ctx, &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r1", Data: []byte("three"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), r3.Version)
	require.NoError(t, reopened.Close())

	// То же для resolution: холодные часы читают голову из журнала.
	again, err := New(ctx, path, "dev-a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = again.Close() })
	res, err := again.AppendResolution(ctx, &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r1", Data: []byte("resolved"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Version)
}

func TestAppendRemote_Idempotent(t *testing.T) {
	s := setupLog(t, "dev-a")
	ctx := context.Background()

	remote := &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r1", DeviceID: "dev-b", Version: 3, Data: []byte("x"),
	}

	first, err := s.AppendRemote(ctx, remote)
	require.NoError(t, err)

	// Повторная доставка той же версии не плодит строк.
	second, err := s.AppendRemote(ctx, remote)
	require.NoError(t, err)
	assert.Equal(t, first.Seq, second.Seq)

	changes, err := s.ChangesSince(ctx, "v1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestChangesSince_OrderAndPaging(t *testing.T) {
	s := setupLog(t, "dev-a")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.AppendLocal(ctx, &models.VaultChangeRecord{
			VaultID: "v1", RecordID: "r1", Data: []byte{byte(i)},
		})
		require.NoError(t, err)
	}
	// Чужой vault не попадает в дельту.
	_, err := s.AppendLocal(ctx, &models.VaultChangeRecord{
		VaultID: "v2", RecordID: "r1", Data: []byte("other"),
	})
	require.NoError(t, err)

	changes, err := s.ChangesSince(ctx, "v1", 2, 0)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	for i := 1; i < len(changes); i++ {
		assert.Greater(t, changes[i].Seq, changes[i-1].Seq, "ascending seq order")
	}

	page, err := s.ChangesSince(ctx, "v1", 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	head, err := s.HeadSeq(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), head)

	empty, err := s.HeadSeq(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty)
}

func TestHead_PicksDominatingVersion(t *testing.T) {
	s := setupLog(t, "dev-a")
	ctx := context.Background()

	_, err := s.Head(ctx, "v1", "r1")
	assert.ErrorIs(t, err, changelog.ErrRecordNotFound)

	_, err = s.AppendRemote(ctx, &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r1", DeviceID: "dev-b", Version: 2, Data: []byte("b"),
	})
	require.NoError(t, err)
	_, err = s.AppendRemote(ctx, &models.VaultChangeRecord{
		VaultID: "v1", RecordID: "r1", DeviceID: "dev-c", Version: 2, Data: []byte("c"),
	})
	require.NoError(t, err)

	head, err := s.Head(ctx, "v1", "r1")
	require.NoError(t, err)
	// Равные версии — tie-break по device id.
	assert.Equal(t, "dev-c", head.DeviceID)
}

func TestVaults(t *testing.T) {
	s := setupLog(t, "dev-a")
	ctx := context.Background()

	vaults, err := s.Vaults(ctx)
	require.NoError(t, err)
	assert.Empty(t, vaults)

	for _, v := range []string{"v2", "v1", "v2"} {
		_, err := s.AppendLocal(ctx, &models.VaultChangeRecord{
			VaultID: v, RecordID: "r", Data: []byte("x"),
		})
		require.NoError(t, err)
	}

	vaults, err = s.Vaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, vaults)
}
