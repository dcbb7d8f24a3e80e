package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/vaultsync/internal/models"
)

func rec(deviceID string, version, clock int64, data string) *models.VaultChangeRecord {
	return &models.VaultChangeRecord{
		VaultID:   "vault-1",
		RecordID:  "rec-1",
		DeviceID:  deviceID,
		Version:   version,
		Data:      []byte(data),
		ClockHint: clock,
	}
}

func TestResolver_LastWriteWins(t *testing.T) {
	r := NewResolver(models.PolicyLastWriteWins)

	local := rec("device-a", 5, 100, "local")
	remote := rec("device-b", 5, 200, "remote")

	winner, err := r.Resolve(local, remote)
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), winner.Data)

	// Решение симметрично: обе стороны приходят к одному содержимому.
	winner2, err := r.Resolve(remote, local)
	require.NoError(t, err)
	assert.Equal(t, winner.Data, winner2.Data)
}

func TestResolver_LastWriteWinsTiebreak(t *testing.T) {
	r := NewResolver(models.PolicyLastWriteWins)

	a := rec("device-a", 5, 100, "from a")
	b := rec("device-b", 5, 100, "from b")

	// Равные clock hints: выигрывает лексикографически больший device id,
	// одинаково на обеих сторонах.
	w1, err := r.Resolve(a, b)
	require.NoError(t, err)
	w2, err := r.Resolve(b, a)
	require.NoError(t, err)
	assert.Equal(t, "device-b", w1.DeviceID)
	assert.Equal(t, "device-b", w2.DeviceID)
}

func TestResolver_PreferLocal(t *testing.T) {
	r := NewResolver(models.PolicyPreferLocal)

	winner, err := r.Resolve(rec("device-a", 5, 100, "local"), rec("device-b", 5, 999, "remote"))
	require.NoError(t, err)
	assert.Equal(t, []byte("local"), winner.Data)
}

func TestResolver_PreferRemote(t *testing.T) {
	r := NewResolver(models.PolicyPreferRemote)

	winner, err := r.Resolve(rec("device-a", 5, 999, "local"), rec("device-b", 5, 100, "remote"))
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), winner.Data)
}

func TestResolver_ManualParks(t *testing.T) {
	r := NewResolver(models.PolicyManual)

	winner, err := r.Resolve(rec("device-a", 5, 100, "local"), rec("device-b", 5, 200, "remote"))
	assert.ErrorIs(t, err, ErrManualPending)
	assert.Nil(t, winner)
}

func TestResolver_WinnerIsCopy(t *testing.T) {
	r := NewResolver(models.PolicyLastWriteWins)

	remote := rec("device-b", 5, 200, "remote")
	winner, err := r.Resolve(rec("device-a", 5, 100, "local"), remote)
	require.NoError(t, err)

	winner.Data[0] = 'X'
	assert.Equal(t, []byte("remote"), remote.Data)
}

func TestSignRecord_TamperDetected(t *testing.T) {
	key := make([]byte, 32)
	key[0] = 7

	r := rec("device-a", 5, 100, "payload")
	mac := SignRecord(key, r)
	require.True(t, VerifyRecord(key, r, mac))

	tampered := r.Clone()
	tampered.Data = []byte("evil")
	assert.False(t, VerifyRecord(key, tampered, mac))

	flipped := r.Clone()
	flipped.Tombstone = true
	assert.False(t, VerifyRecord(key, flipped, mac))

	otherKey := make([]byte, 32)
	assert.False(t, VerifyRecord(otherKey, r, mac))

	assert.False(t, VerifyRecord(key, r, "%%%not-base64%%%"))
}
