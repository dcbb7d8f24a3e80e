package syncer

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/iudanet/vaultsync/internal/crypto"
	"github.com/iudanet/vaultsync/internal/models"
)

// Каждая запись при передаче несет HMAC по каноническим байтам, посчитанный
// на record key пары устройств (см. crypto.DeriveRecordKey). Seq в MAC не
// входит: позиция в журнале локальна для отправителя, получатель назначает
// свою.

func recordParts(rec *models.VaultChangeRecord) [][]byte {
	var version, clock [8]byte
	binary.BigEndian.PutUint64(version[:], uint64(rec.Version))
	binary.BigEndian.PutUint64(clock[:], uint64(rec.ClockHint))

	tombstone := []byte{0}
	if rec.Tombstone {
		tombstone[0] = 1
	}

	return [][]byte{
		[]byte(rec.VaultID),
		[]byte(rec.RecordID),
		[]byte(rec.DeviceID),
		version[:],
		rec.Data,
		tombstone,
		clock[:],
	}
}

// SignRecord вычисляет MAC записи для передачи peer-у.
func SignRecord(recordKey []byte, rec *models.VaultChangeRecord) string {
	return base64.StdEncoding.EncodeToString(crypto.MAC(recordKey, recordParts(rec)...))
}

// VerifyRecord проверяет MAC полученной записи.
func VerifyRecord(recordKey []byte, rec *models.VaultChangeRecord, mac string) bool {
	expected, err := base64.StdEncoding.DecodeString(mac)
	if err != nil {
		return false
	}
	return crypto.VerifyMAC(recordKey, expected, recordParts(rec)...)
}
