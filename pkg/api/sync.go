package api

// ChangeRecord представляет одну версионированную запись для передачи по сети.
// Поле Data — непрозрачный шифротекст: движок синхронизации никогда не видит
// расшифрованных полей. Seq — позиция записи в журнале устройства-отправителя,
// получатель использует её как watermark-курсор.
type ChangeRecord struct {
	VaultID   string `json:"vault_id"`
	RecordID  string `json:"record_id"`
	DeviceID  string `json:"device_id"`  // устройство, породившее эту версию
	Version   int64  `json:"version"`    // логическая версия записи
	Seq       int64  `json:"seq"`        // позиция в журнале отправителя
	Data      []byte `json:"data"`       // зашифрованное содержимое
	Tombstone bool   `json:"tombstone"`  // запись удалена (soft delete)
	ClockHint int64  `json:"clock_hint"` // wall-clock подсказка (unix milli), только для LWW
	MAC       string `json:"mac"`        // base64 HMAC-SHA256 по каноническим байтам записи
}

// VaultCursor представляет watermark одной стороны для одного vault:
// «я durably применил твои записи вплоть до Cursor».
type VaultCursor struct {
	VaultID string `json:"vault_id"`
	Cursor  int64  `json:"cursor"`
}

// NegotiateRequest представляет начало sync-сессии. Инициатор посылает
// свои watermark-курсоры по каждому vault, разрешенному selective sync.
type NegotiateRequest struct {
	SchemaVersion int           `json:"schema_version"`
	SessionID     string        `json:"session_id"` // UUID сессии, выбирает инициатор
	DeviceID      string        `json:"device_id"`
	Vaults        []VaultCursor `json:"vaults"`
}

// NegotiateResponse представляет ответ принимающей стороны: её собственные
// watermark-курсоры по vault, которые разрешены её политикой. Пересечение
// двух списков определяет vault, участвующие в сессии.
type NegotiateResponse struct {
	SchemaVersion int           `json:"schema_version"`
	SessionID     string        `json:"session_id"`
	DeviceID      string        `json:"device_id"`
	Vaults        []VaultCursor `json:"vaults"`
}

// ChangesResponse представляет страницу дельты: записи журнала с позициями
// строго больше курсора запроса, упорядоченные по возрастанию Seq.
type ChangesResponse struct {
	SchemaVersion int            `json:"schema_version"`
	Entries       []ChangeRecord `json:"entries"`
	Head          int64          `json:"head"` // текущая последняя позиция журнала по vault
}

// PushRequest представляет страницу дельты, которую инициатор отдает
// принимающей стороне (обратное направление той же сессии).
type PushRequest struct {
	SchemaVersion int            `json:"schema_version"`
	SessionID     string         `json:"session_id"`
	VaultID       string         `json:"vault_id"`
	Entries       []ChangeRecord `json:"entries"`
}

// PushResponse представляет результат применения страницы на принимающей
// стороне.
type PushResponse struct {
	SchemaVersion int   `json:"schema_version"`
	Applied       int   `json:"applied"`   // сколько записей durably применено
	Conflicts     int   `json:"conflicts"` // сколько из них прошло через resolver
	Cursor        int64 `json:"cursor"`    // новый watermark принимающей стороны
}

// PingResponse представляет ответ на probe от discovery.
type PingResponse struct {
	SchemaVersion int    `json:"schema_version"`
	DeviceID      string `json:"device_id"`
	DeviceName    string `json:"device_name"`
}
