package api

// SchemaVersion текущая версия wire-протокола vaultsync.
// Каждое сообщение несет это поле явно: старый peer отклоняет
// незнакомую версию вместо тихого неверного парсинга.
const SchemaVersion = 1

// PairingPayload представляет содержимое QR-кода, который показывает
// хост-устройство при начале pairing. Кодируется как base64url(JSON).
type PairingPayload struct {
	SchemaVersion int    `json:"schema_version"` // версия протокола
	DeviceID      string `json:"device_id"`      // UUID хост-устройства
	DeviceName    string `json:"device_name"`    // отображаемое имя хоста
	EphemeralKey  string `json:"ephemeral_key"`  // base64 X25519 ephemeral public key
	Nonce         string `json:"nonce"`          // base64 одноразовый nonce (32 bytes)
	ExpiresAt     int64  `json:"expires_at"`     // unix-время истечения сессии
	Address       string `json:"address"`        // host:port, куда слать подтверждение
}

// PairConfirmRequest представляет подтверждение pairing от клиента хосту.
// MAC считается ключом подтверждения, выведенным из общего X25519 секрета,
// поэтому подделать запрос без знания QR-кода нельзя.
type PairConfirmRequest struct {
	SchemaVersion int    `json:"schema_version"`
	DeviceID      string `json:"device_id"`     // UUID клиент-устройства
	DeviceName    string `json:"device_name"`   // отображаемое имя клиента
	EphemeralKey  string `json:"ephemeral_key"` // base64 X25519 ephemeral public key клиента
	StaticKey     string `json:"static_key"`    // base64 долговременный публичный ключ клиента
	Address       string `json:"address"`       // host:port клиента (address hint)
	Nonce         string `json:"nonce"`         // nonce из QR-кода, идентифицирует сессию
	MAC           string `json:"mac"`           // base64 HMAC-SHA256 подтверждения
}

// PairConfirmResponse представляет ответ хоста на успешное подтверждение.
// Хост доказывает владение тем же общим секретом своим MAC.
type PairConfirmResponse struct {
	SchemaVersion int    `json:"schema_version"`
	DeviceID      string `json:"device_id"`
	DeviceName    string `json:"device_name"`
	StaticKey     string `json:"static_key"` // base64 долговременный публичный ключ хоста
	MAC           string `json:"mac"`        // base64 HMAC-SHA256 подтверждения хоста
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
