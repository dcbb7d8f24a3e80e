package pairing

import "errors"

// Common pairing errors
var (
	// ErrExpired означает, что QR payload предъявлен после истечения срока
	// или pairing-сессия уже использована
	ErrExpired = errors.New("pairing session expired")

	// ErrForged означает, что подтверждение не прошло проверку MAC
	ErrForged = errors.New("pairing confirmation forged")

	// ErrTimeout означает, что подтверждение не пришло до истечения сессии
	ErrTimeout = errors.New("pairing confirmation timed out")

	// ErrPayload означает синтаксически неверный или несовместимый QR payload
	ErrPayload = errors.New("invalid pairing payload")
)
