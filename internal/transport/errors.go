package transport

import "errors"

// Common transport errors
var (
	// ErrUnreachable означает, что peer не ответил за bounded timeout
	// (или соединение отклонено) после всех повторов
	ErrUnreachable = errors.New("peer unreachable")

	// ErrSchemaVersion означает несовпадение версии wire-протокола;
	// сообщение отклоняется, а не парсится неверно
	ErrSchemaVersion = errors.New("unsupported schema version")

	// ErrUnauthorized означает, что peer отверг наш session token
	ErrUnauthorized = errors.New("peer rejected session token")
)
