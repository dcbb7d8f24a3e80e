package syncer

import "errors"

// Common sync errors
var (
	// ErrSessionActive означает, что для peer уже идет сессия;
	// повторный триггер сворачивается в no-op
	ErrSessionActive = errors.New("sync session already active for peer")

	// ErrPeerNotTrusted означает попытку синхронизации с peer вне trust
	ErrPeerNotTrusted = errors.New("peer is not trusted")

	// ErrAuthenticity означает, что запись не прошла проверку MAC
	ErrAuthenticity = errors.New("record failed authenticity check")

	// ErrTransferIncomplete означает обрыв сессии до полного применения дельты.
	// Все записи, примененные до обрыва, остаются durable; watermark
	// продвинут ровно до них.
	ErrTransferIncomplete = errors.New("transfer incomplete")

	// ErrManualPending означает, что конфликт ждет ручного разрешения;
	// watermark vault не продвигается мимо него
	ErrManualPending = errors.New("conflict awaits manual resolution")

	// ErrStorageApply означает отказ локального хранилища при применении записи
	ErrStorageApply = errors.New("failed to apply change to local storage")

	// ErrNoPendingConflict означает, что разрешать нечего
	ErrNoPendingConflict = errors.New("no pending conflict for record")

	// ErrUnknownSession означает push/pull с session id, которого не было
	// в negotiate
	ErrUnknownSession = errors.New("unknown sync session")
)
