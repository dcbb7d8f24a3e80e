// Package keystore отвечает за хранение ключевого материала устройства:
// приватного ключа идентичности и долговременных pairing key по каждому peer.
// Есть две взаимозаменяемые реализации: системный keychain (предпочтительно)
// и файловое хранилище с правами 0600. Выбор делается один раз при старте
// capability-проверкой, а не условными ветками по call site.
package keystore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrKeyNotFound означает, что ключ с таким именем не сохранен.
var ErrKeyNotFound = errors.New("key not found")

// Store определяет интерфейс хранилища ключевого материала.
type Store interface {
	// Set сохраняет секрет под именем, перезаписывая существующий.
	Set(name string, secret []byte) error

	// Get возвращает секрет по имени.
	// Возвращает ErrKeyNotFound, если секрета нет.
	Get(name string) ([]byte, error)

	// Delete удаляет секрет. Отсутствие секрета не считается ошибкой.
	Delete(name string) error
}

const keyringService = "vaultsync"

// probe-ключ для capability-проверки системного keychain
const probeName = "capability-probe"

// Open выбирает доступную реализацию: пробует системный keychain и при
// неудаче (headless-окружение, нет dbus) откатывается к файловому хранилищу
// в dir.
func Open(dir string, logger *slog.Logger) (Store, error) {
	if err := keyring.Set(keyringService, probeName, "ok"); err == nil {
		_ = keyring.Delete(keyringService, probeName)
		logger.Debug("keystore: using system keyring")
		return &keyringStore{}, nil
	}

	logger.Warn("keystore: system keyring unavailable, falling back to file store", "dir", dir)
	return newFileStore(dir)
}

// keyringStore хранит секреты в системном keychain через go-keyring.
type keyringStore struct{}

func (s *keyringStore) Set(name string, secret []byte) error {
	if err := keyring.Set(keyringService, name, base64.StdEncoding.EncodeToString(secret)); err != nil {
		return fmt.Errorf("keyring set failed: %w", err)
	}
	return nil
}

func (s *keyringStore) Get(name string) ([]byte, error) {
	encoded, err := keyring.Get(keyringService, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("keyring get failed: %w", err)
	}

	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored key: %w", err)
	}
	return secret, nil
}

func (s *keyringStore) Delete(name string) error {
	err := keyring.Delete(keyringService, name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete failed: %w", err)
	}
	return nil
}

// fileStore хранит секреты файлами 0600 в одном каталоге.
type fileStore struct {
	dir string
}

func newFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create keystore dir: %w", err)
	}
	return &fileStore{dir: dir}, nil
}

// path строит путь файла секрета. Имена ключей содержат только UUID и
// фиксированные префиксы, но на всякий случай экранируем разделители.
func (s *fileStore) path(name string) string {
	safe := strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(name)
	return filepath.Join(s.dir, safe+".key")
}

func (s *fileStore) Set(name string, secret []byte) error {
	encoded := base64.StdEncoding.EncodeToString(secret)
	if err := os.WriteFile(s.path(name), []byte(encoded), 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

func (s *fileStore) Get(name string) ([]byte, error) {
	encoded, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	secret, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored key: %w", err)
	}
	return secret, nil
}

func (s *fileStore) Delete(name string) error {
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove key file: %w", err)
	}
	return nil
}

// Имена ключей в Store.

// IdentityKeyName имя приватного ключа идентичности устройства.
const IdentityKeyName = "identity"

// PairingKeyName строит имя долговременного pairing key для peer.
func PairingKeyName(peerID string) string {
	return "pairing-" + peerID
}
