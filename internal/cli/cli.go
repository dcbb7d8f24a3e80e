// Package cli реализует команды управления движком синхронизации:
// pairing, список устройств, запуск сессий, selective sync и разрешение
// конфликтов. Команды работают напрямую с каталогом данных движка.
package cli

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/iudanet/vaultsync/internal/engine"
	"github.com/iudanet/vaultsync/internal/iocli"
	"github.com/iudanet/vaultsync/internal/models"
)

// Cli связывает команды с движком и терминалом.
type Cli struct {
	eng *engine.Engine
	io  iocli.IO
}

// New создает CLI поверх открытого движка.
func New(eng *engine.Engine, io iocli.IO) *Cli {
	return &Cli{eng: eng, io: io}
}

func PrintUsage() {
	fmt.Println("VaultSync — device pairing and synchronization for an encrypted vault")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  vaultsync [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version        Show version information")
	fmt.Println("  --data PATH      Data directory (default: ~/.vaultsync)")
	fmt.Println("  --listen ADDR    Listen address (default: :7440)")
	fmt.Println("  --name NAME      Device name, used on first run (default: hostname)")
	fmt.Println("  --policy MODE    Conflict policy: lww, prefer-local, prefer-remote, manual")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run                                        Run the sync daemon")
	fmt.Println("  identity                                   Show this device identity")
	fmt.Println("  pair                                       Show a pairing code and wait for a peer")
	fmt.Println("  join <code>                                Pair with a device by its pairing code")
	fmt.Println("  peers                                      List known devices")
	fmt.Println("  rename <peer-id> <name>                    Rename a device")
	fmt.Println("  unpair <peer-id>                           Revoke trust for a device")
	fmt.Println("  sync <peer-id>                             Run a sync session now")
	fmt.Println("  status [peer-id]                           Show sync status")
	fmt.Println("  vaults <peer-id>                           Show vaults shared with a device")
	fmt.Println("  vaults <peer-id> enable|disable <vault-id> Change selective sync")
	fmt.Println("  trigger <peer-id> manual|background        Set the sync trigger")
	fmt.Println("  trigger <peer-id> interval <period>        Sync on a timer (e.g. 5m)")
	fmt.Println("  conflicts                                  List conflicts awaiting resolution")
	fmt.Println("  resolve <peer-id> <vault-id> <record-id> local|remote")
	fmt.Println("  put <vault-id> <record-id> <data>          Record a local change")
	fmt.Println("  del <vault-id> <record-id>                 Record a local delete")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # On the first device: show a code, on the second: scan it")
	fmt.Println("  vaultsync pair")
	fmt.Println("  vaultsync join eyJzY2hlbWFfdmVyc2lvbiI6MX0")
	fmt.Println()
	fmt.Println("  vaultsync vaults 2f6c9e0a-... enable vault-main")
	fmt.Println("  vaultsync trigger 2f6c9e0a-... interval 5m")
	fmt.Println("  vaultsync sync 2f6c9e0a-...")
}

// fmtKey сокращает публичный ключ для вывода.
func fmtKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// fmtTime выводит время или прочерк для нулевого значения.
func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// trustLabel человекочитаемое состояние доверия.
func trustLabel(peer *models.PeerDevice) string {
	if peer.Trusted() {
		return "trusted"
	}
	return "revoked"
}

// presenceLabel человекочитаемая достижимость.
func presenceLabel(peer *models.PeerDevice) string {
	if peer.Online {
		return "online"
	}
	return "offline"
}
