package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/vaultsync/internal/models"
)

func (c *Cli) runConflicts(ctx context.Context) error {
	pending := c.eng.PendingConflicts()
	if len(pending) == 0 {
		c.io.Println("No pending conflicts.")
		return nil
	}

	c.io.Printf("Pending conflicts: %d\n", len(pending))
	c.io.Println()
	for _, conflict := range pending {
		c.io.Printf("%s / %s (peer %s)\n",
			conflict.Local.VaultID, conflict.Local.RecordID, conflict.PeerID)
		c.io.Printf("  local:  %s\n", describeVersion(conflict.Local))
		c.io.Printf("  remote: %s\n", describeVersion(conflict.Remote))
		c.io.Printf("  resolve: vaultsync resolve %s %s %s local|remote\n",
			conflict.PeerID, conflict.Local.VaultID, conflict.Local.RecordID)
		c.io.Println()
	}
	return nil
}

func (c *Cli) runResolve(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: vaultsync resolve <peer-id> <vault-id> <record-id> local|remote")
	}

	var keepLocal bool
	switch args[3] {
	case "local":
		keepLocal = true
	case "remote":
		keepLocal = false
	default:
		return fmt.Errorf("choose 'local' or 'remote', got %q", args[3])
	}

	if err := c.eng.ResolveConflict(ctx, args[0], args[1], args[2], keepLocal); err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}
	c.io.Printf("Conflict on %s/%s resolved, %s version kept.\n", args[1], args[2], args[3])
	return nil
}

// describeVersion краткое описание версии записи для выбора в конфликте.
func describeVersion(rec *models.VaultChangeRecord) string {
	if rec.Tombstone {
		return fmt.Sprintf("deleted by %s (version %d)", rec.DeviceID, rec.Version)
	}
	return fmt.Sprintf("%d byte(s) from %s (version %d)", len(rec.Data), rec.DeviceID, rec.Version)
}
