package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/vaultsync/internal/models"
)

func (c *Cli) runSync(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: vaultsync sync <peer-id>")
	}
	peerID := args[0]

	c.io.Printf("Syncing with %s...\n", peerID)
	sess, err := c.eng.TriggerSync(ctx, peerID)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	c.printSession(sess)
	if sess.Conflicts > 0 {
		pending := c.eng.PendingConflicts()
		if len(pending) > 0 {
			c.io.Printf("%d conflict(s) await manual resolution, see 'vaultsync conflicts'.\n", len(pending))
		}
	}
	return nil
}

func (c *Cli) runStatus(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return c.peerStatus(ctx, args[0])
	}

	identity := c.eng.Identity()
	c.io.Println("=== Sync Status ===")
	c.io.Printf("Device: %s (%s)\n", identity.Name, identity.ID)
	c.io.Println()

	peers, err := c.eng.ListPeers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list peers: %w", err)
	}
	if len(peers) == 0 {
		c.io.Println("No known devices.")
		return nil
	}

	for _, peer := range peers {
		c.io.Printf("%s  %s (%s, %s)\n", peer.ID, peer.Name, trustLabel(peer), presenceLabel(peer))
		if sess := c.eng.SessionStatus(peer.ID); sess != nil {
			c.io.Printf("    last sync: %s, %s, %d record(s)\n",
				fmtTime(sess.StartedAt), sess.State, sess.Transferred)
		} else {
			c.io.Println("    last sync: never")
		}
	}

	if pending := c.eng.PendingConflicts(); len(pending) > 0 {
		c.io.Println()
		c.io.Printf("%d conflict(s) await manual resolution, see 'vaultsync conflicts'.\n", len(pending))
	}
	return nil
}

// peerStatus подробный статус одного peer: сессия и watermark по vault.
func (c *Cli) peerStatus(ctx context.Context, peerID string) error {
	peers, err := c.eng.ListPeers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list peers: %w", err)
	}

	var peer *models.PeerDevice
	for _, p := range peers {
		if p.ID == peerID {
			peer = p
			break
		}
	}
	if peer == nil {
		return fmt.Errorf("unknown peer: %s", peerID)
	}

	c.io.Printf("Device: %s (%s)\n", peer.Name, peer.ID)
	c.io.Printf("Trust:  %s, %s\n", trustLabel(peer), presenceLabel(peer))
	if peer.AddrHint != "" {
		c.io.Printf("Addr:   %s\n", peer.AddrHint)
	}

	if sess := c.eng.SessionStatus(peer.ID); sess != nil {
		c.io.Println()
		c.printSession(sess)
	}

	marks, err := c.eng.Watermarks(ctx, peerID)
	if err != nil {
		return fmt.Errorf("failed to list watermarks: %w", err)
	}
	if len(marks) > 0 {
		c.io.Println()
		c.io.Println("Log positions:")
		for _, mark := range marks {
			c.io.Printf("  %s: %d\n", mark.VaultID, mark.Cursor)
		}
	}
	return nil
}

// printSession выводит отчет о сессии.
func (c *Cli) printSession(sess *models.SyncSession) {
	c.io.Printf("Session %s: %s\n", sess.ID, sess.State)
	if len(sess.Vaults) > 0 {
		c.io.Printf("  vaults:      %s\n", strings.Join(sess.Vaults, ", "))
	}
	c.io.Printf("  transferred: %d record(s)\n", sess.Transferred)
	if sess.Conflicts > 0 {
		c.io.Printf("  conflicts:   %d\n", sess.Conflicts)
	}
	if !sess.FinishedAt.IsZero() {
		c.io.Printf("  duration:    %s\n", sess.FinishedAt.Sub(sess.StartedAt).Round(time.Millisecond))
	}
	if sess.Err != "" {
		c.io.Printf("  error:       %s\n", sess.Err)
	}
}
