package cli

import (
	"context"
	"fmt"
)

func (c *Cli) runPeers(ctx context.Context) error {
	peers, err := c.eng.ListPeers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list peers: %w", err)
	}

	if len(peers) == 0 {
		c.io.Println("No known devices. Run 'vaultsync pair' to add one.")
		return nil
	}

	c.io.Printf("Known devices: %d\n", len(peers))
	c.io.Println()
	for _, peer := range peers {
		c.io.Printf("%s  %s\n", peer.ID, peer.Name)
		c.io.Printf("    trust: %s, %s\n", trustLabel(peer), presenceLabel(peer))
		if peer.AddrHint != "" {
			c.io.Printf("    addr:  %s\n", peer.AddrHint)
		}
		c.io.Printf("    seen:  %s, paired: %s\n", fmtTime(peer.LastSeenAt), fmtTime(peer.PairedAt))
		c.io.Println()
	}
	return nil
}

func (c *Cli) runRename(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: vaultsync rename <peer-id> <name>")
	}

	if err := c.eng.RenamePeer(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("failed to rename peer: %w", err)
	}
	c.io.Printf("Renamed %s to %q\n", args[0], args[1])
	return nil
}

func (c *Cli) runUnpair(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: vaultsync unpair <peer-id>")
	}
	peerID := args[0]

	answer, err := c.io.ReadInput(fmt.Sprintf("Revoke trust for %s? This cannot be undone without re-pairing [y/N]: ", peerID))
	if err != nil {
		return err
	}
	if answer != "y" && answer != "Y" {
		c.io.Println("Aborted.")
		return nil
	}

	if err := c.eng.Unpair(ctx, peerID); err != nil {
		return fmt.Errorf("failed to unpair: %w", err)
	}
	c.io.Printf("Device %s unpaired. It can no longer sync with this device.\n", peerID)
	return nil
}
