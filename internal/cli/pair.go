package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/vaultsync/internal/status"
)

func (c *Cli) runPair(ctx context.Context) error {
	// Подписка до Begin: событие исхода не должно потеряться.
	events, unsubscribe := c.eng.Events()
	defer unsubscribe()

	cancel, err := c.serveBackground(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	code, err := c.eng.BeginPairing(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin pairing: %w", err)
	}

	c.io.Println("=== Pairing ===")
	c.io.Println()
	c.io.Println("On the other device run:")
	c.io.Println()
	c.io.Printf("  vaultsync join %s\n", code)
	c.io.Println()
	c.io.Println("Waiting for confirmation (Ctrl+C to abort)...")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("engine stopped")
			}
			if ev.Kind != status.KindPairing {
				continue
			}
			if ev.Err != "" {
				return fmt.Errorf("pairing failed: %s", ev.Err)
			}
			c.io.Println()
			c.io.Printf("Paired with device %s\n", ev.PeerID)
			c.io.Println("Enable vaults for it with 'vaultsync vaults <peer-id> enable <vault-id>'.")
			return nil
		}
	}
}

func (c *Cli) runJoin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing pairing code. Usage: vaultsync join <code>")
	}

	cancel, err := c.serveBackground(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	peer, err := c.eng.ConsumePairing(ctx, args[0])
	if err != nil {
		return fmt.Errorf("pairing failed: %w", err)
	}

	c.io.Printf("Paired with %s (%s)\n", peer.Name, peer.ID)
	c.io.Println("Enable vaults for it with 'vaultsync vaults <peer-id> enable <vault-id>'.")
	return nil
}
