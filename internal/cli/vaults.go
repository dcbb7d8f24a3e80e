package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iudanet/vaultsync/internal/models"
)

func (c *Cli) runVaults(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: vaultsync vaults <peer-id> [enable|disable <vault-id>]")
	}
	peerID := args[0]

	if len(args) == 1 {
		return c.showPolicy(ctx, peerID)
	}
	if len(args) < 3 {
		return fmt.Errorf("usage: vaultsync vaults <peer-id> enable|disable <vault-id>")
	}

	var enabled bool
	switch args[1] {
	case "enable":
		enabled = true
	case "disable":
		enabled = false
	default:
		return fmt.Errorf("unknown action: %s. Use enable or disable", args[1])
	}

	if err := c.eng.SetVaultEnabled(ctx, peerID, args[2], enabled); err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	if enabled {
		c.io.Printf("Vault %s is now shared with %s\n", args[2], peerID)
	} else {
		c.io.Printf("Vault %s is no longer shared with %s\n", args[2], peerID)
	}
	return nil
}

func (c *Cli) showPolicy(ctx context.Context, peerID string) error {
	policy, err := c.eng.Policy(ctx, peerID)
	if err != nil {
		return fmt.Errorf("failed to get policy: %w", err)
	}

	c.io.Printf("Trigger: %s", policy.Mode)
	if policy.Mode == models.TriggerInterval {
		c.io.Printf(" (%s)", policy.Interval)
	}
	c.io.Println()

	if len(policy.EnabledVaults) == 0 {
		c.io.Println("No vaults shared. Nothing will sync with this device.")
		return nil
	}

	vaults := make([]string, 0, len(policy.EnabledVaults))
	for vaultID, on := range policy.EnabledVaults {
		if on {
			vaults = append(vaults, vaultID)
		}
	}
	sort.Strings(vaults)

	c.io.Println("Shared vaults:")
	for _, vaultID := range vaults {
		c.io.Printf("  %s\n", vaultID)
	}
	return nil
}

func (c *Cli) runTrigger(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: vaultsync trigger <peer-id> manual|background|interval [period]")
	}
	peerID := args[0]

	var (
		mode     models.TriggerMode
		interval time.Duration
	)
	switch args[1] {
	case "manual":
		mode = models.TriggerManual
	case "background":
		mode = models.TriggerBackground
	case "interval":
		if len(args) < 3 {
			return fmt.Errorf("interval trigger needs a period, e.g. 'trigger %s interval 5m'", peerID)
		}
		parsed, err := time.ParseDuration(args[2])
		if err != nil {
			return fmt.Errorf("bad period: %w", err)
		}
		if parsed <= 0 {
			return fmt.Errorf("period must be positive")
		}
		mode = models.TriggerInterval
		interval = parsed
	default:
		return fmt.Errorf("unknown trigger mode: %s", args[1])
	}

	if err := c.eng.SetTriggerMode(ctx, peerID, mode, interval); err != nil {
		return fmt.Errorf("failed to set trigger: %w", err)
	}
	if mode == models.TriggerInterval {
		c.io.Printf("Sync with %s every %s (while the daemon is running)\n", peerID, interval)
	} else {
		c.io.Printf("Trigger for %s set to %s\n", peerID, mode)
	}
	return nil
}
