package cli

import (
	"context"
	"fmt"
)

// Run исполняет команду. Ошибка означает ненулевой код выхода.
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "run":
		return c.runDaemon(ctx)
	case "identity":
		return c.runIdentity(ctx)
	case "pair":
		return c.runPair(ctx)
	case "join":
		return c.runJoin(ctx, args)
	case "peers":
		return c.runPeers(ctx)
	case "rename":
		return c.runRename(ctx, args)
	case "unpair":
		return c.runUnpair(ctx, args)
	case "sync":
		return c.runSync(ctx, args)
	case "status":
		return c.runStatus(ctx, args)
	case "vaults":
		return c.runVaults(ctx, args)
	case "trigger":
		return c.runTrigger(ctx, args)
	case "conflicts":
		return c.runConflicts(ctx)
	case "resolve":
		return c.runResolve(ctx, args)
	case "put":
		return c.runPut(ctx, args)
	case "del":
		return c.runDel(ctx, args)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}
