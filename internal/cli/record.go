package cli

import (
	"context"
	"fmt"
)

// put и del пишут в журнал изменений напрямую. Содержимое записи для движка
// непрозрачно: приложение-владелец хранилища передает уже зашифрованный blob.

func (c *Cli) runPut(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: vaultsync put <vault-id> <record-id> <data>")
	}

	rec, err := c.eng.RecordLocalChange(ctx, args[0], args[1], []byte(args[2]), false)
	if err != nil {
		return fmt.Errorf("failed to record change: %w", err)
	}
	c.io.Printf("Recorded %s/%s version %d\n", rec.VaultID, rec.RecordID, rec.Version)
	return nil
}

func (c *Cli) runDel(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: vaultsync del <vault-id> <record-id>")
	}

	rec, err := c.eng.RecordLocalChange(ctx, args[0], args[1], nil, true)
	if err != nil {
		return fmt.Errorf("failed to record delete: %w", err)
	}
	c.io.Printf("Recorded delete of %s/%s version %d\n", rec.VaultID, rec.RecordID, rec.Version)
	return nil
}
