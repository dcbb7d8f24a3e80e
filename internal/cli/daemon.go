package cli

import (
	"context"
	"fmt"
)

// runDaemon запускает движок и блокируется до отмены ctx (сигнала).
func (c *Cli) runDaemon(ctx context.Context) error {
	identity := c.eng.Identity()
	c.io.Printf("Device:    %s (%s)\n", identity.Name, identity.ID)

	done := make(chan error, 1)
	go func() { done <- c.eng.Run(ctx) }()

	select {
	case <-c.eng.Ready():
		c.io.Printf("Listening: %s\n", c.eng.Addr())
	case err := <-done:
		return err
	}

	return <-done
}

// serveBackground поднимает движок для команды, которой нужен работающий
// сервер (pairing). Возвращенный cancel останавливает его.
func (c *Cli) serveBackground(ctx context.Context) (context.CancelFunc, error) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.eng.Run(runCtx) }()

	select {
	case <-c.eng.Ready():
		return cancel, nil
	case err := <-done:
		cancel()
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
}
