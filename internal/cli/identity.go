package cli

import "context"

func (c *Cli) runIdentity(ctx context.Context) error {
	identity := c.eng.Identity()

	c.io.Println("=== Device Identity ===")
	c.io.Printf("ID:         %s\n", identity.ID)
	c.io.Printf("Name:       %s\n", identity.Name)
	c.io.Printf("Public key: %s\n", fmtKey(identity.PublicKey))
	c.io.Printf("Created:    %s\n", fmtTime(identity.CreatedAt))
	return nil
}
