package commands

import (
	"fmt"

	"github.com/secretlify/cryptly"
	"github.com/secretlify/cryptly/pkg/keys"
)

type KeygenCmd struct {
	Save    bool   `help:"Store the private key in the OS keyring" short:"s"`
	Account string `help:"Keyring account to store the key under" default:""`
}

func (c *KeygenCmd) Run(ctx *cliCtx) error {
	pub, priv, err := cryptly.GenerateKeypair()
	if err != nil {
		return err
	}

	fmt.Printf("Public Key:\n%s\nFingerprint:\n%s\n", pub, keys.FingerprintWords(pub))
	if c.Save {
		if c.Account == "" {
			return fmt.Errorf("--save requires --account")
		}
		if err := ctx.Keyring.Set(c.Account, priv); err != nil {
			return fmt.Errorf("storing private key: %w", err)
		}
		fmt.Printf("Private key stored in OS keyring for %q\n", c.Account)
		return nil
	}
	fmt.Printf("Private Key:\n%s\n", priv)
	return nil
}
