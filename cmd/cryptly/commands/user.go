package commands

import (
	"fmt"

	"github.com/secretlify/cryptly/pkg/keys"
	"github.com/secretlify/cryptly/pkg/model"
)

type UserCmd struct {
	Register RegisterUserCmd `cmd:"" help:"Register an account with its public key"`
	Show     ShowUserCmd     `cmd:"" help:"Show an account and its key fingerprint"`
}

type RegisterUserCmd struct {
	ID        string `arg:"" help:"Account identifier"`
	Username  string `help:"Display name" default:""`
	PublicKey string `required:"" help:"Base64 sealed-box public key"`
}

func (c *RegisterUserCmd) Run(ctx *cliCtx) error {
	username := c.Username
	if username == "" {
		username = c.ID
	}
	err := ctx.Service.RegisterUser(ctx, model.User{
		ID:        model.UserID(c.ID),
		Username:  username,
		PublicKey: c.PublicKey,
	})
	if err != nil {
		return err
	}

	pinboard, err := keys.Load("")
	if err != nil {
		return err
	}
	changed, previous := pinboard.Pin(model.UserID(c.ID), username, c.PublicKey)
	if changed && previous.PublicKey != "" {
		fmt.Printf("WARNING: public key for %s changed\n  old: %s\n  new: %s\n",
			c.ID, keys.FingerprintWords(previous.PublicKey), keys.FingerprintWords(c.PublicKey))
	}
	if err := pinboard.Save(); err != nil {
		return err
	}
	fmt.Printf("Registered %s (%s)\n", c.ID, keys.FingerprintWords(c.PublicKey))
	return nil
}

type ShowUserCmd struct {
	ID string `arg:"" help:"Account identifier"`
}

func (c *ShowUserCmd) Run(ctx *cliCtx) error {
	user, err := ctx.Service.GetUser(ctx, model.UserID(c.ID))
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n  key: %s\n  fingerprint: %s\n",
		user.ID, user.Username, user.PublicKey, keys.FingerprintWords(user.PublicKey))
	return nil
}
