package commands

import (
	"fmt"

	"github.com/secretlify/cryptly"
	"github.com/secretlify/cryptly/pkg/crypto"
	"github.com/secretlify/cryptly/pkg/keys"
	"github.com/secretlify/cryptly/pkg/model"
)

type ProjectCmd struct {
	Create       CreateProjectCmd `cmd:"" help:"Create a project owned by an account"`
	MemberAdd    MemberAddCmd     `cmd:"" help:"Add a member and wrap the project key for them"`
	MemberRemove MemberRemoveCmd  `cmd:"" help:"Remove a member and their wrapped key copy"`
	Delete       DeleteProjectCmd `cmd:"" help:"Delete a project with its history and integrations"`
}

type CreateProjectCmd struct {
	Owner string `arg:"" help:"Owning account identifier"`
}

func (c *CreateProjectCmd) Run(ctx *cliCtx) error {
	owner, err := ctx.Service.GetUser(ctx, model.UserID(c.Owner))
	if err != nil {
		return err
	}

	key, err := cryptly.GenerateProjectKey()
	if err != nil {
		return err
	}
	defer crypto.ZeroKey(key)

	wrapped, err := cryptly.WrapKey(key, owner.PublicKey)
	if err != nil {
		return err
	}
	project, err := ctx.Service.CreateProject(ctx, owner.ID, wrapped)
	if err != nil {
		return err
	}
	fmt.Printf("Created project %s owned by %s\n", project.ID, owner.ID)
	return nil
}

type MemberAddCmd struct {
	Project string `arg:"" help:"Project identifier"`
	Member  string `arg:"" help:"Account to add"`
	As      string `required:"" help:"Acting owner account"`
}

func (c *MemberAddCmd) Run(ctx *cliCtx) error {
	member, err := ctx.Service.GetUser(ctx, model.UserID(c.Member))
	if err != nil {
		return err
	}

	pinboard, err := keys.Load("")
	if err != nil {
		return err
	}
	if pinned, ok := pinboard.Lookup(member.ID); ok && pinned.PublicKey != member.PublicKey {
		return fmt.Errorf("public key for %s does not match the pinned key (%s); re-pin with 'cryptly user register' first",
			member.ID, pinned.Fingerprint)
	}

	err = ctx.Service.UpdateMembership(ctx, model.ProjectID(c.Project), model.UserID(c.As),
		ctx.operatorKeySource(model.UserID(c.As)), []model.UserID{member.ID}, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s to %s (%s)\n", member.ID, c.Project, keys.FingerprintWords(member.PublicKey))
	return nil
}

type MemberRemoveCmd struct {
	Project string `arg:"" help:"Project identifier"`
	Member  string `arg:"" help:"Account to remove"`
	As      string `required:"" help:"Acting owner account"`
}

func (c *MemberRemoveCmd) Run(ctx *cliCtx) error {
	err := ctx.Service.UpdateMembership(ctx, model.ProjectID(c.Project), model.UserID(c.As),
		ctx.operatorKeySource(model.UserID(c.As)), nil, []model.UserID{model.UserID(c.Member)})
	if err != nil {
		return err
	}
	fmt.Printf("Removed %s from %s\n", c.Member, c.Project)
	return nil
}

type DeleteProjectCmd struct {
	Project string `arg:"" help:"Project identifier"`
	As      string `required:"" help:"Acting owner account"`
}

func (c *DeleteProjectCmd) Run(ctx *cliCtx) error {
	if err := ctx.Service.DeleteProject(ctx, model.ProjectID(c.Project), model.UserID(c.As)); err != nil {
		return err
	}
	fmt.Printf("Deleted project %s\n", c.Project)
	return nil
}
