package commands

import (
	"fmt"

	"github.com/joho/godotenv"

	"github.com/secretlify/cryptly"
	"github.com/secretlify/cryptly/pkg/crypto"
	"github.com/secretlify/cryptly/pkg/model"
)

type VersionsCmd struct {
	Author AuthorVersionCmd `cmd:"" help:"Encrypt a dotenv file into a new secrets version"`
	List   ListVersionsCmd  `cmd:"" help:"List a project's version history, newest first"`
}

type AuthorVersionCmd struct {
	Project string `arg:"" help:"Project identifier"`
	EnvFile string `arg:"" help:"Plaintext dotenv file to encrypt" type:"existingfile"`
	As      string `required:"" help:"Authoring member account"`
}

func (c *AuthorVersionCmd) Run(ctx *cliCtx) error {
	secrets, err := godotenv.Read(c.EnvFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", c.EnvFile, err)
	}

	key, err := ctx.operatorKeySource(model.UserID(c.As))(ctx, model.ProjectID(c.Project))
	if err != nil {
		return err
	}
	defer crypto.ZeroKey(key)

	blob, err := cryptly.EncryptSecrets(key, secrets)
	if err != nil {
		return err
	}
	id, err := ctx.Service.AppendVersion(ctx, model.ProjectID(c.Project), model.UserID(c.As), blob)
	if err != nil {
		return err
	}
	fmt.Printf("Authored version %s with %d secrets\n", id, len(secrets))
	return nil
}

type ListVersionsCmd struct {
	Project string `arg:"" help:"Project identifier"`
	Limit   int    `help:"Page size" default:"20"`
	Cursor  string `help:"Resume from a previous page's cursor" default:""`
}

func (c *ListVersionsCmd) Run(ctx *cliCtx) error {
	page, next, err := ctx.Service.ListVersions(ctx, model.ProjectID(c.Project), c.Limit, c.Cursor)
	if err != nil {
		return err
	}
	for _, v := range page {
		author := string(v.AuthorID)
		if author == "" {
			author = "(unattributed)"
		}
		fmt.Printf("%s  %s  %s\n", v.ID, v.CreatedAt.Format("2006-01-02 15:04:05"), author)
	}
	if next != "" {
		fmt.Printf("next cursor: %s\n", next)
	}
	return nil
}
