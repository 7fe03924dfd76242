package commands

import (
	"fmt"

	"github.com/secretlify/cryptly/pkg/model"
	"github.com/secretlify/cryptly/server"
)

type IntegrationCmd struct {
	Link LinkCmd             `cmd:"" help:"Link a project to an external repository"`
	List ListIntegrationsCmd `cmd:"" help:"List a project's linked repositories"`
}

type LinkCmd struct {
	Project      string `arg:"" help:"Project identifier"`
	RepositoryID int64  `arg:"" help:"Numeric repository id at the provider"`
	Type         string `help:"Integration type" default:"github_actions"`
}

func (c *LinkCmd) Run(ctx *cliCtx) error {
	rec, err := ctx.Service.CreateIntegration(ctx, server.CreateIntegrationRequest{
		Type:         model.IntegrationType(c.Type),
		ProjectID:    model.ProjectID(c.Project),
		RepositoryID: c.RepositoryID,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Linked %s/%s (repository %d) to project %s\n",
		rec.RepositoryOwner, rec.RepositoryName, rec.RepositoryID, rec.ProjectID)
	return nil
}

type ListIntegrationsCmd struct {
	Project string `arg:"" help:"Project identifier"`
}

func (c *ListIntegrationsCmd) Run(ctx *cliCtx) error {
	linked, err := ctx.Service.FindIntegrationsByProject(ctx, model.ProjectID(c.Project))
	if err != nil {
		return err
	}
	if len(linked) == 0 {
		fmt.Println("no linked repositories")
		return nil
	}
	for _, rec := range linked {
		fmt.Printf("%s  %s  %s/%s (repository %d)\n",
			rec.ID, rec.Type, rec.RepositoryOwner, rec.RepositoryName, rec.RepositoryID)
	}
	return nil
}

type SyncCmd struct {
	Project string `arg:"" help:"Project identifier"`
	As      string `required:"" help:"Member account whose key unlocks the secrets"`
}

func (c *SyncCmd) Run(ctx *cliCtx) error {
	result, err := ctx.Service.UpsertSecrets(ctx, model.ProjectID(c.Project),
		ctx.operatorKeySource(model.UserID(c.As)))
	if err != nil {
		return err
	}
	if len(result.FailedSecrets) > 0 {
		return fmt.Errorf("sync finished with failures: %v", result.FailedSecrets)
	}
	fmt.Printf("Synced project %s\n", c.Project)
	return nil
}
