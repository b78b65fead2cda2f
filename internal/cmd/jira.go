package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/allbeads/allbeads/internal/extsync"
)

var jiraCmd = &cobra.Command{
	Use:   "jira",
	Short: "JIRA version/milestone operations",
}

var jiraVersionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Manage JIRA project versions (fix versions / milestones)",
}

var jiraVersionsListCmd = &cobra.Command{
	Use:   "list <context>",
	Short: "List versions for a context's JIRA project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, projectKey, err := jiraForContext(args[0])
		if err != nil {
			return err
		}
		versions, err := j.ListVersions(cmd.Context(), projectKey)
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Printf("%s\t%s\treleased=%t\n", v.Id, v.Name, v.Released)
		}
		return nil
	},
}

var jiraVersionsCreateCmd = &cobra.Command{
	Use:   "create <context> <name>",
	Short: "Create a JIRA project version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, projectKey, err := jiraForContext(args[0])
		if err != nil {
			return err
		}
		v, err := j.CreateVersion(cmd.Context(), projectKey, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("created version %s (%s)\n", v.Name, v.Id)
		return nil
	},
}

func init() {
	jiraVersionsCmd.AddCommand(jiraVersionsListCmd, jiraVersionsCreateCmd)
	jiraCmd.AddCommand(jiraVersionsCmd)
	rootCmd.AddCommand(jiraCmd)
}

// jiraForContext builds a Jira adapter for the named config context.
func jiraForContext(contextName string) (*extsync.Jira, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	for _, c := range cfg.Contexts {
		if c.Name != contextName || c.Jira == nil {
			continue
		}
		j := extsync.NewJira(extsync.JiraConfig{
			BaseURL:    c.Jira.BaseURL,
			ProjectKey: c.Jira.ProjectKey,
			Token:      resolveToken(c.Jira.TokenEnvVar),
		}, extsync.Config{AgentName: cfg.AgentName})
		return j, c.Jira.ProjectKey, nil
	}
	return nil, "", fmt.Errorf("no jira integration configured for context %q", contextName)
}
