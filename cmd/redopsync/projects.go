package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cyberheisen/redopsync/internal/db"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()

		projects, err := database.ListProjects()
		if err != nil {
			return err
		}
		for _, p := range projects {
			fmt.Printf("%d\t%s\t%s\n", p.ID, p.Name, p.Description)
		}
		return nil
	},
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create <name> [description]",
	Short: "Create a project",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()

		description := ""
		if len(args) > 1 {
			description = args[1]
		}
		project, err := database.CreateProject(args[0], description)
		if err != nil {
			return err
		}
		fmt.Printf("created project %d: %s\n", project.ID, project.Name)
		return nil
	},
}

func init() {
	projectsCmd.AddCommand(projectsListCmd, projectsCreateCmd)
}
