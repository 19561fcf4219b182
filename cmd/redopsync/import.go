package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cyberheisen/redopsync/internal/db"
	"github.com/cyberheisen/redopsync/internal/importer"
)

var importCreateProject bool

var importCmd = &cobra.Command{
	Use:   "import <project> <file>...",
	Short: "Import scan output files into a project",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()

		projectName := args[0]
		project, found, err := database.GetProjectByName(projectName)
		if err != nil {
			return err
		}
		if !found {
			if !importCreateProject {
				return fmt.Errorf("project %q not found (use --create to create it)", projectName)
			}
			project, err = database.CreateProject(projectName, "")
			if err != nil {
				return err
			}
			log.Info().Str("project", projectName).Msg("project created")
		}

		files := make([]importer.UploadedFile, 0, len(args)-1)
		for _, path := range args[1:] {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			files = append(files, importer.UploadedFile{Name: filepath.Base(path), Data: data})
		}

		imp := importer.New(database, cfg.EvidenceDir, log)
		summary, err := imp.ImportBatch(project.ID, files)
		if err != nil {
			if errors.Is(err, importer.ErrProjectNotFound) {
				return fmt.Errorf("project %q not found", projectName)
			}
			return err
		}

		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importCreateProject, "create", false, "create the project if it does not exist")
}
