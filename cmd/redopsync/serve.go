package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cyberheisen/redopsync/internal/db"
	"github.com/cyberheisen/redopsync/internal/importer"
	"github.com/cyberheisen/redopsync/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()

		imp := importer.New(database, cfg.EvidenceDir, log)
		server := web.NewServer(database, imp, log)

		log.Info().
			Str("addr", cfg.ListenAddr).
			Str("db", cfg.DBPath).
			Msg("listening")
		return http.ListenAndServe(cfg.ListenAddr, server.Handler())
	},
}
