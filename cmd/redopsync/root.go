package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cyberheisen/redopsync/internal/config"
)

var (
	cfgPath string
	cfg     config.Config
	log     zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "redopsync",
	Short: "Reconnaissance output import and inventory engine",
	Long: `redopsync imports reconnaissance tool output (Nmap XML, Masscan lists,
plain-text host lists, GoWitness screenshot archives, whois/RDAP JSON) into a
project-scoped asset inventory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}

		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q", cfg.LogLevel)
		}
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(level).
			With().Timestamp().Logger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd, importCmd, projectsCmd)
}
