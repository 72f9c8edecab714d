package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskboard/pkg/config"
	"github.com/harrisonrobin/taskboard/pkg/logging"
	"github.com/harrisonrobin/taskboard/pkg/model"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "Role-scoped task dashboard with offline queueing",
	Long: `taskboard shows each member of a department the tasks their role lets them see:
their own, the department's shared tasks, their team's, a member's, or the whole
department's.

Tasks live in the configured backends (sqlite, Google Calendar), tried in order.
When none is reachable new tasks are queued locally and pushed on the next sync.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.LogLevel, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.config/taskboard/config.yaml)")

	rootCmd.AddCommand(serveCmd, listCmd, addCmd, syncCmd, authCmd, setCalendarCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// lookupActor resolves a roster member into the session actor.
func lookupActor(id string) (model.Actor, error) {
	if id == "" {
		return model.Actor{}, errors.New("--actor is required")
	}
	m, ok := cfg.Roster.Member(id)
	if !ok {
		return model.Actor{}, fmt.Errorf("actor %q is not in the roster", id)
	}
	return m.Actor(), nil
}
