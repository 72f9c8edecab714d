package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harrisonrobin/taskboard/pkg/api"
	"github.com/harrisonrobin/taskboard/pkg/auth"
	"github.com/harrisonrobin/taskboard/pkg/config"
	"github.com/harrisonrobin/taskboard/pkg/google"
)

var tokenTTL time.Duration

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize access to Google Calendar",
	Long: `Discard any cached Google token and run the OAuth flow again. The client
secrets file (credentials.json) must be in ~/.config/taskboard.`,
	RunE: runAuth,
}

var setCalendarCmd = &cobra.Command{
	Use:   "set-calendar NAME",
	Short: "Set the Google Calendar that holds the tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetCalendar,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token for a roster member",
	Long: `Issue a signed bearer token for the dashboard API. Each token carries a fresh
session id, so the first request made with it runs the auto-sync pass.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVarP(&actorID, "actor", "a", "", "Roster member the token is for (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "Token lifetime")
}

func runAuth(cmd *cobra.Command, args []string) error {
	dir, err := config.GetConfigDir()
	if err != nil {
		return err
	}
	if err := auth.ResetToken(dir); err != nil {
		return err
	}
	srv, err := auth.GetCalendarService(cmd.Context(), dir, logger)
	if err != nil {
		return err
	}
	if _, err := google.FindCalendar(cmd.Context(), srv, cfg.Calendar); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Authorized, but calendar %q was not found: %v\n", cfg.Calendar, err)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Authorized. Tasks will be kept in calendar %q\n", cfg.Calendar)
	return nil
}

func runSetCalendar(cmd *cobra.Command, args []string) error {
	if err := config.SaveCalendar(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Default calendar set to: %s\n", args[0])
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	actor, err := lookupActor(actorID)
	if err != nil {
		return err
	}
	if cfg.HTTP.JWTSecret == "" {
		return errors.New("http.jwt_secret is not configured")
	}
	tok, err := api.IssueToken([]byte(cfg.HTTP.JWTSecret), actor, uuid.NewString(), tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
