package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mailmerge/mailmerge/internal/config"
	"github.com/mailmerge/mailmerge/internal/database"
	"github.com/mailmerge/mailmerge/internal/email"
	"github.com/mailmerge/mailmerge/internal/logger"
	"github.com/mailmerge/mailmerge/internal/repository"
	"github.com/mailmerge/mailmerge/internal/service"
	"github.com/mailmerge/mailmerge/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Maintenance tool for the mail merge bot",
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove stale working directories from the data directory",
	RunE:  runPurge,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect sessions in the Redis session store",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	RunE:  runSessionsList,
}

var sessionsDropCmd = &cobra.Command{
	Use:   "drop [user_id]",
	Short: "Drop a user's session and working directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDrop,
}

var checkMailCmd = &cobra.Command{
	Use:   "check-mail",
	Short: "Connect and authenticate to the mail transport",
	RunE:  runCheckMail,
}

var olderThan time.Duration

func init() {
	purgeCmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "remove directories not modified for this long")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDropCmd)

	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(checkMailCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env holds what every subcommand needs
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	sessions *service.SessionService
	rdb      *database.Redis
}

func (e *env) Close() {
	if e.rdb != nil {
		_ = e.rdb.Close()
	}
}

// getEnv loads config and opens the session store; needStore requires the Redis store
func getEnv(needStore bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Tool output goes to the terminal, not the bot's log file
	logCfg := cfg.Log
	logCfg.File = ""
	log := logger.New(logCfg)

	e := &env{cfg: cfg, log: log}

	var store repository.SessionStore = repository.NewMemorySessionStore()
	if cfg.Session.Store == "redis" {
		e.rdb, err = database.NewRedis(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		store = repository.NewRedisSessionStore(e.rdb, cfg.Session.TTL)
	} else if needStore {
		return nil, errors.New("sessions live in the bot's memory; set session.store=redis to manage them")
	}

	workspace := storage.NewWorkspace(afero.NewOsFs(), cfg.Storage.DataDir)
	e.sessions = service.NewSessionService(store, workspace, log)
	return e, nil
}

func runPurge(cmd *cobra.Command, args []string) error {
	e, err := getEnv(false)
	if err != nil {
		return err
	}
	defer e.Close()

	removed, err := e.sessions.PurgeDirs(time.Now().Add(-olderThan))
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d working directories\n", removed)
	return err
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	e, err := getEnv(true)
	if err != nil {
		return err
	}
	defer e.Close()

	sessions, err := e.sessions.List(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tSTAGE\tCONTACTS\tUPDATED\tDIRECTORY")
	for _, s := range sessions {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", s.UserID, s.Stage, s.RecipientCount, s.UpdatedAt.Format(time.RFC3339), s.WorkingDir)
	}
	return w.Flush()
}

func runSessionsDrop(cmd *cobra.Command, args []string) error {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", args[0])
	}

	e, err := getEnv(true)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.sessions.Cleanup(cmd.Context(), userID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Dropped session of user %d\n", userID)
	return nil
}

func runCheckMail(cmd *cobra.Command, args []string) error {
	e, err := getEnv(false)
	if err != nil {
		return err
	}
	defer e.Close()

	dialer, err := email.NewDialer(e.cfg.Mail)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	conn, err := dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("mail transport check failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		e.log.Warn().Err(err).Msg("failed to close mail connection")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Mail transport OK (%s, sender %s)\n", e.cfg.Mail.Provider, e.cfg.Mail.Address)
	return nil
}
