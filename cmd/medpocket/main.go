package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hugh/medpocket/internal/client"
	"github.com/hugh/medpocket/internal/client/store"
	"github.com/hugh/medpocket/pkg/util"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app is built once per invocation, after flags are parsed.
type app struct {
	logger      *slog.Logger
	api         *client.Client
	storage     store.Storage
	auth        *store.AuthStore
	cards       *store.CardStore
	specialties *store.SpecialtyStore
	close       func() error
}

func newApp(ctx context.Context, v *viper.Viper) (*app, error) {
	env := "production"
	if v.GetBool("verbose") {
		env = "development"
	}
	logger := util.NewLoggerTo(os.Stderr, env)

	api := client.New(v.GetString("api_url"), client.Options{
		Timeout:    v.GetDuration("timeout"),
		MaxRetries: 3,
		Logger:     logger,
	})

	a := &app{logger: logger, api: api, close: func() error { return nil }}

	statePath := v.GetString("state")
	if statePath == ":memory:" {
		a.storage = store.NewMemoryStorage()
	} else {
		if err := os.MkdirAll(filepath.Dir(statePath), 0o700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
		sqlite, err := store.OpenSQLite(ctx, statePath)
		if err != nil {
			return nil, err
		}
		a.storage = sqlite
		a.close = sqlite.Close
	}

	a.auth = store.NewAuthStore(api, a.storage)
	if err := a.auth.Load(ctx); err != nil {
		return nil, err
	}
	a.cards = store.NewCardStore(api, a.storage, logger)
	a.specialties = store.NewSpecialtyStore(a.storage)
	if err := a.specialties.Load(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// requireLogin loads the user's cards; every card command needs a session.
func (a *app) requireLogin(ctx context.Context) error {
	if !a.auth.IsAuthenticated() {
		return fmt.Errorf("%w: run `medpocket login` first", store.ErrNotLoggedIn)
	}
	status, err := a.cards.Load(ctx)
	if err != nil {
		return err
	}
	if status == store.SyncLocalOnly {
		a.logger.Warn("working offline, changes stay on this device")
	}
	return nil
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "medpocket.db"
	}
	return filepath.Join(home, ".medpocket", "state.db")
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var a *app

	root := &cobra.Command{
		Use:   "medpocket",
		Short: "Med in a Pocket - clinical reference cards from the terminal",
		Long: `medpocket manages your clinical reference cards against a medpocket server.

Cards, trash, favorites and recents are mirrored in a local state file so
reads keep working when the server is unreachable.

Environment:
  MEDPOCKET_API_URL  server base URL
  MEDPOCKET_STATE    local state file (":memory:" for none)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = newApp(cmd.Context(), v)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a != nil {
				return a.close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("api-url", "http://localhost:8080", "medpocket server URL")
	flags.String("state", defaultStatePath(), "local state file")
	flags.Duration("timeout", 15*time.Minute, "request timeout")
	flags.BoolP("verbose", "v", false, "debug logging")

	_ = v.BindPFlag("api_url", flags.Lookup("api-url"))
	_ = v.BindPFlag("state", flags.Lookup("state"))
	_ = v.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = v.BindPFlag("verbose", flags.Lookup("verbose"))

	appFn := func() *app { return a }
	root.AddCommand(
		newRegisterCmd(appFn),
		newLoginCmd(appFn),
		newLogoutCmd(appFn),
		newWhoamiCmd(appFn),
		newCardsCmd(appFn),
		newSpecialtiesCmd(appFn),
		newGenerateCmd(appFn),
		newDraftCmd(appFn),
	)
	return root
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MEDPOCKET")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(newViper()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
