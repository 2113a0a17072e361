package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ineyio/creditsync"
	"github.com/ineyio/creditsync/preference"
	"github.com/ineyio/creditsync/preference/sqlite"
)

const prefsTimeout = 5 * time.Second

// openPreferences builds the preference store named by cfg. The returned closer is
// never nil.
func openPreferences(cfg creditsync.PreferenceConfig) (creditsync.PreferenceStore, io.Closer, error) {
	switch cfg.Backend {
	case "", creditsync.PreferencesMemory:
		return preference.NewMemoryStore(), nopCloser{}, nil
	case creditsync.PreferencesFile:
		s, err := preference.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case creditsync.PreferencesSQLite:
		var opts []sqlite.Option
		if cfg.Key != "" {
			opts = append(opts, sqlite.WithProfile(cfg.Key))
		}
		s, err := sqlite.Open(cfg.Path, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case creditsync.PreferencesRedis:
		return nil, nil, fmt.Errorf("the redis backend lives in module github.com/ineyio/creditsync/preference/redis; use redis.Dial from your application")
	default:
		return nil, nil, fmt.Errorf("%w: unknown preferences backend %q", creditsync.ErrInvalidConfig, cfg.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newPrefsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read or change the spend confirmation preference",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print whether spend confirmations are suppressed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closer, err := openPreferences(a.cfg.Preferences)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), prefsTimeout)
			defer cancel()

			suppress, err := store.SuppressConfirmations(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "suppress_spend_confirmations: %t\n", suppress)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set true|false",
		Short: "Suppress or restore spend confirmations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suppress, err := strconv.ParseBool(args[0])
			if err != nil {
				return fmt.Errorf("value must be true or false: %w", err)
			}

			store, closer, err := openPreferences(a.cfg.Preferences)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), prefsTimeout)
			defer cancel()

			if err := store.SetSuppressConfirmations(ctx, suppress); err != nil {
				return err
			}
			a.logger.Debug("preference saved", "backend", a.cfg.Preferences.Backend, "suppress", suppress)
			fmt.Fprintf(cmd.OutOrStdout(), "suppress_spend_confirmations: %t\n", suppress)
			return nil
		},
	})

	return cmd
}
