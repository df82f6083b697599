// Command fieldcache inspects and drives the device caches from a shell.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/biofugitive/fieldcache/internal/activity"
	"github.com/biofugitive/fieldcache/internal/platform/config"
	"github.com/biofugitive/fieldcache/internal/platform/logger"
	"github.com/biofugitive/fieldcache/internal/recent"
	"github.com/biofugitive/fieldcache/internal/session"
	"github.com/biofugitive/fieldcache/pkg/sdk"
)

// app carries what every subcommand needs. It is filled by the root
// command's PersistentPreRunE.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	backend *sdk.Backend

	// flag overrides
	dataDir   string
	storeAddr string
	redisAddr string
	namespace string
	noTLS     bool
	verbose   bool
}

func (a *app) session(cmd *cobra.Command) *session.Cache {
	s := session.New(a.backend.Store, session.Options{Duration: a.cfg.SessionDuration, Logger: a.logger})
	s.Initialize(cmd.Context())
	return s
}

func (a *app) activities(cmd *cobra.Command) *activity.Log {
	l := activity.New(a.backend.Store, activity.Options{Logger: a.logger})
	l.Initialize(cmd.Context())
	return l
}

func (a *app) recent(cmd *cobra.Command) *recent.Persons {
	p := recent.New(a.backend.Store, recent.Options{Logger: a.logger})
	p.Initialize(cmd.Context())
	return p
}

// close flushes the backend. It runs whether the command failed or not.
func (a *app) close() error {
	if a.logger != nil {
		defer a.logger.Sync()
	}
	if a.backend == nil {
		return nil
	}
	return a.backend.Close()
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:   "fieldcache",
		Short: "Inspect and drive the device session and activity caches",
		Long: `fieldcache reads and writes the same store the field device uses:
the persisted login session, the recent-activity log and the recently
viewed persons.

Configuration comes from FIELDCACHE_* environment variables; flags
override them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			applyFlag(cmd, "data-dir", &cfg.DataDir, a.dataDir)
			applyFlag(cmd, "store", &cfg.StoreAddr, a.storeAddr)
			applyFlag(cmd, "redis", &cfg.RedisAddr, a.redisAddr)
			applyFlag(cmd, "namespace", &cfg.Namespace, a.namespace)
			if cmd.Flags().Changed("no-tls") {
				cfg.DisableTLS = a.noTLS
			}
			if a.verbose {
				cfg.LogLevel = "debug"
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg

			// quiet unless asked, so output stays scriptable
			a.logger = zap.NewNop()
			if a.verbose {
				a.logger, err = logger.New(cfg.LogLevel, cfg.LogDev)
				if err != nil {
					return fmt.Errorf("failed to initialize logger: %w", err)
				}
			}

			a.backend, err = sdk.Open(cmd.Context(), cfg, a.logger)
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.dataDir, "data-dir", "", "embedded store directory (FIELDCACHE_DATA_DIR)")
	flags.StringVar(&a.storeAddr, "store", "", "address of a fieldcached daemon (FIELDCACHE_STORE_ADDR)")
	flags.StringVar(&a.redisAddr, "redis", "", "redis address (FIELDCACHE_REDIS_ADDR)")
	flags.StringVar(&a.namespace, "namespace", "", "device namespace (FIELDCACHE_NAMESPACE)")
	flags.BoolVar(&a.noTLS, "no-tls", false, "talk plain TCP to the daemon")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log to stderr at debug level")

	root.AddCommand(
		newSessionCmd(a),
		newActivityCmd(a),
		newRecentCmd(a),
		newKVCmd(a),
		newRemoteCmd(a),
	)
	return root, a
}

func applyFlag(cmd *cobra.Command, name string, dst *string, val string) {
	if cmd.Flags().Changed(name) {
		*dst = val
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// execute runs one invocation and releases the store afterwards.
func execute(args []string, stdout, stderr io.Writer) error {
	root, a := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	return errors.Join(err, a.close())
}

func main() {
	if err := execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}
