// Command ivre queries and maintains network recon collections.
//
// Logging:
//   - Base logger is created here from the --log-level flag
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/btroidl/ivre/internal/active"
	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/passive"
	"github.com/btroidl/ivre/internal/schema"
	"github.com/btroidl/ivre/internal/store"
	storefile "github.com/btroidl/ivre/internal/store/file"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ivre",
		Short:         "Network recon database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("db", "ivre-data", "database directory")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, or error")

	rootCmd.AddCommand(
		newSearchCmd(),
		newTopCmd(),
		newPassiveCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version)
			},
		},
	)
	return rootCmd
}

// env holds what every subcommand needs: the base logger and the database
// directory the collection snapshots live in.
type env struct {
	logger *slog.Logger
	dbDir  string
}

func envFromCmd(cmd *cobra.Command) (*env, error) {
	dbDir, _ := cmd.Flags().GetString("db")
	levelStr, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", levelStr)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	return &env{logger: logger, dbDir: dbDir}, nil
}

func (e *env) openStore(name string, reg *schema.Registry) (store.Store, error) {
	factory := storefile.NewFactory()
	return factory(map[string]string{
		storefile.ParamPath: filepath.Join(e.dbDir, name+".db"),
	}, reg, e.logger)
}

func (e *env) openActive() (*active.DB, error) {
	hosts, err := e.openStore("hosts", schema.Hosts())
	if err != nil {
		return nil, err
	}
	scans, err := e.openStore("scans", schema.NewRegistry())
	if err != nil {
		return nil, err
	}
	return active.NewDB(hosts, scans, e.logger), nil
}

func (e *env) openPassive() (*passive.DB, error) {
	st, err := e.openStore("passive", schema.Passives())
	if err != nil {
		return nil, err
	}
	return passive.NewDB(st, e.logger), nil
}

// printTop writes one "value: count" line per entry, the value in JSON so
// tuples and sub-documents stay readable.
func printTop(top []doc.TopValue) {
	for _, tv := range top {
		value, err := json.Marshal(tv.Value)
		if err != nil {
			value = fmt.Appendf(nil, "%v", tv.Value)
		}
		fmt.Printf("%s: %d\n", value, tv.Count)
	}
}
