package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/japaniel/shanbaysync/pkg/config"
	"github.com/japaniel/shanbaysync/pkg/shanbay"
	"github.com/japaniel/shanbaysync/pkg/transport"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string
	dbPath     string

	settings *config.Settings
	log      *slog.Logger
	closer   io.Closer

	out    io.Writer
	errOut io.Writer
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut}
}

// execute runs one command line. The log file opened during setup is closed
// on every path, failed commands included.
func (a *app) execute(ctx context.Context, args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if a.closer != nil {
		err = errors.Join(err, a.closer.Close())
		a.closer = nil
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shanbaysync",
		Short:         "Cache Shanbay reading vocabulary locally and export it as Anki notes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ./config.yaml or ~/.shanbaysync/config.yaml)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&a.logFile, "log-file", "", "also append logs to this file")
	pf.StringVar(&a.dbPath, "db", "", "path to the word cache database")

	root.AddCommand(
		newLoginCmd(a),
		newSyncCmd(a),
		newGroupsCmd(a),
		newExportCmd(a),
	)
	return root
}

// setup loads the settings, applies flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	s, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		s.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		s.Log.Format = a.logFormat
	}
	if flags.Changed("log-file") {
		s.Log.File = a.logFile
	}
	if flags.Changed("db") {
		s.Database = a.dbPath
	}
	a.settings = s

	logger, closer, err := newLogger(s.Log.Level, s.Log.Format, s.Log.File, a.errOut)
	if err != nil {
		return err
	}
	a.log = logger
	a.closer = closer
	a.log.Debug("configuration loaded", slog.String("file", s.File))
	return nil
}

// httpClient returns the shared retrying client for API and media requests.
func (a *app) httpClient() *http.Client {
	cfg := a.settings.TransportConfig()
	cfg.Logger = a.log
	return transport.New(cfg)
}

func (a *app) newClient(httpc *http.Client) (*shanbay.Client, error) {
	c, err := shanbay.NewClient(shanbay.Config{
		BaseURL:    a.settings.API.BaseURL,
		HTTPClient: httpc,
	}, a.log)
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}
	return c, nil
}
