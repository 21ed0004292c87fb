package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/danhigham/huddle/internal/api"
	"github.com/danhigham/huddle/internal/config"
	"github.com/danhigham/huddle/internal/domain"
)

const logFileName = "huddle.log"

// app carries what every subcommand needs once flags have been parsed.
type app struct {
	v      *viper.Viper
	dir    string
	cfg    *config.Config
	logger *zap.Logger
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func newRootCmd() *cobra.Command {
	a := &app{v: newViper()}
	var kind string

	root := &cobra.Command{
		Use:          "huddle",
		Short:        "Terminal client for a realtime chat service",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTUI(cmd.Context(), kind)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config-dir", config.Dir(), "directory holding config.yaml, session.yaml and the log file")
	flags.String("api-url", "", "REST API base URL (overrides server.api_url)")
	flags.String("ws-url", "", "WebSocket endpoint (overrides server.ws_url)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.Duration("http-timeout", 0, "per-request timeout for REST calls")
	flags.String("token", "", "use this bearer token instead of the stored session")
	_ = a.v.BindPFlags(flags)

	addKindFlag(root, &kind)

	root.AddCommand(
		newRunCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newConversationsCmd(a),
		newVersionCmd(),
	)
	return root
}

func addKindFlag(cmd *cobra.Command, kind *string) {
	cmd.Flags().StringVar(kind, "kind", "all", "conversations to list: all, direct or group")
}

func (a *app) setup() error {
	a.dir = a.v.GetString("config-dir")

	cfg, err := config.Resolve(a.dir, a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(a.dir, cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// newLogger writes to a file in dir since the terminal belongs to the TUI.
func newLogger(dir, level string) (*zap.Logger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	logPath := filepath.Join(dir, logFileName)
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = lvl
	logCfg.OutputPaths = []string{logPath}
	logCfg.ErrorOutputPaths = []string{logPath}
	logger, err := logCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

func (a *app) sessionPath() string {
	return config.SessionPath(a.dir)
}

func (a *app) apiClient(token string) (*api.Client, error) {
	if a.cfg.Server.APIURL == "" {
		return nil, fmt.Errorf("server.api_url is not set: add it to %s or pass --api-url", config.Path(a.dir))
	}
	return api.New(a.cfg.Server.APIURL,
		api.WithToken(token),
		api.WithTimeout(a.cfg.HTTP.Timeout),
		api.WithLogger(a.logger.Named("api")),
	), nil
}

// bootstrap returns the session to use and a client authorized with it. The
// token is checked against /auth/me; a stored token the server rejects is
// discarded.
func (a *app) bootstrap(ctx context.Context) (domain.Session, *api.Client, error) {
	var (
		session domain.Session
		stored  bool
	)
	if token := a.v.GetString("token"); token != "" {
		session.Token = token
	} else {
		s, err := config.LoadSession(a.sessionPath())
		if errors.Is(err, domain.ErrNoSession) {
			return domain.Session{}, nil, errors.New("not logged in: run huddle login")
		}
		if err != nil {
			return domain.Session{}, nil, err
		}
		session, stored = s, true
	}

	client, err := a.apiClient(session.Token)
	if err != nil {
		return domain.Session{}, nil, err
	}

	me, err := client.Me(ctx)
	if errors.Is(err, domain.ErrUnauthorized) {
		if stored {
			if rmErr := config.RemoveSession(a.sessionPath()); rmErr != nil {
				a.logger.Warn("failed to remove rejected session", zap.Error(rmErr))
			}
		}
		return domain.Session{}, nil, fmt.Errorf("session expired, run huddle login: %w", err)
	}
	if err != nil {
		return domain.Session{}, nil, err
	}

	session.UserID = me.ID
	session.Name = me.Name
	return session, client, nil
}
