package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-fleet-auth"
	"github.com/goliatone/go-fleet-auth/activitymap"
	"github.com/goliatone/go-fleet-auth/config"
	"github.com/goliatone/go-fleet-auth/repository"
	cookiejar "github.com/juju/persistent-cookiejar"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// app bundles what every command needs: config, logger, the persisted
// state repository and a session store wired to both.
type app struct {
	cfg      config.Config
	log      *logrus.Logger
	db       *bun.DB
	states   *repository.AuthStateRepository
	activity *repository.ActivityRepository
	jar      *cookiejar.Jar
	store    *auth.SessionStore
}

func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetOutput(cmd.ErrOrStderr())
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, exitError(2, "load config: %v", err)
	}

	for _, dir := range []string{filepath.Dir(cfg.Storage.CookieFile), filepath.Dir(sqlitePath(cfg.Storage.StateDSN))} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}

	db, err := repository.Open(cfg.Storage.StateDSN)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	states := repository.NewAuthStateRepository(db)
	if err := states.Init(cmd.Context()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state repository: %w", err)
	}

	activity := repository.NewActivityRepository(db, activitymap.WithDefaultChannel("fleetctl"))
	if err := activity.Init(cmd.Context()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init activity repository: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{Filename: cfg.Storage.CookieFile})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open cookie jar: %w", err)
	}

	logger := logrusLogger{log.WithField("component", "session")}
	store, err := auth.NewSessionStore(cmd.Context(), cfg.GetClient(),
		auth.WithCookieJar(jar),
		auth.WithStorage(states),
		auth.WithActivitySink(activity),
		auth.WithLogger(logger),
	)
	if err != nil {
		db.Close()
		return nil, exitError(2, "session store: %v", err)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		states:   states,
		activity: activity,
		jar:      jar,
		store:    store,
	}, nil
}

func (a *app) Close() {
	if err := a.jar.Save(); err != nil {
		a.log.Errorf("save cookies: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.log.Errorf("close state database: %v", err)
	}
}

func (a *app) guard(task *auth.InitTask) *auth.RouteGuard {
	return auth.NewRouteGuard(a.store,
		auth.WithGuardConfig(a.cfg.GetClient()),
		auth.WithInitTask(task),
		auth.WithGuardLogger(logrusLogger{a.log.WithField("component", "guard")}),
	)
}

// sqlitePath extracts the file path of a sqlite DSN, "" for in memory
func sqlitePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == ":memory:" {
		return ""
	}
	return p
}

// logrusLogger adapts a logrus entry to auth.Logger
type logrusLogger struct {
	entry *logrus.Entry
}

func (l logrusLogger) Debug(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l logrusLogger) Info(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l logrusLogger) Error(format string, args ...any) {
	l.entry.Errorf(format, args...)
}
