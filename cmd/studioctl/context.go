package main

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/config"
	"github.com/aura-webinar/videocreator/internal/bootstrap"
	"github.com/aura-webinar/videocreator/internal/events"
	"github.com/aura-webinar/videocreator/internal/persistence"
	"github.com/aura-webinar/videocreator/internal/studio"
	"github.com/aura-webinar/videocreator/internal/videos"
	"github.com/aura-webinar/videocreator/pkg/storage"
)

// userNamespace scopes local user names to stable ids.
var userNamespace = uuid.MustParse("6f1d7c4e-2a0b-4b8e-9a51-2f6a3c9d8e10")

type globalOptions struct {
	dataDir string
	user    string
	verbose bool
}

type commandContext struct {
	opts *globalOptions

	once    sync.Once
	env     *environment
	openErr error
}

// environment is everything a command needs, opened once per invocation.
type environment struct {
	cfg     *config.Config
	logger  *zap.Logger
	userID  uuid.UUID
	objects *storage.Local
	meta    *videos.SQLiteStore
	gateway *persistence.Store
}

func newCommandContext(opts *globalOptions) *commandContext {
	return &commandContext{opts: opts}
}

func (c *commandContext) open() (*environment, error) {
	c.once.Do(func() {
		c.env, c.openErr = openEnvironment(c.opts)
	})
	return c.env, c.openErr
}

func (c *commandContext) close() {
	if c.env != nil {
		c.env.meta.Close()
		_ = c.env.logger.Sync()
	}
}

func openEnvironment(opts *globalOptions) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := zap.NewNop()
	if opts.verbose {
		logger = bootstrap.NewLogger()
	}
	name := strings.TrimSpace(opts.user)
	if name == "" {
		return nil, fmt.Errorf("user name is required")
	}
	if err := os.MkdirAll(opts.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	objects, err := storage.NewLocal(filepath.Join(opts.dataDir, "objects"))
	if err != nil {
		return nil, err
	}
	meta, err := videos.OpenSQLite(filepath.Join(opts.dataDir, "studio.db"), logger)
	if err != nil {
		return nil, err
	}
	return &environment{
		cfg:     cfg,
		logger:  logger,
		userID:  userID(name),
		objects: objects,
		meta:    meta,
		gateway: persistence.NewStore(objects, meta, nil, logger),
	}, nil
}

func (e *environment) library(ctx context.Context) (*studio.Library, error) {
	return studio.OpenLibrary(ctx, e.userID, e.gateway, events.Nop{}, e.logger)
}

func userID(name string) uuid.UUID {
	return uuid.NewSHA1(userNamespace, []byte(strings.ToLower(name)))
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "studioctl")
	}
	return ".studioctl"
}

func defaultUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}
