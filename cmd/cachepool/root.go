package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/cachepool"
	"github.com/unkn0wn-root/cachepool/codec"
	"github.com/unkn0wn-root/cachepool/config"
	zaplog "github.com/unkn0wn-root/cachepool/log/zap"
)

type globals struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "cachepool",
		Short: "Inspect and maintain a cachepool cache",
		Long: `cachepool opens the driver stack described by a YAML config and runs one
cache operation against it. Values are read and written as strings.

Examples:
  # Store a value for five minutes, tagged "users"
  cachepool --config cache.yaml set user.1 Ada --ttl 5m --tag users

  # Drop everything tagged "users"
  cachepool --config cache.yaml invalidate-tag users

  # Drop the whole namespace by bumping its version
  CACHEPOOL_NAMESPACE=app cachepool --config cache.yaml invalidate`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to the YAML config (default: one in-memory tier)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newGetCmd(g),
		newSetCmd(g),
		newDeleteCmd(g),
		newTagsCmd(g),
		newInvalidateTagCmd(g),
		newInvalidateCmd(g),
		newPurgeCmd(g),
		newClearCmd(g),
	)
	return root
}

// open builds the pool the command runs against. The returned func closes it
// and flushes the logger.
func (g *globals) open(ctx context.Context) (cachepool.Pool[string], func(), error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.verbose {
		cfg.Log.Level = "debug"
	}
	zl, err := cfg.ZapLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	logger := zaplog.New(zl.With(zap.String("component", "cli")))

	d, err := cfg.Build(ctx, logger, nil)
	if err != nil {
		_ = zl.Sync()
		return nil, nil, err
	}
	vs, err := cfg.VersionStore(ctx)
	if err != nil {
		_ = d.Close(ctx)
		_ = zl.Sync()
		return nil, nil, err
	}
	p, err := cachepool.New(cachepool.Options[string]{
		Driver:       d,
		Codec:        codec.String{},
		Namespace:    cfg.Namespace,
		VersionStore: vs,
		Tagging:      cfg.Tagging,
		Logger:       logger,
	})
	if err != nil {
		_ = d.Close(ctx)
		_ = zl.Sync()
		return nil, nil, err
	}
	return p, func() {
		if err := p.Close(ctx); err != nil {
			logger.Warn("close failed", cachepool.Fields{"err": err})
		}
		_ = zl.Sync()
	}, nil
}
