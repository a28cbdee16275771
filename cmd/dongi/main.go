package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dongi/internal/charge"
	"github.com/smallbiznis/dongi/internal/clock"
	"github.com/smallbiznis/dongi/internal/config"
	"github.com/smallbiznis/dongi/internal/event"
	"github.com/smallbiznis/dongi/internal/eventlock"
	"github.com/smallbiznis/dongi/internal/migration"
	"github.com/smallbiznis/dongi/internal/observability"
	"github.com/smallbiznis/dongi/internal/paymentlink"
	"github.com/smallbiznis/dongi/internal/seed"
	"github.com/smallbiznis/dongi/internal/selection"
	"github.com/smallbiznis/dongi/internal/server"
	"github.com/smallbiznis/dongi/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		eventlock.Module,

		// Functional Domains
		paymentlink.Module,
		charge.Module,
		event.Module,
		selection.Module,
		seed.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
