// Command matchd runs the matching engine service: a Kafka-fed command loop
// per partition assignment, plus a read-only admin introspection surface.
//
// Grounded in the teacher's cmd/server/server.go entrypoint idiom
// (signal.NotifyContext for SIGTERM/SIGINT, a background Run goroutine
// blocking on ctx.Done()), retargeted from a raw TCP exchange onto the
// Kafka-backed command/event bus this rework replaces it with.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/saiputravu/matchd/internal/admin"
	"github.com/saiputravu/matchd/internal/config"
	"github.com/saiputravu/matchd/internal/dedup"
	"github.com/saiputravu/matchd/internal/loop"
	"github.com/saiputravu/matchd/internal/registry"
	"github.com/saiputravu/matchd/internal/transport/kafka"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	saramaCfg := kafka.NewSaramaConfig()

	inbound, err := kafka.NewInbound(ctx, cfg.KafkaBrokers, cfg.ConsumerGroup, cfg.InboundTopic, saramaCfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to start inbound consumer")
		return 1
	}
	defer inbound.Close()

	outbound, err := kafka.NewOutbound(cfg.KafkaBrokers, cfg.OutboundTopic, saramaCfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to start outbound producer")
		return 1
	}
	defer outbound.Close()

	reg := registry.New()
	defer reg.StopAll()

	cmdLoop := &loop.CommandLoop{
		Inbound:     inbound,
		Outbound:    outbound,
		Registry:    reg,
		Dedup:       dedup.New(cfg.DedupCapacity),
		PollTimeout: cfg.PollTimeout,
	}

	loopErrCh := make(chan error, 1)
	go func() { loopErrCh <- cmdLoop.Run(ctx) }()

	var adminSrv *admin.Server
	adminErrCh := make(chan error, 1)
	if cfg.AdminListenAddr != "" {
		adminSrv = admin.New(cfg.AdminListenAddr, reg)
		go func() { adminErrCh <- adminSrv.Run(ctx) }()
	}

	log.Info().
		Strs("brokers", cfg.KafkaBrokers).
		Str("inbound_topic", cfg.InboundTopic).
		Str("outbound_topic", cfg.OutboundTopic).
		Str("admin_addr", cfg.AdminListenAddr).
		Msg("matchd starting")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		if adminSrv != nil {
			adminSrv.Shutdown()
		}
		<-loopErrCh
		return 0
	case err := <-loopErrCh:
		if err != nil {
			log.Error().Err(err).Msg("command loop exited with fatal error")
			return 1
		}
		return 0
	case err := <-adminErrCh:
		if err != nil {
			log.Error().Err(err).Msg("admin surface exited with fatal error")
			return 1
		}
		return 0
	}
}
