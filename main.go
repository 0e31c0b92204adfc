package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Camara-Agent-Gateway/agent/assistant"
	camarax "github.com/tanpawarit/Camara-Agent-Gateway/camara"
	dedupx "github.com/tanpawarit/Camara-Agent-Gateway/dedup"
	gatewayx "github.com/tanpawarit/Camara-Agent-Gateway/gateway"
	historyx "github.com/tanpawarit/Camara-Agent-Gateway/history"
	configx "github.com/tanpawarit/Camara-Agent-Gateway/pkg/config"
	_ "github.com/tanpawarit/Camara-Agent-Gateway/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/Camara-Agent-Gateway/pkg/openrouter"
	qstashx "github.com/tanpawarit/Camara-Agent-Gateway/pkg/qstash"
)

type AppConfig struct {
	SystemPrompt string `envconfig:"SYSTEM_PROMPT" split_words:"true"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")

	dedupCfg := configx.MustNew[dedupx.Config]("DEDUP")
	coalescer := dedupx.New(*dedupCfg)
	defer coalescer.Close()

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	if openrouterx.NewClient(*openRouterCfg) == nil {
		panic("failed to initialize openrouter client")
	}

	runner, err := assistant.New(ctx, openRouterCfg, openRouterCfg.Model, coalescer, appCfg.SystemPrompt)
	if err != nil {
		panic(err)
	}

	camaraCfg := configx.MustNew[camarax.Config]("CAMARA")
	camaraClient, err := camarax.NewClient(*camaraCfg, coalescer)
	if err != nil {
		panic(err)
	}

	// History and webhook publishing are optional collaborators.
	var store historyx.Store
	if redisCfg, err := configx.New[historyx.UpstashRedisConfig]("UPSTASH_REDIS"); err == nil {
		store, err = historyx.NewUpstashRedisStore(*redisCfg)
		if err != nil {
			panic(err)
		}
	} else {
		log.Warn().Err(err).Msg("session history disabled")
	}

	var publisher gatewayx.Publisher
	if qstashCfg, err := configx.New[qstashx.Config]("QSTASH"); err == nil {
		publisher = qstashx.MustNew(*qstashCfg)
	} else {
		log.Warn().Err(err).Msg("result webhook publishing disabled")
	}

	serverCfg := configx.MustNew[gatewayx.Config]("GATEWAY")
	server, err := gatewayx.NewServer(*serverCfg, runner, camaraClient, store, publisher)
	if err != nil {
		panic(err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Fatal().Err(err).Msg("gateway stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}
