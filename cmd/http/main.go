package main

import (
	"context"
	"expvar"
	"log"
	"runtime"
	"time"

	"github.com/inklet/inklet/internal/canvas"
	"github.com/inklet/inklet/internal/infrastructure/configs"
	"github.com/inklet/inklet/internal/infrastructure/ratelimiter"
	"github.com/inklet/inklet/internal/infrastructure/repository"
	"github.com/inklet/inklet/internal/infrastructure/tracing"
	"github.com/inklet/inklet/internal/infrastructure/ws"
	"github.com/inklet/inklet/internal/presentation/api"
	"github.com/inklet/inklet/internal/presentation/handler/health"
	"github.com/inklet/inklet/internal/presentation/handler/rooms"
	"go.uber.org/zap"
)

func main() {
	logger := zap.Must(zap.NewProduction()).Sugar()
	defer logger.Sync()

	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer(tracing.NewDefaultConfig(cfg.Tracing.ServiceName, cfg.Tracing.OTLPEndpoint))
		if err != nil {
			logger.Fatalw("failed to init tracer", "error", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Errorw("tracer shutdown", "error", err)
			}
		}()
	}

	drawLog := canvas.NewLog()
	snapshots := canvas.NewSnapshots(drawLog)
	chatLog := repository.NewChatLog(cfg.ChatLog.Capacity)

	// The store reports expired rooms back to the gateway, which does not
	// exist yet at this point. The closure resolves the cycle.
	var gateway *ws.Gateway
	roomStore := repository.NewRoomStore(cfg.RoomStore.Capacity, cfg.RoomStore.EmptyRoomGrace, func(roomID string) {
		gateway.OnRoomExpired(roomID)
	})
	gateway = ws.NewGateway(roomStore, chatLog, drawLog, snapshots, logger)

	roomHandler := rooms.NewHandler(roomStore, gateway)
	healthHandler := health.NewHandler()
	rateLimiter := ratelimiter.NewFixedWindowRateLimiter(cfg.RateLimiter.RequestsPerTimeFrame, cfg.RateLimiter.TimeFrame)
	defer rateLimiter.Close()

	app := api.NewApplication(*cfg, *roomHandler, *healthHandler, logger, rateLimiter)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.Mount()
	logger.Fatal(app.Run(mux))
}
