package bootstrap

import (
	"context"
	"log"

	"ai-slidegen-be/internal/config"
	"ai-slidegen-be/internal/controller"
	"ai-slidegen-be/internal/handler"
	"ai-slidegen-be/internal/pkg/logger"
	"ai-slidegen-be/internal/repository/contract"
	"ai-slidegen-be/internal/repository/implementation"
	"ai-slidegen-be/internal/repository/memory"
	"ai-slidegen-be/internal/service"
	"ai-slidegen-be/internal/websocket"
	"ai-slidegen-be/pkg/collab"
	"ai-slidegen-be/pkg/events"
	"ai-slidegen-be/pkg/pipeline"

	pktNats "ai-slidegen-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	GenerationController controller.IGenerationController

	// WebSockets & Streaming
	StreamHandler *handler.StreamHandler
	WebSocketHub  *websocket.Hub

	// Background Services (Exposed for main.go to run)
	RelayService   service.IRelayService
	CleanupService service.ICleanupService
}

// NewContainer wires the full dependency graph. A nil db falls back to the
// in-memory session repository.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	var sessionRepo contract.SessionRepository
	if db != nil {
		sessionRepo = implementation.NewSessionRepository(db)
	} else {
		log.Println("[WARN] No database configured, using in-memory session repository")
		sessionRepo = memory.NewSessionRepository()
	}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	progressPub := events.NewPublisher()
	progressPub.AttachBus(pubSub, service.EventsTopic)

	// 2.5 Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/stream.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 3. Pipeline
	agents := collab.NewClient(cfg.App.AgentsBaseURL)
	log.Printf("[INFO] Using Agents Service: %s", cfg.App.AgentsBaseURL)

	machine := pipeline.NewMachine(cfg.Pipeline, sessionRepo, progressPub, sysLogger, agents.Collaborators())

	// 4. Services
	generationService := service.NewGenerationService(machine, sysLogger)
	relayService := service.NewRelayService(pubSub, wsHub, natsPub, wsLogger)
	cleanupService := service.NewCleanupService(sessionRepo, cfg.Pipeline.RetentionWindow, sysLogger)

	// 5. Controllers & Handlers
	return &Container{
		GenerationController: controller.NewGenerationController(generationService),
		StreamHandler:        handler.NewStreamHandler(wsHub, progressPub, wsLogger),
		WebSocketHub:         wsHub,
		RelayService:         relayService,
		CleanupService:       cleanupService,
	}
}
