package service

import (
	"context"

	"ai-slidegen-be/internal/pkg/logger"
	"ai-slidegen-be/internal/websocket"
	pkgNats "ai-slidegen-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// EventsTopic is the internal bus topic the pipeline event publisher mirrors
// onto and the relay consumes from.
const EventsTopic = "generation.events"

type IRelayService interface {
	Consume(ctx context.Context) error
}

// relayService fans pipeline progress events out to their delivery targets:
// the websocket hub for connected observers and NATS for external consumers.
type relayService struct {
	pubSub  *gochannel.GoChannel
	hub     *websocket.Hub
	natsPub *pkgNats.Publisher
	logger  logger.ILogger
}

func NewRelayService(pubSub *gochannel.GoChannel, hub *websocket.Hub, natsPub *pkgNats.Publisher, log logger.ILogger) IRelayService {
	return &relayService{
		pubSub:  pubSub,
		hub:     hub,
		natsPub: natsPub,
		logger:  log,
	}
}

func (rs *relayService) Consume(ctx context.Context) error {
	messages, err := rs.pubSub.Subscribe(ctx, EventsTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			rs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (rs *relayService) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	sessionID, err := uuid.Parse(msg.Metadata.Get("session_id"))
	if err != nil {
		rs.logger.Warn("RelayService", "Event without session id", map[string]interface{}{"error": err.Error()})
		return
	}

	rs.hub.Send(sessionID, msg.Payload)

	if rs.natsPub != nil {
		if err := rs.natsPub.Publish(ctx, msg.Payload); err != nil {
			rs.logger.Warn("RelayService", "NATS mirror failed", map[string]interface{}{
				"session_id": sessionID.String(), "error": err.Error(),
			})
		}
	}
}
