package bus

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// New creates an event bus based on configuration: a ChannelBus for the
// community tier, a NATSBus for pro.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

func newMessage(topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}

// MetaReply is the metadata key carrying the reply topic of a request.
const MetaReply = "reply_to"

// ReplyTopic returns the topic a responder answers msg on, or "" when the
// message is not a request.
func ReplyTopic(msg *domain.Message) string {
	return msg.Metadata[MetaReply]
}

func withReply(md map[string]string, topic string) map[string]string {
	if md == nil {
		md = make(map[string]string)
	}
	md[MetaReply] = topic
	return md
}
