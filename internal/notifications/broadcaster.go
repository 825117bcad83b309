package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/posworks/posgrid-backend/pkg/enums"
)

// Frame is the JSON envelope pushed onto realtime channels. Terminal UIs
// subscribe to their user channel plus the channels of their role.
type Frame struct {
	Type   string    `json:"type"`
	SentAt time.Time `json:"sent_at"`
	Data   any       `json:"data"`
}

type framePublisher interface {
	Publish(ctx context.Context, channel string, payload any) error
	RealtimeUserChannel(userID string) string
	RealtimeRoleChannel(role string) string
}

// Broadcaster fans frames out over Redis pub/sub channels.
type Broadcaster struct {
	redis framePublisher
	now   func() time.Time
}

// NewBroadcaster builds a realtime broadcaster.
func NewBroadcaster(redis framePublisher) (*Broadcaster, error) {
	if redis == nil {
		return nil, fmt.Errorf("redis publisher required")
	}
	return &Broadcaster{redis: redis, now: time.Now}, nil
}

// ToUser pushes a frame onto a single user's channel.
func (b *Broadcaster) ToUser(ctx context.Context, userID uuid.UUID, frameType string, data any) error {
	return b.publish(ctx, b.redis.RealtimeUserChannel(userID.String()), frameType, data)
}

// ToRole pushes a frame onto the channel shared by every user of a role.
func (b *Broadcaster) ToRole(ctx context.Context, role enums.UserRole, frameType string, data any) error {
	return b.publish(ctx, b.redis.RealtimeRoleChannel(string(role)), frameType, data)
}

func (b *Broadcaster) publish(ctx context.Context, channel, frameType string, data any) error {
	payload, err := json.Marshal(Frame{
		Type:   frameType,
		SentAt: b.now().UTC(),
		Data:   data,
	})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return b.redis.Publish(ctx, channel, payload)
}
