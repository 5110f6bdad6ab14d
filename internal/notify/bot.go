// Package notify adapts the channel/voice packages to the interceptor's
// WebNotifier, BotNotifier, and PhoneInitiator interfaces.
package notify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/wardenai/warden/internal/channels"
	"github.com/wardenai/warden/pkg/models"
)

// ChatNotifier is a BotNotifier backed by a channels.Registry. The channel
// string it receives follows the same "type:id" convention the telegram,
// slack, and discord adapters already use for Message.SessionID (e.g.
// "telegram:123456789"), so the same string doubles as the approval
// broker's FIFO matching key and the outbound adapter's destination.
type ChatNotifier struct {
	registry *channels.Registry
	now      func() time.Time
}

// NewChatNotifier constructs a ChatNotifier over the given registry.
func NewChatNotifier(registry *channels.Registry) *ChatNotifier {
	return &ChatNotifier{registry: registry, now: time.Now}
}

// NotifyApproval sends an approval prompt to the chat channel encoded in
// channel, addressed so a reply on that same channel resolves the pending
// approval via the broker's FIFO matching.
func (c *ChatNotifier) NotifyApproval(ctx context.Context, channel, callID, tool, argsJSON string) error {
	channelType, _, ok := splitChannel(channel)
	if !ok {
		return fmt.Errorf("notify: malformed channel %q, expected \"type:id\"", channel)
	}

	outbound, ok := c.registry.GetOutbound(channelType)
	if !ok {
		return fmt.Errorf("notify: no outbound adapter registered for channel %q", channelType)
	}

	msg := &models.Message{
		ID:        newID(),
		SessionID: channel,
		Channel:   channelType,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   formatApprovalPrompt(tool, callID, argsJSON),
		CreatedAt: c.now(),
	}
	return outbound.Send(ctx, msg)
}

// splitChannel parses a "type:id" channel key into its channel type and
// destination id.
func splitChannel(channel string) (models.ChannelType, string, bool) {
	channelType, id, ok := strings.Cut(channel, ":")
	if !ok || channelType == "" || id == "" {
		return "", "", false
	}
	return models.ChannelType(channelType), id, true
}

func formatApprovalPrompt(tool, callID, argsJSON string) string {
	return fmt.Sprintf(
		"Approval needed to run %q (call %s).\nArguments: %s\n\nReply \"approve\" or \"deny\".",
		tool, callID, argsJSON,
	)
}

func newID() string {
	var buf [12]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
