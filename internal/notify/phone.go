package notify

import (
	"context"
	"fmt"

	"github.com/wardenai/warden/internal/voice"
)

// PhoneVerifier is a PhoneInitiator backed by voice.DefaultCallManager. The
// runtime places outbound verification calls to a single configured
// operator number rather than looking one up per request.
type PhoneVerifier struct {
	manager    *voice.DefaultCallManager
	to, from   string
	webhookURL string
}

// NewPhoneVerifier constructs a PhoneVerifier that calls "to" from "from",
// directing the provider's webhook callbacks at webhookURL.
func NewPhoneVerifier(manager *voice.DefaultCallManager, to, from, webhookURL string) *PhoneVerifier {
	return &PhoneVerifier{manager: manager, to: to, from: from, webhookURL: webhookURL}
}

// InitiateVerification places the outbound call and speaks the approval
// prompt once the call answers; resolution arrives later through the
// provider's DTMF/speech webhook, not this call's return value.
func (p *PhoneVerifier) InitiateVerification(ctx context.Context, callID, tool, argsJSON string) error {
	message := fmt.Sprintf(
		"Warden needs approval to run the tool %s. Say approve or deny.", tool,
	)
	_, err := p.manager.InitiateCall(ctx, p.to, p.from, p.webhookURL, message)
	if err != nil {
		return fmt.Errorf("notify: initiate verification call for %s: %w", callID, err)
	}
	return nil
}
