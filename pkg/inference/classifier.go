package inference

import (
	"context"
	"fmt"
)

// detectorSystemPrompt frames the classification request. The reply contract
// is a single category word; ParseRisk tolerates sloppier output.
const detectorSystemPrompt = `ROLE: You are a cybersecurity expert analyzing text for scam intent.
Look for: Urgency, Threats (Police/Bank), requests for OTP/Money, or weird links.
Risk Levels: LOW (Normal chat), MEDIUM (Suspicious), HIGH (Clear scam attempt), DEFINITE (Known scam pattern).`

// Classifier produces a coarse risk category for one inbound message.
type Classifier struct {
	client *Client
}

// NewClassifier wraps the shared REST client.
func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

// Classify runs the single-turn classification prompt against the model
// candidates for one credential. An error means every model failed for this
// key; the caller decides whether to rotate to the next credential or fall
// back (see HeuristicRisk). A QuotaError additionally asks for a cool-down.
func (c *Classifier) Classify(ctx context.Context, key, text string) (RiskLevel, error) {
	prompt := fmt.Sprintf("Classify this message as LOW, MEDIUM, or HIGH risk.\nMessage: %q\nReply with ONLY ONE WORD.", text)

	contents := []Content{{
		Role:  "user",
		Parts: []Part{{Text: prompt}},
	}}

	raw, err := c.client.Generate(ctx, key, contents, detectorSystemPrompt)
	if err != nil {
		return RiskMedium, err
	}
	return ParseRisk(raw), nil
}
