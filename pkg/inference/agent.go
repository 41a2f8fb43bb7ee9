package inference

import (
	"context"
	"errors"
)

// Turn is one prior exchange in the conversation, as supplied by the caller.
type Turn struct {
	Sender string `json:"sender"` // "scammer" or "agent"
	Text   string `json:"text"`
}

// Agent generates persona-consistent decoy replies.
type Agent struct {
	client        *Client
	persona       string
	historyWindow int
}

// NewAgent wraps the shared REST client with the decoy persona.
// historyWindow bounds how many recent turns are forwarded (oldest dropped).
func NewAgent(client *Client, persona string, historyWindow int) *Agent {
	if historyWindow <= 0 {
		historyWindow = 8
	}
	return &Agent{client: client, persona: persona, historyWindow: historyWindow}
}

// Reply produces the next decoy message given the inbound text and recent
// history, walking the model candidates for one credential. An empty model
// reply is an error: the wider system scores an absent reply as a failed
// engagement, so the caller must substitute the fixed stall line.
func (a *Agent) Reply(ctx context.Context, key, userMessage string, history []Turn) (string, error) {
	recent := history
	if len(recent) > a.historyWindow {
		recent = recent[len(recent)-a.historyWindow:]
	}

	contents := make([]Content, 0, len(recent)+1)
	for _, turn := range recent {
		role := "model"
		if turn.Sender == "scammer" {
			role = "user"
		}
		if turn.Text == "" {
			continue
		}
		contents = append(contents, Content{
			Role:  role,
			Parts: []Part{{Text: turn.Text}},
		})
	}
	contents = append(contents, Content{
		Role:  "user",
		Parts: []Part{{Text: userMessage}},
	})

	reply, err := a.client.Generate(ctx, key, contents, a.persona)
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "", errors.New("empty reply from agent")
	}
	return reply, nil
}
