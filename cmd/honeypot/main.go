// TrapLine honeypot server: engages suspected scam actors with a decoy
// persona while extracting payment identifiers, phone numbers and phishing
// links, then reports a dossier to the configured webhook when the
// engagement completes.
package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"

	"github.com/TrapLineAI/trapline/pkg/config"
	"github.com/TrapLineAI/trapline/pkg/engine"
	"github.com/TrapLineAI/trapline/pkg/inference"
	"github.com/TrapLineAI/trapline/pkg/intel"
	"github.com/TrapLineAI/trapline/pkg/keypool"
	"github.com/TrapLineAI/trapline/pkg/store"
)

const Version = "0.1.0"

// deadlineStall is sent when a request exhausts the outer deadline before
// the engine resolves. The boundary must answer with something benign
// rather than leave the caller hanging.
const deadlineStall = "I need to check my details, please wait a moment."

type honeypotRequest struct {
	SessionID string `json:"sessionId"`
	Message   struct {
		Text string `json:"text"`
	} `json:"message"`
	ConversationHistory []inference.Turn `json:"conversationHistory"`
}

func main() {
	cfg := config.NewDefaultConfig()
	cfg.MustValidate()

	pool := keypool.New(cfg.Credentials, keypool.WithCooldown(cfg.KeyCooldown))
	rdb := dialRedis(cfg)
	st := store.New(pool, rdb, store.WithTTL(cfg.SessionTTL))
	defer st.Close()

	client := inference.NewClient(inference.ClientConfig{
		APIVersion:  cfg.APIVersion,
		Models:      cfg.ModelCandidates(),
		CallTimeout: cfg.LLMTimeout,
	})
	classifier := inference.NewClassifier(client)
	agent := inference.NewAgent(client, cfg.Policy.Persona, cfg.Policy.HistoryWindow)
	extractor := intel.NewExtractor(cfg.Policy.SuspiciousKeywords)
	reporter := engine.NewReporter(cfg.ReportURL, cfg.ReportTimeout)

	eng := engine.New(cfg.Policy, pool, st, extractor, classifier, agent, reporter)

	go warmUpKeys(client, cfg.Credentials)

	app := fiber.New(fiber.Config{
		AppName: "TrapLine",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"version":     Version,
			"credentials": pool.Size(),
			"bindings":    pool.ActiveBindings(),
			"cooling":     pool.CoolingCount(),
			"sessions":    st.Len(),
			"models":      client.Models(),
		})
	})

	app.Post("/api/honeypot", func(c fiber.Ctx) error {
		if c.Get("x-api-key") != cfg.APIKey {
			log.Printf("[AUTH] Unauthorized request from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		var req honeypotRequest
		if err := c.Bind().Body(&req); err != nil {
			// Malformed input still gets engaged: an empty message advances
			// nothing useful but the counterparty must not see an error.
			log.Printf("[HTTP] Malformed request body: %v", err)
		}

		ctx, cancel := context.WithTimeout(c.Context(), cfg.RequestDeadline)
		defer cancel()

		results := make(chan engine.Response, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[HTTP] Panic recovered for session %s: %v", req.SessionID, r)
					results <- engine.Response{Status: "success", Reply: cfg.Policy.StallReply}
				}
			}()
			results <- eng.ProcessRequest(ctx, req.SessionID, req.Message.Text, req.ConversationHistory)
		}()

		select {
		case resp := <-results:
			return c.JSON(resp)
		case <-ctx.Done():
			log.Printf("[TIMEOUT] Request for session %s exceeded the deadline", req.SessionID)
			return c.JSON(engine.Response{Status: "success", Reply: deadlineStall})
		}
	})

	log.Printf("[STARTUP] TrapLine active on port %s (%d credentials, models: %v)",
		cfg.Port, pool.Size(), client.Models())
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("[STARTUP] FATAL: server failed: %v", err)
	}
}

// dialRedis connects the durable mirror. Failure is not fatal: the in-memory
// table is authoritative, the mirror only improves crash recovery.
func dialRedis(cfg *config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[STARTUP] Warning: Redis unreachable (%v) - running memory-only", err)
		return nil
	}
	log.Printf("[STARTUP] Redis connected at %s", cfg.RedisAddr)
	return rdb
}

// warmUpKeys pre-heats the first few credentials so the first real
// engagement does not pay connection and key-activation latency.
func warmUpKeys(client *inference.Client, keys []string) {
	const warmCount = 5
	if len(keys) == 0 {
		return
	}
	if len(keys) > warmCount {
		keys = keys[:warmCount]
	}
	log.Printf("[INIT] Warming up %d credentials", len(keys))

	for _, key := range keys {
		go func(k string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			contents := []inference.Content{{Role: "user", Parts: []inference.Part{{Text: "Hi"}}}}
			if _, err := client.Generate(ctx, k, contents, ""); err != nil {
				log.Printf("[INIT] Warmup error (minor): %v", err)
			}
		}(key)
	}
}
