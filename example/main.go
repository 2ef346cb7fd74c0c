// Command example walks the full edit-and-regenerate pipeline against a
// real database and the Gemini API. It needs DATABASE_URL, GEMINI_API, and
// MODEL_ID set in the environment.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/silvergrove/coach"
	"github.com/silvergrove/coach/gemini"
	"github.com/silvergrove/coach/postgres"
)

func main() {
	ctx := context.Background()

	cfg := coach.LoadConfig()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	store := postgres.New(db, nil)
	provider := gemini.New(cfg.GeminiAPI, cfg.ModelID).WithStore(store)

	if err := store.CreateSchema(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Println("✓ Schema created")

	session, err := store.CreateSession(ctx, "example-user", "Morning check-in", coach.Rules{
		SystemPrompt: "You are a supportive personal coach. Keep replies short, concrete, and encouraging.",
		MaxTokens:    cfg.MaxTokens,
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("✓ Session %s\n", session.ID)

	cache := coach.NewCache(store, nil)
	regen := coach.NewRegenerator(store, provider, nil)
	coordinator := coach.NewCoordinator(store, regen, cache, nil).WithLeaseTTL(cfg.EditLeaseTTL)

	// First exchange: the prompt becomes a user message, the reply follows.
	reply, err := regen.Regenerate(ctx, session.ID,
		"I keep skipping my morning runs this week.", coach.RegenerateOptions{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("coach> %s\n", reply.Content)

	messages, err := cache.Load(ctx, session.ID, false)
	if err != nil {
		log.Fatal(err)
	}

	// Edit the user message: the old reply is truncated and regenerated.
	if err := coordinator.EditMessage(ctx, session.ID, messages[0].ID,
		"I keep skipping my morning runs, and my evening stretches too."); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("✓ Edit %s\n", coordinator.Phase(session.ID))

	for _, msg := range cache.Messages(session.ID) {
		fmt.Printf("%d %s> %s\n", msg.Seq, msg.Role, msg.Content)
	}
}
