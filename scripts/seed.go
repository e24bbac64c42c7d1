// Seed script for creating demo state in symstate.
// Run with: go run ./scripts/seed.go
//
// Writes into SNAPSHOT_BACKEND (file, sqlite: or postgres://) a small
// philosophy-of-mind graph, a goal hierarchy and one snapshot.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/Harshitk-cp/symstate/internal/embedding"
	"github.com/Harshitk-cp/symstate/internal/service"
	"github.com/Harshitk-cp/symstate/internal/store"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load environment
	envFile := os.Getenv("SYMSTATE_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	backend := os.Getenv("SNAPSHOT_BACKEND")
	if backend == "" {
		backend = "symstate.yaml"
	}

	ctx := context.Background()
	logger := zap.NewNop()

	st, err := store.Open(ctx, backend, store.Options{MaxRetries: store.DefaultMaxRetries}, logger)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}
	defer func() { _ = st.Close() }()

	graph := service.NewMemoryGraph(embedding.NewLocalClient(256), service.DefaultMemoryGraphConfig(), logger)
	goals := service.NewGoalTracker(graph, 0, logger)
	proofs := service.NewProofEngine(graph, service.DefaultVerifierTimeout, logger)
	flusher := service.NewFlushService(st, graph, goals, proofs, logger)

	if err := flusher.Restore(ctx); err != nil {
		log.Fatalf("Failed to restore existing state: %v", err)
	}
	if len(graph.List()) > 0 {
		fmt.Printf("%s already holds %d symbols, nothing to do\n", backend, len(graph.List()))
		return
	}

	symbols := []domain.Symbol{
		{Term: "consciousness", Definition: "subjective experience", Framework: "general", Confidence: 0.7},
		{Term: "phi", Definition: "integrated information of a system", Framework: "IIT", Confidence: 0.8,
			Relations: map[string]domain.Relation{"consciousness": {Kind: domain.RelationCorrelates}}},
		{Term: "global workspace", Definition: "broadcast of information to many modules", Framework: "GWT", Confidence: 0.75,
			Relations: map[string]domain.Relation{"consciousness": {Kind: domain.RelationCorrelates}}},
		{Term: "qualia", Definition: "the felt quality of experience", Framework: "general", Confidence: 0.5,
			Relations: map[string]domain.Relation{"consciousness": {Kind: domain.RelationPartOf}}},
		{Term: "zombie", Definition: "a physical duplicate lacking experience", Framework: "general", Confidence: 0.4,
			Relations: map[string]domain.Relation{"qualia": {Kind: domain.RelationContradicts}}},
	}
	for _, s := range symbols {
		stored, err := graph.Upsert(ctx, s, service.UpsertOptions{})
		if err != nil {
			log.Fatalf("Failed to add symbol %s: %v", s.Term, err)
		}
		fmt.Printf("Symbol: %s (%s)\n", stored.ID, stored.Framework)
	}

	value, err := goals.AddValue(domain.Value{Name: "understand consciousness", Priority: 1})
	if err != nil {
		log.Fatalf("Failed to add value: %v", err)
	}
	goal, err := goals.AddGoal(domain.Goal{
		Name:     "compare leading theories",
		Values:   []string{value.ID},
		Concepts: []string{"phi", "global workspace"},
	})
	if err != nil {
		log.Fatalf("Failed to add goal: %v", err)
	}
	for _, name := range []string{"summarize IIT", "summarize GWT"} {
		if _, err := goals.AddTarget(domain.Target{Name: name, Goals: []string{goal.ID}}); err != nil {
			log.Fatalf("Failed to add target %s: %v", name, err)
		}
	}

	sessionID := "seed-" + uuid.NewString()[:8]
	seq := graph.Snapshot(sessionID)
	if err := flusher.Flush(ctx); err != nil {
		log.Fatalf("Failed to write state: %v", err)
	}

	fmt.Println()
	fmt.Println("=== Seed Complete ===")
	fmt.Printf("Backend:  %s\n", backend)
	fmt.Printf("Symbols:  %d\n", len(symbols))
	fmt.Printf("Value:    %s\n", value.ID)
	fmt.Printf("Goal:     %s\n", goal.ID)
	fmt.Printf("Snapshot: %d (session %s)\n", seq, sessionID)
}
