package persist

import (
	"context"
	"errors"
	"testing"

	"github.com/pixil98/go-testutil"

	"github.com/fernwake/go-grove/internal/game"
)

func TestMemoryGateway_PlayerRoundTrip(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	rec, err := g.LoadPlayer(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatal("expected no record for unknown identity")
	}

	err = g.CreatePlayer(ctx, &PlayerRecord{Identity: "u1", Name: "Alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = g.SavePlayerPosition(ctx, "u1", game.Position{X: 1, Y: 2, Z: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = g.SavePlayerInventory(ctx, "u1", []game.InventoryItem{{Id: "a", Type: "oak_log", Quantity: 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err = g.LoadPlayer(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "name", rec.Name, "Alice")
	testutil.AssertEqual(t, "x", rec.Position.X, 1.0)
	testutil.AssertEqual(t, "inventory length", len(rec.Inventory), 1)
}

func TestMemoryGateway_Failure(t *testing.T) {
	g := NewMemoryGateway()
	g.FailWith = errors.New("store offline")

	if err := g.SavePlayerPosition(context.Background(), "u1", game.Position{}); err == nil {
		t.Error("expected injected failure")
	}
	if _, err := g.LoadResourceNodes(context.Background()); err == nil {
		t.Error("expected injected failure")
	}
}

func TestMemoryGateway_WorldItems(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	err := g.DropItemInWorld(ctx, ItemRecord{Id: "d1", Type: "oak_log"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = g.DropItemInWorld(ctx, ItemRecord{Id: "d2", Type: "copper_ore"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recs, err := g.LoadWorldItems(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "item count", len(recs), 2)

	if err := g.RemoveWorldItem(ctx, "d1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "after remove", len(g.Items()), 1)

	if err := g.RemoveAllWorldItems(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "after clear", len(g.Items()), 0)
}
