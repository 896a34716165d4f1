package wallet

import (
	"math/big"
	"testing"
)

func TestV2RouterConstantProduct(t *testing.T) {
	router := NewV2Router()
	router.AddPool(SettlementSymbol, "WETH", big.NewInt(1_000_000), big.NewInt(500))

	out, err := router.Swap(SettlementSymbol, "WETH", big.NewInt(10_000))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	// 500 * 9970 / (1_000_000 * 10_000 / 10_000 + 9970) rounds down to 4.
	if out.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("expected 4 out, got %s", out)
	}

	// Reserves moved, so the same trade now yields no more than before.
	again, err := router.Swap(SettlementSymbol, "WETH", big.NewInt(10_000))
	if err != nil {
		t.Fatalf("second swap: %v", err)
	}
	if again.Cmp(out) > 0 {
		t.Fatalf("price should not improve after buying: %s then %s", out, again)
	}

	if _, err := router.Swap(SettlementSymbol, "DOGE", big.NewInt(1)); err != ErrNoRoute {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestV4RouterFeeTiers(t *testing.T) {
	router := NewV4Router()
	router.AddPool(SettlementSymbol, "WETH", 500, big.NewInt(1), big.NewInt(2_000))

	out, err := router.Swap(SettlementSymbol, "WETH", big.NewInt(10_000))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	// 5% fee tier: 9500 effective at 2000 per unit gives 4.
	if out.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("expected 4 out, got %s", out)
	}

	back, err := router.Swap("WETH", SettlementSymbol, big.NewInt(4))
	if err != nil {
		t.Fatalf("reverse swap: %v", err)
	}
	// The fee on 4 units truncates to zero, so the full amount converts.
	if back.Cmp(big.NewInt(8_000)) != 0 {
		t.Fatalf("expected 8000 back, got %s", back)
	}
}

func TestRoutersAreInterchangeable(t *testing.T) {
	backends := []Router{NewV2Router(), NewV4Router()}
	names := map[string]bool{}
	for _, backend := range backends {
		names[backend.Name()] = true
		if _, err := backend.Swap("A", "B", big.NewInt(1)); err != ErrNoRoute {
			t.Fatalf("%s: expected ErrNoRoute on empty router, got %v", backend.Name(), err)
		}
	}
	if !names["v2"] || !names["v4"] {
		t.Fatalf("unexpected backend names: %v", names)
	}
}
