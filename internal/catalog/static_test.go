package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadStaticProviderAndSearch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	content := `[
  {"id":"p1","name":"Trail Runner","price":89.5,"currency":"USDC","keywords":["跑鞋","running shoes"]},
  {"id":"p2","name":"Ledger Nano","price":79,"tags":["wallet","钱包"]},
  {"id":"p3","name":"Road Runner","price":99,"keywords":["跑鞋"]}
]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	provider, err := LoadStaticProvider(path, 5)
	if err != nil {
		t.Fatalf("LoadStaticProvider: %v", err)
	}
	if provider.Len() != 3 {
		t.Fatalf("expected 3 products, got %d", provider.Len())
	}

	shoes := provider.Search("帮我找跑鞋", 0)
	if len(shoes) != 2 {
		t.Fatalf("expected 2 shoes, got %+v", shoes)
	}
	if limited := provider.Search("跑鞋", 1); len(limited) != 1 {
		t.Fatalf("limit not applied: %+v", limited)
	}
	if wallets := provider.Search("hardware wallet", 0); len(wallets) != 1 || wallets[0].ID != "p2" {
		t.Fatalf("tag search failed: %+v", wallets)
	}
	if none := provider.Search("咖啡", 0); len(none) != 0 {
		t.Fatalf("expected no match, got %+v", none)
	}

	m := shoes[0].Map()
	if m["id"] != "p1" || m["currency"] != "USDC" {
		t.Fatalf("unexpected map: %v", m)
	}
}

func TestLoadStaticProviderErrors(t *testing.T) {
	if _, err := LoadStaticProvider("", 1); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := LoadStaticProvider(filepath.Join(t.TempDir(), "missing.json"), 1); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
