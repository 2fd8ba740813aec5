package issuance

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"

	"Agentrix-Chat/internal/wizard"
)

const (
	tokenABI = `[{"type":"constructor","stateMutability":"nonpayable","inputs":[
		{"name":"name_","type":"string"},
		{"name":"symbol_","type":"string"},
		{"name":"decimals_","type":"uint8"},
		{"name":"totalSupply_","type":"uint256"},
		{"name":"initialOwner","type":"address"}]}]`
	nftABI = `[{"type":"constructor","stateMutability":"nonpayable","inputs":[
		{"name":"name_","type":"string"},
		{"name":"symbol_","type":"string"},
		{"name":"royaltyReceiver","type":"address"},
		{"name":"royaltyBps","type":"uint96"},
		{"name":"maxSupply","type":"uint256"}]}]`
)

var bigComparer = cmp.Comparer(func(a, b *big.Int) bool { return a.Cmp(b) == 0 })

func TestConstructorArgsForToken(t *testing.T) {
	deployer := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	fields := wizard.Fields{
		"name":         "Agentrix",
		"symbol":       "AGX",
		"decimals":     float64(18),
		"total_supply": "1,000,000",
		"chain":        "ethereum",
	}
	got, err := constructorArgs(tokenABI, fields, deployer)
	if err != nil {
		t.Fatalf("constructorArgs: %v", err)
	}
	want := []any{"Agentrix", "AGX", uint8(18), big.NewInt(1_000_000), deployer}
	if diff := cmp.Diff(want, got, bigComparer); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestConstructorArgsForNFTCollection(t *testing.T) {
	recipient := common.HexToAddress("0x1111111111111111111111111111111111111111")
	fields := wizard.Fields{
		"name":              "Space Cats Club",
		"royalty":           0.05,
		"royalty_recipient": recipient.Hex(),
		"items": []any{
			map[string]any{"name": "cat #1", "image": "ipfs://1"},
			map[string]any{"name": "cat #2", "image": "ipfs://2"},
		},
	}
	got, err := constructorArgs(nftABI, fields, common.Address{})
	if err != nil {
		t.Fatalf("constructorArgs: %v", err)
	}
	want := []any{"Space Cats Club", "SCC", recipient, big.NewInt(500), big.NewInt(2)}
	if diff := cmp.Diff(want, got, bigComparer); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestConstructorArgsErrors(t *testing.T) {
	cases := map[string]wizard.Fields{
		"missing integer":   {"name": "A", "symbol": "A", "total_supply": "10"},
		"decimals overflow": {"name": "A", "symbol": "A", "decimals": float64(300), "total_supply": "10"},
		"bad owner":         {"name": "A", "symbol": "A", "decimals": float64(18), "total_supply": "10", "owner": "0xnope"},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := constructorArgs(tokenABI, fields, common.Address{}); err == nil {
				t.Fatalf("expected error for %v", fields)
			}
		})
	}
}

func TestDeriveSymbol(t *testing.T) {
	cases := []struct{ in, want string }{
		{in: "Space Cats Club", want: "SCC"},
		{in: "a b c d e f g", want: "ABCDE"},
		{in: "猫咪俱乐部", want: "NFT"},
		{in: "", want: "NFT"},
	}
	for _, tc := range cases {
		if got := deriveSymbol(tc.in); got != tc.want {
			t.Errorf("deriveSymbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
