package definitions

import (
	"testing"

	"Agentrix-Chat/internal/wizard"
)

func tokenAt(t *testing.T, step string, fields map[string]any) wizard.State {
	t.Helper()
	s := wizard.Start(Token())
	s, _ = s.SetFields(fields)
	for s.Step().Name != step {
		var outcome wizard.Outcome
		s, outcome = s.Advance()
		if outcome != wizard.OutcomeMoved {
			t.Fatalf("could not reach %s: %s %v", step, outcome, s.StepErrors)
		}
	}
	return s
}

var validBasics = map[string]any{
	FieldName:        "Agent Coin",
	FieldSymbol:      "AGC",
	FieldTotalSupply: "1000000",
}

func TestTokenBasicsValidation(t *testing.T) {
	s := wizard.Start(Token())
	s, _ = s.SetFields(map[string]any{
		FieldSymbol:      "WAYTOOLONGSYMBOL",
		FieldTotalSupply: "-5",
		FieldDecimals:    "19",
		FieldChain:       "solana",
		FieldOwner:       "0x123",
	})
	s, outcome := s.Advance()
	if outcome != wizard.OutcomeBlocked {
		t.Fatalf("expected blocked, got %s", outcome)
	}
	for _, key := range []string{FieldName, FieldSymbol, FieldTotalSupply, FieldDecimals, FieldChain, FieldOwner} {
		if _, ok := s.StepErrors[key]; !ok {
			t.Errorf("expected error for %s, got %v", key, s.StepErrors)
		}
	}

	s, _ = s.SetFields(validBasics)
	s, _ = s.SetFields(map[string]any{
		FieldDecimals: 18,
		FieldChain:    "ethereum",
		FieldOwner:    "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
	})
	if _, outcome := s.Advance(); outcome != wizard.OutcomeMoved {
		t.Fatalf("valid basics should advance")
	}
}

func TestTokenSupplyMustFitUint256(t *testing.T) {
	overflow := wizard.Fields{FieldTotalSupply: "0x10000000000000000000000000000000000000000000000000000000000000000"}
	if _, ok := TotalSupply(overflow); ok {
		t.Fatalf("supply above 2^256-1 must be rejected")
	}
	if v, ok := TotalSupply(wizard.Fields{FieldTotalSupply: "1,000,000"}); !ok || v.Int64() != 1000000 {
		t.Fatalf("comma separated supply should parse")
	}
}

func TestTokenDistributionMustSumTo100(t *testing.T) {
	s := tokenAt(t, "distribution", validBasics)

	bad, _ := s.SetFields(map[string]any{FieldTeam: 30, FieldInvestors: 30, FieldPublic: 20, FieldReserve: 10})
	bad, outcome := bad.Advance()
	if outcome != wizard.OutcomeBlocked {
		t.Fatalf("sum of 90 must be rejected")
	}
	if _, ok := bad.StepErrors[ErrDistribution]; !ok {
		t.Fatalf("expected distribution error, got %v", bad.StepErrors)
	}

	good, _ := bad.SetFields(map[string]any{FieldTeam: 25, FieldInvestors: 25, FieldPublic: 25, FieldReserve: 25})
	good, outcome = good.Advance()
	if outcome != wizard.OutcomeMoved || good.Step().Name != "sale" {
		t.Fatalf("sum of 100 should advance, got %s %v", outcome, good.StepErrors)
	}
}

func TestTokenDistributionOnlyRunsOnAdvance(t *testing.T) {
	s := tokenAt(t, "distribution", validBasics)
	s, _ = s.SetField(FieldTeam, 10)
	if len(s.StepErrors) != 0 {
		t.Fatalf("partially filled form must not show errors")
	}
}

func TestTokenPresaleIsConditional(t *testing.T) {
	fields := map[string]any{FieldTeam: 25, FieldInvestors: 25, FieldPublic: 25, FieldReserve: 25}
	for k, v := range validBasics {
		fields[k] = v
	}
	s := tokenAt(t, "sale", fields)

	skipped, outcome := s.Advance()
	if outcome != wizard.OutcomeMoved || skipped.Step().Name != "review" {
		t.Fatalf("presale step should be skipped, at %s", skipped.Step().Name)
	}

	withPresale, _ := s.SetField(FieldPresale, true)
	withPresale, _ = withPresale.Advance()
	if withPresale.Step().Name != "presale" {
		t.Fatalf("presale step should be active, at %s", withPresale.Step().Name)
	}

	blocked, edited := withPresale.SetFields(map[string]any{
		FieldPresalePrice: "0.01",
		FieldPresaleAmt:   "2000000",
		FieldPresaleStart: "2026-11-10",
		FieldPresaleEnd:   "2026-11-01",
	})
	blocked, adv := blocked.Advance()
	if !edited || adv != wizard.OutcomeBlocked {
		t.Fatalf("invalid presale should block")
	}
	for _, key := range []string{FieldPresaleAmt, FieldPresaleEnd} {
		if _, ok := blocked.StepErrors[key]; !ok {
			t.Errorf("expected error for %s, got %v", key, blocked.StepErrors)
		}
	}

	fixed, _ := blocked.SetFields(map[string]any{FieldPresaleAmt: "100000", FieldPresaleEnd: "2026-11-20"})
	fixed, adv = fixed.Advance()
	if adv != wizard.OutcomeMoved || fixed.Step().Name != "review" {
		t.Fatalf("valid presale should advance, got %s %v", adv, fixed.StepErrors)
	}
}

func TestNFTCollectionValidation(t *testing.T) {
	s := wizard.Start(NFT())
	if s.Fields.String(FieldStandard) != StandardERC721 {
		t.Fatalf("expected default standard")
	}
	s, _ = s.SetFields(map[string]any{FieldName: "Cats", FieldRoyalty: 1.5})
	s, outcome := s.Advance()
	if outcome != wizard.OutcomeBlocked || s.StepErrors[FieldRoyalty] == "" {
		t.Fatalf("royalty above 1 must be rejected: %v", s.StepErrors)
	}

	s, _ = s.SetField(FieldRoyalty, "0.1")
	s, outcome = s.Advance()
	if outcome != wizard.OutcomeMoved {
		t.Fatalf("valid collection should advance: %v", s.StepErrors)
	}

	s, outcome = s.Advance()
	if outcome != wizard.OutcomeBlocked || s.StepErrors[FieldItems] == "" {
		t.Fatalf("at least one item is required")
	}
	s, _ = s.SetField(FieldItems, []any{map[string]any{"name": "cat #1"}})
	s, _ = s.Advance()
	if s.StepErrors["items[0].image"] == "" {
		t.Fatalf("item image is required: %v", s.StepErrors)
	}
	s, _ = s.SetField(FieldItems, `[{"name":"cat #1","image":"ipfs://cat1"}]`)
	s, outcome = s.Advance()
	if outcome != wizard.OutcomeMoved {
		t.Fatalf("valid items should advance: %v", s.StepErrors)
	}

	s, _ = s.SetField(FieldAutoList, "yes")
	s, outcome = s.Advance()
	if outcome != wizard.OutcomeBlocked || s.StepErrors[FieldListPrice] == "" {
		t.Fatalf("auto list needs a price")
	}
	s, _ = s.SetField(FieldListPrice, 0.2)
	s, _ = s.Advance()
	if s.Step().Name != "review" {
		t.Fatalf("expected review step, at %s", s.Step().Name)
	}
	if _, outcome = s.Advance(); outcome != wizard.OutcomeSubmit {
		t.Fatalf("review should submit")
	}
}

func TestCatalogRegistersBothWizards(t *testing.T) {
	c, err := Catalog(WithChains("ethereum", "polygon"), WithDefaultChain("polygon"))
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	def, ok := c.Lookup(wizard.KindTokenIssuance)
	if !ok || def.Defaults[FieldChain] != "polygon" {
		t.Fatalf("token definition not configured: %+v", def)
	}
	if _, ok := c.Lookup(wizard.KindNFTCollection); !ok {
		t.Fatalf("nft definition missing")
	}
}
