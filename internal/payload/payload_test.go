package payload

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/intent"
	"Agentrix-Chat/internal/wizard"
)

func in(kind intent.Kind) intent.Intent {
	return intent.Intent{Kind: kind}
}

func TestNormalizeCartFallsBackToItems(t *testing.T) {
	items := []any{
		map[string]any{"sku": "a", "qty": 1.0},
		map[string]any{"sku": "b", "qty": 2.0},
	}
	p, err := Normalize(in(intent.KindCart), map[string]any{"items": items})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []map[string]any{
		{"sku": "a", "qty": 1.0},
		{"sku": "b", "qty": 2.0},
	}
	if diff := cmp.Diff(want, p.Cart.Items); diff != "" {
		t.Fatalf("cart items mismatch (-want +got):\n%s", diff)
	}

	preferred, _ := Normalize(in(intent.KindCart), map[string]any{
		"cartItems": []any{map[string]any{"sku": "c"}},
		"items":     items,
	})
	if len(preferred.Cart.Items) != 1 {
		t.Fatalf("cartItems should take precedence over items")
	}
}

func TestNormalizeMissingCartIsEmptyNotError(t *testing.T) {
	p, err := Normalize(in(intent.KindCart), nil)
	if err != nil {
		t.Fatalf("missing cart list must not fail: %v", err)
	}
	if p.Cart.Items == nil || len(p.Cart.Items) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", p.Cart.Items)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"type":"cart","data":{"items":[]}}` {
		t.Fatalf("unexpected json %s", raw)
	}
}

func TestNormalizeProductTotalDefaultsToLength(t *testing.T) {
	products := []any{map[string]any{"id": "p1"}, map[string]any{"id": "p2"}, map[string]any{"id": "p3"}}
	p, err := Normalize(intent.Intent{Kind: intent.KindProductSearch, Query: "shoes"}, map[string]any{"products": products})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if p.ProductSearch.Total != 3 || p.ProductSearch.Query != "shoes" {
		t.Fatalf("unexpected product search: %+v", p.ProductSearch)
	}

	counted, _ := Normalize(in(intent.KindProductSearch), map[string]any{"results": products, "count": 120.0})
	if counted.ProductSearch.Total != 120 || len(counted.ProductSearch.Products) != 3 {
		t.Fatalf("explicit count should be kept: %+v", counted.ProductSearch)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	order, _ := Normalize(in(intent.KindOrder), map[string]any{"order_id": 42.0})
	if diff := cmp.Diff(&Order{OrderID: "42", Step: 1}, order.Order); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	code, _ := Normalize(in(intent.KindCode), map[string]any{"source": "console.log(1)"})
	if diff := cmp.Diff(&Code{Source: "console.log(1)", Language: "TypeScript"}, code.Code); diff != "" {
		t.Fatalf("code mismatch (-want +got):\n%s", diff)
	}

	pay, _ := Normalize(in(intent.KindPayment), map[string]any{
		"payment": map[string]any{"id": "pay_1", "price": "9.5"},
	})
	if diff := cmp.Diff(&Payment{PaymentID: "pay_1", Amount: 9.5, Currency: "USDC"}, pay.Payment); diff != "" {
		t.Fatalf("payment mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeUndeterminableTypeBecomesErrorPayload(t *testing.T) {
	_, err := Normalize(in(intent.KindUnknown), map[string]any{"foo": "bar"})
	if xerrors.CodeOf(err) != xerrors.CodeNormalization {
		t.Fatalf("expected normalization error, got %v", err)
	}

	p := NormalizeOrError(in(intent.KindUnknown), map[string]any{"foo": "bar"})
	if p.Type != TypeError || p.Error == nil || p.Error.Code != string(xerrors.CodeNormalization) {
		t.Fatalf("expected error payload, got %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("error payload must be valid: %v", err)
	}

	nested := NormalizeOrError(in(intent.KindUnknown), map[string]any{"type": "view_cart", "cartItems": []any{}})
	if nested.Type != TypeCart {
		t.Fatalf("nested type should resolve the tag, got %s", nested.Type)
	}
}

func TestValidateRejectsMismatchedVariants(t *testing.T) {
	mismatch := Payload{Type: TypeCart, Order: &Order{OrderID: "1"}}
	if err := mismatch.Validate(); err == nil {
		t.Fatalf("expected tag mismatch error")
	}
	double := Payload{Type: TypeCart, Cart: &Cart{}, Order: &Order{}}
	if err := double.Validate(); err == nil {
		t.Fatalf("expected multiple variants error")
	}
	if _, err := json.Marshal(Payload{Type: TypeCode}); err == nil {
		t.Fatalf("empty payload must not marshal")
	}
}

func TestPayloadJSONDecodesByTag(t *testing.T) {
	var p Payload
	if err := json.Unmarshal([]byte(`{"type":"payment","data":{"paymentId":"x","amount":3,"currency":"USDT"}}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Payment == nil || p.Payment.Currency != "USDT" || p.Validate() != nil {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if err := json.Unmarshal([]byte(`{"type":"hologram","data":{}}`), &p); err == nil {
		t.Fatalf("unknown type must fail to decode")
	}
}

func TestFromWizard(t *testing.T) {
	view := wizard.View{Kind: wizard.KindTokenIssuance, StepIndex: 2, Fields: map[string]any{"name": "AGC"}}
	p := FromWizard(view)
	if p.Type != TypeGuidedWizard || p.GuidedWizard.Step != 2 || p.GuidedWizard.WizardKind != wizard.KindTokenIssuance {
		t.Fatalf("unexpected wizard payload: %+v", p.GuidedWizard)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("wizard payload invalid: %v", err)
	}
}
