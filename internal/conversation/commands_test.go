package conversation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		op     wizardOp
		fields map[string]any
	}{
		{name: "plain confirm", text: "确认", op: opAdvance},
		{name: "free text advances", text: "好的", op: opAdvance},
		{name: "next", text: "Next", op: opAdvance},
		{name: "retreat chinese", text: "上一步", op: opRetreat},
		{name: "retreat english", text: "Back!", op: opRetreat},
		{name: "cancel", text: "取消", op: opCancel},
		{name: "retry", text: "retry", op: opRetry},
		{
			name:   "fields only edit",
			text:   "name=Agentrix\nsymbol: AGX",
			op:     opEdit,
			fields: map[string]any{"name": "Agentrix", "symbol": "AGX"},
		},
		{
			name:   "fields then confirm",
			text:   "name=Agentrix\n确认",
			op:     opAdvance,
			fields: map[string]any{"name": "Agentrix"},
		},
		{
			name:   "fields with full width separators",
			text:   "Total_Supply：1000000；decimals=8",
			op:     opEdit,
			fields: map[string]any{"total_supply": "1000000", "decimals": "8"},
		},
		{
			name:   "empty value clears",
			text:   "presale_price=",
			op:     opEdit,
			fields: map[string]any{"presale_price": nil},
		},
		{
			name:   "field plus command",
			text:   "name=Foo; 上一步",
			op:     opRetreat,
			fields: map[string]any{"name": "Foo"},
		},
		{name: "non identifier key is text", text: "代币名称: Foo", op: opAdvance},
		{name: "value may contain separators", text: "website=https://example.com", op: opEdit,
			fields: map[string]any{"website": "https://example.com"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			op, fields := parseCommand(tc.text)
			if op != tc.op {
				t.Fatalf("op = %s, want %s", op, tc.op)
			}
			if diff := cmp.Diff(tc.fields, fields); diff != "" {
				t.Fatalf("fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
