package payload

import (
	"maps"
	"strings"

	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/intent"
	"Agentrix-Chat/internal/wizard"
)

// 每个规范字段的候选字段名，按顺序取第一个存在的值。
var (
	productKeys   = []string{"products", "items", "results"}
	queryKeys     = []string{"query", "q", "keyword"}
	totalKeys     = []string{"total", "count"}
	cartKeys      = []string{"cartItems", "items"}
	orderIDKeys   = []string{"orderId", "order_id", "id"}
	orderStepKeys = []string{"step", "currentStep"}
	codeKeys      = []string{"code", "source"}
	languageKeys  = []string{"language", "lang"}
	paymentIDKeys = []string{"paymentId", "payment_id", "id"}
	amountKeys    = []string{"amount", "total", "price"}
	currencyKeys  = []string{"currency"}
	messageKeys   = []string{"message", "error"}
)

const (
	defaultLanguage = "TypeScript"
	defaultCurrency = "USDC"
	defaultStep     = 1
)

func lookup(raw map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		if value, ok := raw[key]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

func lookupString(raw map[string]any, keys []string) string {
	value, _ := lookup(raw, keys)
	return wizard.String(value)
}

func lookupList(raw map[string]any, keys []string) ([]map[string]any, bool) {
	for _, key := range keys {
		switch raw[key].(type) {
		case []any, []map[string]any:
			return wizard.Items(raw[key]), true
		}
	}
	return nil, false
}

func lookupInt(raw map[string]any, keys []string) (int, bool) {
	for _, key := range keys {
		if v, ok := wizard.Int(raw[key]); ok {
			return int(v), true
		}
	}
	return 0, false
}

func lookupFloat(raw map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		if v, ok := wizard.Float(raw[key]); ok {
			return v, true
		}
	}
	return 0, false
}

// typeOf 把意图映射为载荷标签；unknown 意图尝试读取数据自带的 type 字段。
func typeOf(in intent.Intent, raw map[string]any) (Type, intent.Kind, bool) {
	kind := in.Kind
	if kind == intent.KindUnknown {
		nested, _ := raw["type"].(string)
		resolved, ok := intent.LookupDiscriminator(nested)
		if !ok {
			return "", kind, false
		}
		kind = resolved
	}
	switch kind {
	case intent.KindProductSearch:
		return TypeProductSearch, kind, true
	case intent.KindCart:
		return TypeCart, kind, true
	case intent.KindOrder:
		return TypeOrder, kind, true
	case intent.KindCode:
		return TypeCode, kind, true
	case intent.KindPayment:
		return TypePayment, kind, true
	case intent.KindTokenIssuance, intent.KindNFTCollection:
		return TypeGuidedWizard, kind, true
	case intent.KindError:
		return TypeError, kind, true
	default:
		return "", kind, false
	}
}

// Normalize 把后端数据整形为规范载荷。只有判别标签无法确定时才返回 NORMALIZATION_FAILED，
// 字段缺失一律使用回退值。
func Normalize(in intent.Intent, raw map[string]any) (Payload, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	typ, kind, ok := typeOf(in, raw)
	if !ok {
		return Payload{}, xerrors.New(xerrors.CodeNormalization, "",
			xerrors.WithMetadata("intent", string(in.Kind)))
	}

	switch typ {
	case TypeProductSearch:
		products, _ := lookupList(raw, productKeys)
		total, ok := lookupInt(raw, totalKeys)
		if !ok {
			total = len(products)
		}
		query := lookupString(raw, queryKeys)
		if query == "" {
			query = strings.TrimSpace(in.Query)
		}
		return NewProductSearch(ProductSearch{Products: products, Query: query, Total: total}), nil

	case TypeCart:
		items, _ := lookupList(raw, cartKeys)
		return NewCart(Cart{Items: items}), nil

	case TypeOrder:
		step, ok := lookupInt(raw, orderStepKeys)
		if !ok || step < 1 {
			step = defaultStep
		}
		return NewOrder(Order{OrderID: lookupString(raw, orderIDKeys), Step: step}), nil

	case TypeCode:
		language := lookupString(raw, languageKeys)
		if language == "" {
			language = defaultLanguage
		}
		return NewCode(Code{Source: lookupString(raw, codeKeys), Language: language}), nil

	case TypePayment:
		source := raw
		if nested, ok := raw["payment"].(map[string]any); ok {
			source = maps.Clone(raw)
			maps.Copy(source, nested)
		}
		amount, _ := lookupFloat(source, amountKeys)
		currency := strings.ToUpper(lookupString(source, currencyKeys))
		if currency == "" {
			currency = defaultCurrency
		}
		return NewPayment(Payment{
			PaymentID: lookupString(source, paymentIDKeys),
			Amount:    amount,
			Currency:  currency,
		}), nil

	case TypeGuidedWizard:
		step, _ := lookupInt(raw, []string{"step"})
		fields := map[string]any{}
		if nested, ok := raw["fields"].(map[string]any); ok {
			fields = maps.Clone(nested)
		}
		return NewGuidedWizard(GuidedWizard{
			WizardKind: wizard.Kind(kind.WizardKind()),
			Step:       step,
			Fields:     fields,
		}), nil

	default:
		message := lookupString(raw, messageKeys)
		if message == "" {
			message = xerrors.AttributesOf(xerrors.CodeExecutorFailure).Message
		}
		return NewError(message, lookupString(raw, []string{"code"})), nil
	}
}

// NormalizeOrError 与 Normalize 相同，但把失败转换为 error 载荷，调用方总能得到可渲染的结果。
func NormalizeOrError(in intent.Intent, raw map[string]any) Payload {
	p, err := Normalize(in, raw)
	if err != nil {
		return NewError(xerrors.MessageOf(err), string(xerrors.CodeOf(err)))
	}
	return p
}
