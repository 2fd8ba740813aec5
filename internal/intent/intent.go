// Package intent classifies a conversational turn into a typed intent using
// the user's text and, when present, the execution backend's response.
package intent

import "strings"

// Kind 是对话轮次的意图类别。
type Kind string

const (
	KindProductSearch Kind = "product_search"
	KindCart          Kind = "cart"
	KindOrder         Kind = "order"
	KindCode          Kind = "code"
	KindPayment       Kind = "payment"
	KindTokenIssuance Kind = "token_issuance"
	KindNFTCollection Kind = "nft_collection"
	KindError         Kind = "error"
	KindUnknown       Kind = "unknown"
)

// IsWizard 判断该意图是否会启动引导式交易向导。
func (k Kind) IsWizard() bool {
	return k == KindTokenIssuance || k == KindNFTCollection
}

// WizardKind 返回向导意图对应的向导类别，非向导意图返回空串。
func (k Kind) WizardKind() string {
	if !k.IsWizard() {
		return ""
	}
	return string(k)
}

// Valid 判断意图类别是否受支持。
func (k Kind) Valid() bool {
	switch k {
	case KindProductSearch, KindCart, KindOrder, KindCode, KindPayment,
		KindTokenIssuance, KindNFTCollection, KindError, KindUnknown:
		return true
	default:
		return false
	}
}

// Source 记录意图是由哪一层规则判定的。
type Source string

const (
	SourceRule          Source = "rule"
	SourceDiscriminator Source = "discriminator"
	SourceShape         Source = "shape"
	SourceNone          Source = "none"
)

// Response 是执行后端返回的结构，Type 为判别字段。
type Response struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Response  string         `json:"response"`
	SessionID string         `json:"sessionId,omitempty"`
}

// Intent 是分类结果：意图类别、判定依据以及随附的原始数据。
type Intent struct {
	Kind   Kind           `json:"kind"`
	Source Source         `json:"source"`
	Rule   string         `json:"rule,omitempty"`
	Query  string         `json:"query,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Unknown 判断是否没有任何规则命中。
func (i Intent) Unknown() bool {
	return i.Kind == KindUnknown
}

// NeedsFallbackSearch 判断商品搜索意图是否缺少商品数据，需要二次检索。
func (i Intent) NeedsFallbackSearch() bool {
	if i.Kind != KindProductSearch {
		return false
	}
	products, ok := asList(i.Data["products"])
	return !ok || len(products) == 0
}

// asList 识别后端可能返回的两种数组形态。
func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []map[string]any:
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = item
		}
		return out, true
	default:
		return nil, false
	}
}

func normalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
