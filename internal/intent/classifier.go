package intent

import (
	"fmt"

	xerrors "Agentrix-Chat/internal/errors"
)

// Classifier 按优先级规则表判定对话意图，是纯函数，不持有可变状态。
type Classifier struct {
	rules RuleTable
}

// NewClassifier 使用给定规则表构造分类器，规则表为空时使用内置规则。
func NewClassifier(rules RuleTable) *Classifier {
	if len(rules.Wizard) == 0 && len(rules.Generic) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Rules 返回分类器使用的规则表。
func (c *Classifier) Rules() RuleTable {
	return c.rules
}

// Classify 根据用户文本与可选的后端响应判定意图，任何输入都返回合法的意图。
//
// 评估顺序：向导关键字 → 后端 type 判别字段 → data.type → 数据形态 → 通用关键字 → unknown。
// 向导关键字最先评估，后端附带的商品列表不会遮蔽引导式交易。
func (c *Classifier) Classify(text string, resp *Response) Intent {
	normalized := normalizeText(text)
	var data map[string]any
	if resp != nil {
		data = resp.Data
	}

	result := Intent{Kind: KindUnknown, Source: SourceNone, Query: text, Data: data}

	if rule, keyword, ok := firstMatch(c.rules.Wizard, normalized); ok {
		result.Kind = rule.Kind
		result.Source = SourceRule
		result.Rule = fmt.Sprintf("%s:%s", rule.Name, keyword)
		return result
	}

	if resp != nil {
		if kind, ok := discriminate(resp.Type, data); ok {
			result.Kind = kind
			result.Source = SourceDiscriminator
			result.Rule = "type:" + normalizeText(resp.Type)
			return result
		}
		if nested, ok := data["type"].(string); ok {
			if kind, ok := discriminate(nested, data); ok {
				result.Kind = kind
				result.Source = SourceDiscriminator
				result.Rule = "data.type:" + normalizeText(nested)
				return result
			}
		}
		if kind, field, ok := shapeOf(data); ok {
			result.Kind = kind
			result.Source = SourceShape
			result.Rule = "shape:" + field
			return result
		}
	}

	if rule, keyword, ok := firstMatch(c.rules.Generic, normalized); ok {
		result.Kind = rule.Kind
		result.Source = SourceRule
		result.Rule = fmt.Sprintf("%s:%s", rule.Name, keyword)
		return result
	}
	return result
}

// Err 在意图未命中任何规则时返回 CLASSIFICATION_AMBIGUOUS，调用方据此降级处理。
func (i Intent) Err() error {
	if i.Kind != KindUnknown {
		return nil
	}
	return xerrors.New(xerrors.CodeClassificationAmbiguous, "",
		xerrors.WithMetadata("query", i.Query))
}

func firstMatch(rules []Rule, text string) (Rule, string, bool) {
	if text == "" {
		return Rule{}, "", false
	}
	for _, rule := range rules {
		if keyword, ok := rule.match(text); ok {
			return rule, keyword, true
		}
	}
	return Rule{}, "", false
}

// discriminate 解析后端判别字段。product 只有在明确是检索动作时才算商品搜索。
func discriminate(value string, data map[string]any) (Kind, bool) {
	value = normalizeText(value)
	if value == "" || value == string(KindUnknown) {
		return "", false
	}
	if value == "product" || value == "products" {
		if action, _ := data["action"].(string); normalizeText(action) == "search" {
			return KindProductSearch, true
		}
		if _, ok := asList(data["products"]); ok {
			return KindProductSearch, true
		}
		return "", false
	}
	return LookupDiscriminator(value)
}

// shapeOf 通过数据形态推断意图，按 cartItems、items、products、payment 的顺序检查。
func shapeOf(data map[string]any) (Kind, string, bool) {
	if len(data) == 0 {
		return "", "", false
	}
	if _, ok := asList(data["cartItems"]); ok {
		return KindCart, "cartItems", true
	}
	if _, ok := asList(data["items"]); ok {
		return KindCart, "items", true
	}
	if _, ok := asList(data["products"]); ok {
		return KindProductSearch, "products", true
	}
	if _, ok := data["payment"].(map[string]any); ok {
		return KindPayment, "payment", true
	}
	return "", "", false
}
