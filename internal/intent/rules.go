package intent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule 是规则表中的一条关键字规则，命中任一关键字即判定为 Kind。
type Rule struct {
	Name     string   `yaml:"name"`
	Kind     Kind     `yaml:"kind"`
	Keywords []string `yaml:"keywords"`
}

// match 返回命中的关键字，text 需已小写化。
func (r Rule) match(text string) (string, bool) {
	for _, keyword := range r.Keywords {
		keyword = normalizeText(keyword)
		if keyword == "" {
			continue
		}
		if strings.Contains(text, keyword) {
			return keyword, true
		}
	}
	return "", false
}

// RuleTable 是按优先级排列的规则表。
// Wizard 组在所有其他信号之前评估，Generic 组在后端判别字段与数据形态之后评估。
type RuleTable struct {
	Wizard  []Rule `yaml:"wizard"`
	Generic []Rule `yaml:"generic"`
}

// Validate 检查规则表是否自洽。
func (t RuleTable) Validate() error {
	for _, rule := range t.Wizard {
		if !rule.Kind.IsWizard() {
			return fmt.Errorf("向导规则 %s 的意图 %s 不是向导意图", rule.Name, rule.Kind)
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("规则 %s 没有关键字", rule.Name)
		}
	}
	for _, rule := range t.Generic {
		if !rule.Kind.Valid() || rule.Kind == KindUnknown {
			return fmt.Errorf("规则 %s 使用了不支持的意图 %q", rule.Name, rule.Kind)
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("规则 %s 没有关键字", rule.Name)
		}
	}
	return nil
}

// DefaultRules 返回内置的中英文关键字规则表。
func DefaultRules() RuleTable {
	return RuleTable{
		Wizard: []Rule{
			{Name: "token_launch", Kind: KindTokenIssuance, Keywords: []string{
				"发行代币", "发币", "代币发行", "token launch", "create token", "launch token", "issue token",
			}},
			{Name: "nft_collection", Kind: KindNFTCollection, Keywords: []string{
				"发行nft", "发nft", "创建nft", "铸造nft", "create nft", "mint nft", "nft collection", "launch nft",
			}},
		},
		Generic: []Rule{
			{Name: "cart", Kind: KindCart, Keywords: []string{"购物车", "cart"}},
			{Name: "order", Kind: KindOrder, Keywords: []string{"查询订单", "订单状态", "我的订单", "order status", "track order"}},
			{Name: "payment", Kind: KindPayment, Keywords: []string{"付款", "支付", "结算", "checkout", "pay for", "pay now"}},
			{Name: "code", Kind: KindCode, Keywords: []string{"生成代码", "写代码", "示例代码", "generate code", "code sample", "sdk"}},
			{Name: "product_search", Kind: KindProductSearch, Keywords: []string{"搜索", "查找", "推荐", "买", "search", "find", "buy", "recommend"}},
		},
	}
}

// LoadRules 从 YAML 文件加载规则表，path 为空时返回内置规则。
func LoadRules(path string) (RuleTable, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return RuleTable{}, fmt.Errorf("读取意图规则失败: %w", err)
	}
	var table RuleTable
	if err := yaml.Unmarshal(content, &table); err != nil {
		return RuleTable{}, fmt.Errorf("解析意图规则失败: %w", err)
	}
	if len(table.Wizard) == 0 && len(table.Generic) == 0 {
		return RuleTable{}, fmt.Errorf("意图规则文件 %s 为空", path)
	}
	if err := table.Validate(); err != nil {
		return RuleTable{}, err
	}
	return table, nil
}

// discriminators 把执行后端使用过的 type 取值映射到意图。
var discriminators = map[string]Kind{
	"product_search": KindProductSearch,
	"search":         KindProductSearch,
	"view_cart":      KindCart,
	"cart":           KindCart,
	"order":          KindOrder,
	"query_order":    KindOrder,
	"code":           KindCode,
	"payment":        KindPayment,
	"pay_order":      KindPayment,
	"token":          KindTokenIssuance,
	"token_launch":   KindTokenIssuance,
	"token_issuance": KindTokenIssuance,
	"nft":            KindNFTCollection,
	"nft_collection": KindNFTCollection,
	"error":          KindError,
}

// LookupDiscriminator 返回后端 type 字段对应的意图，unknown 与空值不算已知判别字段。
func LookupDiscriminator(value string) (Kind, bool) {
	kind, ok := discriminators[normalizeText(value)]
	return kind, ok
}
