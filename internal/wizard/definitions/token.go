package definitions

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	gmath "github.com/ethereum/go-ethereum/common/math"

	"Agentrix-Chat/internal/wizard"
)

// 代币发行向导的字段名。
const (
	FieldName         = "name"
	FieldSymbol       = "symbol"
	FieldTotalSupply  = "total_supply"
	FieldDecimals     = "decimals"
	FieldChain        = "chain"
	FieldOwner        = "owner"
	FieldTeam         = "team"
	FieldInvestors    = "investors"
	FieldPublic       = "public"
	FieldReserve      = "reserve"
	FieldPresale      = "presale"
	FieldPublicSale   = "public_sale"
	FieldLockupMonths = "lockup_months"
	FieldPresalePrice = "presale_price"
	FieldPresaleAmt   = "presale_amount"
	FieldPresaleStart = "presale_start"
	FieldPresaleEnd   = "presale_end"

	// ErrDistribution 是分配比例跨字段错误使用的键。
	ErrDistribution = "distribution"
)

const maxSymbolLength = 10

var distributionFields = []string{FieldTeam, FieldInvestors, FieldPublic, FieldReserve}

// Token 返回代币发行向导：基本信息、分配、销售方式、预售（可选）、确认。
func Token(opts ...Option) *wizard.Definition {
	o := buildOptions(opts)
	return &wizard.Definition{
		Kind:  wizard.KindTokenIssuance,
		Title: "发行代币",
		Steps: []wizard.Step{
			{
				Name:     "basics",
				Title:    "基本信息",
				Fields:   []string{FieldName, FieldSymbol, FieldTotalSupply, FieldDecimals, FieldChain, FieldOwner},
				Validate: o.validateBasics,
			},
			{
				Name:     "distribution",
				Title:    "代币分配",
				Fields:   distributionFields,
				Validate: validateDistribution,
			},
			{
				Name:     "sale",
				Title:    "销售方式",
				Fields:   []string{FieldPresale, FieldPublicSale, FieldLockupMonths},
				Validate: validateSale,
			},
			{
				Name:      "presale",
				Title:     "预售设置",
				Fields:    []string{FieldPresalePrice, FieldPresaleAmt, FieldPresaleStart, FieldPresaleEnd},
				Optional:  true,
				Condition: func(f wizard.Fields) bool { return f.Bool(FieldPresale) },
				Validate:  validatePresale,
			},
			{
				Name:  "review",
				Title: "确认发行",
			},
		},
		Defaults: map[string]any{
			FieldDecimals: 18,
			FieldChain:    o.defaultChain,
		},
	}
}

func (o options) validateBasics(f wizard.Fields) map[string]string {
	errs := map[string]string{}
	if !f.Has(FieldName) {
		errs[FieldName] = "请输入代币名称"
	}
	symbol := f.String(FieldSymbol)
	switch {
	case symbol == "":
		errs[FieldSymbol] = "请输入代币符号"
	case len([]rune(symbol)) > maxSymbolLength:
		errs[FieldSymbol] = fmt.Sprintf("代币符号不能超过%d个字符", maxSymbolLength)
	}
	if _, ok := TotalSupply(f); !ok {
		errs[FieldTotalSupply] = "请输入有效的总供应量"
	}
	if f.Has(FieldDecimals) {
		if d, ok := f.Int(FieldDecimals); !ok || d < 0 || d > 18 {
			errs[FieldDecimals] = "精度必须是 0 到 18 之间的整数"
		}
	}
	if !o.allowsChain(f.String(FieldChain)) {
		errs[FieldChain] = fmt.Sprintf("不支持的链，可选: %s", strings.Join(o.chains, ", "))
	}
	if !validAddress(f, FieldOwner) {
		errs[FieldOwner] = "请输入有效的钱包地址"
	}
	return errs
}

// TotalSupply 解析总供应量，必须是正的 uint256 整数。
func TotalSupply(f wizard.Fields) (*big.Int, bool) {
	raw := strings.ReplaceAll(f.String(FieldTotalSupply), ",", "")
	if raw == "" {
		return nil, false
	}
	supply, ok := gmath.ParseBig256(raw)
	if !ok || supply.Sign() <= 0 {
		return nil, false
	}
	return supply, true
}

// validateDistribution 只在填写了任一分配比例时要求总和为 100。
func validateDistribution(f wizard.Fields) map[string]string {
	errs := map[string]string{}
	var (
		total float64
		set   bool
	)
	for _, key := range distributionFields {
		if !f.Has(key) {
			continue
		}
		set = true
		v, ok := f.Float(key)
		if !ok || v < 0 || v > 100 {
			errs[key] = "比例必须是 0 到 100 之间的数字"
			continue
		}
		total += v
	}
	if len(errs) > 0 || !set {
		return errs
	}
	if math.Abs(total-100) > 1e-9 {
		errs[ErrDistribution] = "分配比例总和必须等于100%"
	}
	return errs
}

func validateSale(f wizard.Fields) map[string]string {
	errs := map[string]string{}
	for _, key := range []string{FieldPresale, FieldPublicSale} {
		if !f.Has(key) {
			continue
		}
		if _, ok := wizard.Bool(f[key]); !ok {
			errs[key] = "请选择是或否"
		}
	}
	if f.Has(FieldLockupMonths) {
		if m, ok := f.Int(FieldLockupMonths); !ok || m < 0 {
			errs[FieldLockupMonths] = "锁仓月数必须是非负整数"
		}
	}
	return errs
}

func validatePresale(f wizard.Fields) map[string]string {
	errs := map[string]string{}
	if price, ok := f.Float(FieldPresalePrice); !ok || price <= 0 {
		errs[FieldPresalePrice] = "请输入有效的预售价格"
	}
	amount, ok := f.Float(FieldPresaleAmt)
	switch {
	case !ok || amount <= 0:
		errs[FieldPresaleAmt] = "请输入有效的预售数量"
	default:
		if supply, ok := TotalSupply(f); ok {
			limit, _ := new(big.Float).SetInt(supply).Float64()
			if amount > limit {
				errs[FieldPresaleAmt] = "预售数量不能超过总供应量"
			}
		}
	}
	start, startOK := parseDate(f.String(FieldPresaleStart))
	if !startOK {
		errs[FieldPresaleStart] = "请输入开始日期 (YYYY-MM-DD)"
	}
	end, endOK := parseDate(f.String(FieldPresaleEnd))
	if !endOK {
		errs[FieldPresaleEnd] = "请输入结束日期 (YYYY-MM-DD)"
	}
	if startOK && endOK && !end.After(start) {
		errs[FieldPresaleEnd] = "结束日期必须晚于开始日期"
	}
	return errs
}
