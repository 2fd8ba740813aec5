package issuance

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gmath "github.com/ethereum/go-ethereum/common/math"

	"Agentrix-Chat/internal/wizard"
)

// royaltyDenominator 是 ERC-2981 默认的费率分母。
const royaltyDenominator = 10_000

// argAliases 把常见的构造参数名映射到向导字段名（均为归一化后的形式）。
var argAliases = map[string]string{
	"initialowner":        "owner",
	"initialsupply":       "totalsupply",
	"supply":              "totalsupply",
	"royaltyreceiver":     "royaltyrecipient",
	"royaltybps":          "royalty",
	"royaltyfeenumerator": "royalty",
	"feenumerator":        "royalty",
	"maxsupply":           "items",
}

// constructorArgs 按 ABI 构造函数的参数名从向导字段中取值并转换为 ABI 需要的 Go 类型。
func constructorArgs(abiJSON string, fields wizard.Fields, deployer common.Address) ([]any, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("解析 ABI 失败: %w", err)
	}

	byName := make(map[string]any, len(fields))
	for key, value := range fields {
		byName[normalizeName(key)] = value
	}

	args := make([]any, 0, len(parsed.Constructor.Inputs))
	for _, input := range parsed.Constructor.Inputs {
		name := normalizeName(input.Name)
		value, ok := byName[name]
		if !ok {
			if alias, found := argAliases[name]; found {
				value, ok = byName[alias]
			}
		}
		if !ok && name == "symbol" {
			value, ok = deriveSymbol(wizard.String(byName["name"])), true
		}
		converted, err := convertArg(input, name, value, ok, deployer)
		if err != nil {
			return nil, err
		}
		args = append(args, converted)
	}
	return args, nil
}

func convertArg(input abi.Argument, name string, value any, present bool, deployer common.Address) (any, error) {
	switch input.Type.T {
	case abi.StringTy:
		return wizard.String(value), nil
	case abi.BoolTy:
		b, _ := wizard.Bool(value)
		return b, nil
	case abi.AddressTy:
		raw := wizard.String(value)
		if raw == "" {
			return deployer, nil
		}
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("参数 %s 不是有效地址: %s", input.Name, raw)
		}
		return common.HexToAddress(raw), nil
	case abi.UintTy, abi.IntTy:
		if !present {
			return nil, fmt.Errorf("缺少构造参数 %s", input.Name)
		}
		n, err := integerValue(name, value)
		if err != nil {
			return nil, fmt.Errorf("参数 %s: %w", input.Name, err)
		}
		return sizedInteger(input.Type, n)
	default:
		return nil, fmt.Errorf("不支持的构造参数类型 %s (%s)", input.Type.String(), input.Name)
	}
}

func integerValue(name string, value any) (*big.Int, error) {
	if items, ok := value.([]any); ok {
		return big.NewInt(int64(len(items))), nil
	}
	if items, ok := value.([]map[string]any); ok {
		return big.NewInt(int64(len(items))), nil
	}
	if f, ok := wizard.Float(value); ok && f <= 1 && f >= 0 && (strings.Contains(name, "royalty") || strings.Contains(name, "numerator")) {
		return big.NewInt(int64(math.Round(f * royaltyDenominator))), nil
	}
	raw := strings.ReplaceAll(wizard.String(value), ",", "")
	if n, ok := gmath.ParseBig256(raw); ok {
		return n, nil
	}
	if f, ok := wizard.Float(value); ok && f == math.Trunc(f) {
		return big.NewInt(int64(f)), nil
	}
	return nil, fmt.Errorf("无法解析为整数: %v", value)
}

// sizedInteger 把大整数转换为 go-ethereum ABI 编码需要的定长类型。
func sizedInteger(t abi.Type, n *big.Int) (any, error) {
	switch t.Size {
	case 8, 16, 32, 64:
	default:
		return n, nil
	}
	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return nil, fmt.Errorf("数值 %s 超出 %s 范围", n, t.String())
		}
		v := n.Uint64()
		switch t.Size {
		case 8:
			return uint8(v), nil
		case 16:
			return uint16(v), nil
		case 32:
			return uint32(v), nil
		}
		return v, nil
	}
	if !n.IsInt64() || n.BitLen() >= t.Size {
		return nil, fmt.Errorf("数值 %s 超出 %s 范围", n, t.String())
	}
	v := n.Int64()
	switch t.Size {
	case 8:
		return int8(v), nil
	case 16:
		return int16(v), nil
	case 32:
		return int32(v), nil
	}
	return v, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

// deriveSymbol 取名称中各单词首字母作为符号，最多 5 位。
func deriveSymbol(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		r := []rune(word)[0]
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
		if b.Len() == 5 {
			break
		}
	}
	if b.Len() == 0 {
		return "NFT"
	}
	return b.String()
}
