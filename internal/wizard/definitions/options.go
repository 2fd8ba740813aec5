// Package definitions provides the token issuance and NFT collection wizards.
package definitions

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"Agentrix-Chat/internal/wizard"
)

// DefaultChains 是未配置链注册表时允许选择的链。
var DefaultChains = []string{"ethereum", "bsc", "polygon", "arbitrum", "base", "sepolia"}

type options struct {
	chains       []string
	defaultChain string
}

// Option 定义向导构造的可选配置。
type Option func(*options)

// WithChains 限定可选的链，通常来自链注册表。
func WithChains(chains ...string) Option {
	return func(o *options) {
		if len(chains) > 0 {
			o.chains = chains
		}
	}
}

// WithDefaultChain 设置默认链。
func WithDefaultChain(chain string) Option {
	return func(o *options) {
		if chain = strings.TrimSpace(chain); chain != "" {
			o.defaultChain = chain
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{chains: DefaultChains, defaultChain: "ethereum"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (o options) allowsChain(chain string) bool {
	chain = strings.ToLower(strings.TrimSpace(chain))
	for _, candidate := range o.chains {
		if strings.EqualFold(candidate, chain) {
			return true
		}
	}
	return false
}

// Catalog 构造包含代币发行与 NFT 集合两类向导的目录。
func Catalog(opts ...Option) (*wizard.Catalog, error) {
	return wizard.NewCatalog(Token(opts...), NFT(opts...))
}

// validAddress 判断可选的地址字段，空值视为合法。
func validAddress(fields wizard.Fields, key string) bool {
	if !fields.Has(key) {
		return true
	}
	return common.IsHexAddress(fields.String(key))
}

// parseDate 接受 2006-01-02 与 RFC3339 两种格式。
func parseDate(value string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
