// Package catalog provides the product catalog used by the local execution
// collaborator and by the product search fallback.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider 定义商品检索的通用接口。
type Provider interface {
	Search(query string, limit int) []Product
}

// Product 描述目录中的一件商品。
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency,omitempty"`
	Image       string   `json:"image,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Map 转换为执行后端响应中使用的通用结构。
func (p Product) Map() map[string]any {
	m := map[string]any{
		"id":    p.ID,
		"name":  p.Name,
		"price": p.Price,
	}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if p.Currency != "" {
		m["currency"] = p.Currency
	}
	if p.Image != "" {
		m["image"] = p.Image
	}
	return m
}

// StaticProvider 通过加载 JSON 文件提供静态商品检索能力。
type StaticProvider struct {
	items      []Product
	maxResults int
}

// NewStaticProvider 创建静态商品目录。
func NewStaticProvider(items []Product, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &StaticProvider{
		items:      items,
		maxResults: maxResults,
	}
}

// LoadStaticProvider 从 JSON 文件加载商品条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("商品目录文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析商品目录路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取商品目录文件失败: %w", err)
	}
	defer file.Close()

	var entries []Product
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析商品目录文件失败: %w", err)
	}

	return NewStaticProvider(entries, maxResults), nil
}

// Len 返回目录中的商品数量。
func (p *StaticProvider) Len() int {
	if p == nil {
		return 0
	}
	return len(p.items)
}

// Search 按名称、关键字与标签做子串匹配，limit <= 0 时使用默认上限。
func (p *StaticProvider) Search(query string, limit int) []Product {
	if p == nil {
		return nil
	}
	if limit <= 0 || limit > p.maxResults {
		limit = p.maxResults
	}

	query = strings.ToLower(strings.TrimSpace(query))
	results := make([]Product, 0, limit)
	for _, item := range p.items {
		if matches(item, query) {
			results = append(results, item)
			if len(results) >= limit {
				break
			}
		}
	}
	return results
}

func matches(item Product, query string) bool {
	if query == "" {
		return true
	}
	if contains(query, item.Name) {
		return true
	}
	for _, keyword := range item.Keywords {
		if contains(query, keyword) {
			return true
		}
	}
	for _, tag := range item.Tags {
		if contains(query, tag) {
			return true
		}
	}
	return false
}

// contains 判断查询与候选词是否互相包含，兼容 “帮我找跑鞋” 与 “跑鞋” 两种方向。
func contains(query, candidate string) bool {
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	if candidate == "" {
		return false
	}
	return strings.Contains(query, candidate) || strings.Contains(candidate, query)
}

// Ensure StaticProvider 实现 Provider 接口。
var _ Provider = (*StaticProvider)(nil)
