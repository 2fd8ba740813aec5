// Package payload defines the structured payload tagged union attached to
// assistant messages and the normalizer that reshapes backend data into it.
package payload

import (
	"encoding/json"
	"fmt"

	"Agentrix-Chat/internal/wizard"
)

// Type 是结构化载荷的判别标签。
type Type string

const (
	TypeProductSearch Type = "product_search"
	TypeCart          Type = "cart"
	TypeOrder         Type = "order"
	TypeCode          Type = "code"
	TypeGuidedWizard  Type = "guided_wizard"
	TypePayment       Type = "payment"
	TypeError         Type = "error"
)

// ProductSearch 是商品搜索结果，Total 缺省时等于商品数量。
type ProductSearch struct {
	Products []map[string]any `json:"products"`
	Query    string           `json:"query"`
	Total    int              `json:"total"`
}

// Cart 是购物车内容，空购物车是合法状态。
type Cart struct {
	Items []map[string]any `json:"items"`
}

// Order 是订单进度。
type Order struct {
	OrderID string `json:"orderId"`
	Step    int    `json:"step"`
}

// Code 是生成的代码片段。
type Code struct {
	Source   string `json:"source"`
	Language string `json:"language"`
}

// GuidedWizard 是向导的渲染数据。
type GuidedWizard struct {
	WizardKind wizard.Kind    `json:"wizardKind"`
	Step       int            `json:"step"`
	Fields     map[string]any `json:"fields"`
	View       *wizard.View   `json:"view,omitempty"`
}

// Payment 是支付选择的契约数据，不涉及结算。
type Payment struct {
	PaymentID string  `json:"paymentId"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

// Error 是可展示的错误载荷。
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Payload 是带判别标签的联合体，恰好一个变体被填充且与 Type 一致。
type Payload struct {
	Type          Type
	ProductSearch *ProductSearch
	Cart          *Cart
	Order         *Order
	Code          *Code
	GuidedWizard  *GuidedWizard
	Payment       *Payment
	Error         *Error
}

func NewProductSearch(v ProductSearch) Payload {
	if v.Products == nil {
		v.Products = []map[string]any{}
	}
	return Payload{Type: TypeProductSearch, ProductSearch: &v}
}

func NewCart(v Cart) Payload {
	if v.Items == nil {
		v.Items = []map[string]any{}
	}
	return Payload{Type: TypeCart, Cart: &v}
}

func NewOrder(v Order) Payload { return Payload{Type: TypeOrder, Order: &v} }

func NewCode(v Code) Payload { return Payload{Type: TypeCode, Code: &v} }

func NewGuidedWizard(v GuidedWizard) Payload { return Payload{Type: TypeGuidedWizard, GuidedWizard: &v} }

func NewPayment(v Payment) Payload { return Payload{Type: TypePayment, Payment: &v} }

func NewError(message, code string) Payload {
	return Payload{Type: TypeError, Error: &Error{Message: message, Code: code}}
}

// FromWizard 根据向导视图生成载荷。
func FromWizard(view wizard.View) Payload {
	return NewGuidedWizard(GuidedWizard{
		WizardKind: view.Kind,
		Step:       view.StepIndex,
		Fields:     view.Fields,
		View:       &view,
	})
}

// Clone 返回深拷贝，副本与原载荷不共享任何可变数据。
func (p Payload) Clone() Payload {
	out := Payload{Type: p.Type}
	if p.ProductSearch != nil {
		v := *p.ProductSearch
		v.Products = cloneRecords(v.Products)
		out.ProductSearch = &v
	}
	if p.Cart != nil {
		v := *p.Cart
		v.Items = cloneRecords(v.Items)
		out.Cart = &v
	}
	if p.Order != nil {
		v := *p.Order
		out.Order = &v
	}
	if p.Code != nil {
		v := *p.Code
		out.Code = &v
	}
	if p.GuidedWizard != nil {
		v := *p.GuidedWizard
		v.Fields = wizard.CloneMap(v.Fields)
		if v.View != nil {
			view := v.View.Clone()
			v.View = &view
		}
		out.GuidedWizard = &v
	}
	if p.Payment != nil {
		v := *p.Payment
		out.Payment = &v
	}
	if p.Error != nil {
		v := *p.Error
		out.Error = &v
	}
	return out
}

func cloneRecords(records []map[string]any) []map[string]any {
	if records == nil {
		return nil
	}
	out := make([]map[string]any, len(records))
	for i, record := range records {
		out[i] = wizard.CloneMap(record)
	}
	return out
}

// variant 返回 Type 对应的变体以及已填充变体的数量。
func (p Payload) variant() (any, int) {
	var (
		selected any
		count    int
	)
	check := func(t Type, populated bool, v any) {
		if !populated {
			return
		}
		count++
		if p.Type == t {
			selected = v
		}
	}
	check(TypeProductSearch, p.ProductSearch != nil, p.ProductSearch)
	check(TypeCart, p.Cart != nil, p.Cart)
	check(TypeOrder, p.Order != nil, p.Order)
	check(TypeCode, p.Code != nil, p.Code)
	check(TypeGuidedWizard, p.GuidedWizard != nil, p.GuidedWizard)
	check(TypePayment, p.Payment != nil, p.Payment)
	check(TypeError, p.Error != nil, p.Error)
	return selected, count
}

// Validate 检查恰好一个变体被填充，且与判别标签一致。
func (p Payload) Validate() error {
	selected, count := p.variant()
	switch {
	case count == 0:
		return fmt.Errorf("载荷 %q 没有填充任何变体", p.Type)
	case count > 1:
		return fmt.Errorf("载荷 %q 填充了 %d 个变体", p.Type, count)
	case selected == nil:
		return fmt.Errorf("载荷标签 %q 与填充的变体不一致", p.Type)
	}
	return nil
}

type envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON 编码为 {"type": ..., "data": {...}}。
func (p Payload) MarshalJSON() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	selected, _ := p.variant()
	data, err := json.Marshal(selected)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: p.Type, Data: data})
}

// UnmarshalJSON 按判别标签解码对应变体。
func (p *Payload) UnmarshalJSON(raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	out := Payload{Type: env.Type}
	var target any
	switch env.Type {
	case TypeProductSearch:
		out.ProductSearch = &ProductSearch{}
		target = out.ProductSearch
	case TypeCart:
		out.Cart = &Cart{}
		target = out.Cart
	case TypeOrder:
		out.Order = &Order{}
		target = out.Order
	case TypeCode:
		out.Code = &Code{}
		target = out.Code
	case TypeGuidedWizard:
		out.GuidedWizard = &GuidedWizard{}
		target = out.GuidedWizard
	case TypePayment:
		out.Payment = &Payment{}
		target = out.Payment
	case TypeError:
		out.Error = &Error{}
		target = out.Error
	default:
		return fmt.Errorf("未知的载荷类型 %q", env.Type)
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("解析 %s 载荷失败: %w", env.Type, err)
		}
	}
	*p = out
	return nil
}
