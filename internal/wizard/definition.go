package wizard

import (
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Kind 标识向导类别。
type Kind string

const (
	KindTokenIssuance Kind = "token_issuance"
	KindNFTCollection Kind = "nft_collection"
)

// Step 描述向导中的一步。Validate 只在 Advance 时执行，返回字段名到错误信息的映射。
// Optional 步骤在 Condition 返回 false 时被跳过，前进与后退都会直接穿过。
type Step struct {
	Name      string
	Title     string
	Fields    []string
	Validate  func(Fields) map[string]string
	Optional  bool
	Condition func(Fields) bool
}

// Active 判断该步骤在当前字段下是否需要展示。
func (s Step) Active(fields Fields) bool {
	if !s.Optional || s.Condition == nil {
		return true
	}
	return s.Condition(fields)
}

func (s Step) check(fields Fields) map[string]string {
	if s.Validate == nil {
		return nil
	}
	errs := s.Validate(fields)
	if len(errs) == 0 {
		return nil
	}
	return maps.Clone(errs)
}

// Definition 是一类向导的完整定义，构造后不再修改。
type Definition struct {
	Kind     Kind
	Title    string
	Steps    []Step
	Defaults map[string]any
}

// Check 校验定义本身是否合法：步骤非空、名称唯一、首尾步骤不可选。
func (d *Definition) Check() error {
	if d == nil {
		return fmt.Errorf("向导定义为空")
	}
	if d.Kind == "" {
		return fmt.Errorf("向导定义缺少类别")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("向导 %s 没有步骤", d.Kind)
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for _, step := range d.Steps {
		if step.Name == "" {
			return fmt.Errorf("向导 %s 存在未命名步骤", d.Kind)
		}
		if _, ok := seen[step.Name]; ok {
			return fmt.Errorf("向导 %s 步骤 %s 重复", d.Kind, step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	if d.Steps[0].Optional || d.Steps[len(d.Steps)-1].Optional {
		return fmt.Errorf("向导 %s 的首尾步骤不能是可选步骤", d.Kind)
	}
	return nil
}

// StepCount 返回步骤总数。
func (d *Definition) StepCount() int {
	return len(d.Steps)
}

func (d *Definition) lastIndex() int {
	return len(d.Steps) - 1
}

// next 返回 from 之后第一个激活的步骤，不存在时返回 -1。
func (d *Definition) next(from int, fields Fields) int {
	for i := from + 1; i < len(d.Steps); i++ {
		if d.Steps[i].Active(fields) {
			return i
		}
	}
	return -1
}

// prev 返回 from 之前第一个激活的步骤，不存在时返回 -1。
func (d *Definition) prev(from int, fields Fields) int {
	for i := from - 1; i >= 0; i-- {
		if d.Steps[i].Active(fields) {
			return i
		}
	}
	return -1
}

// ActiveSteps 返回当前字段下需要展示的步骤名称。
func (d *Definition) ActiveSteps(fields Fields) []string {
	names := make([]string, 0, len(d.Steps))
	for _, step := range d.Steps {
		if step.Active(fields) {
			names = append(names, step.Name)
		}
	}
	return names
}

// Catalog 按类别登记向导定义。
type Catalog struct {
	defs map[Kind]*Definition
}

// NewCatalog 构造向导目录，定义非法或类别重复时返回错误。
func NewCatalog(defs ...*Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[Kind]*Definition, len(defs))}
	for _, def := range defs {
		if err := def.Check(); err != nil {
			return nil, err
		}
		if _, ok := c.defs[def.Kind]; ok {
			return nil, fmt.Errorf("向导 %s 重复登记", def.Kind)
		}
		c.defs[def.Kind] = def
	}
	return c, nil
}

// Lookup 按类别查找定义。
func (c *Catalog) Lookup(kind Kind) (*Definition, bool) {
	if c == nil {
		return nil, false
	}
	def, ok := c.defs[kind]
	return def, ok
}

// Kinds 返回已登记的类别，按字典序排列。
func (c *Catalog) Kinds() []Kind {
	if c == nil {
		return nil
	}
	kinds := slices.Collect(maps.Keys(c.defs))
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
