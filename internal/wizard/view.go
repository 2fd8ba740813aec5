package wizard

import (
	"maps"
	"slices"
)

// View 是供渲染层只读使用的向导视图。
type View struct {
	ID            string            `json:"id"`
	Kind          Kind              `json:"kind"`
	Title         string            `json:"title"`
	Status        Status            `json:"status"`
	StepIndex     int               `json:"stepIndex"`
	StepName      string            `json:"stepName"`
	StepTitle     string            `json:"stepTitle"`
	StepFields    []string          `json:"stepFields,omitempty"`
	StepCount     int               `json:"stepCount"`
	Position      int               `json:"position"`
	ActiveSteps   []string          `json:"activeSteps"`
	Fields        map[string]any    `json:"fields"`
	Errors        map[string]string `json:"errors,omitempty"`
	Result        *Result           `json:"result,omitempty"`
	FailureReason string            `json:"failureReason,omitempty"`
	Attempts      int               `json:"attempts"`
}

// View 生成当前状态的只读视图。Position 是当前步骤在激活步骤中的序号，从 1 开始。
func (s State) View() View {
	if s.def == nil {
		return View{ID: s.ID, Kind: s.Kind, Status: s.Status}
	}
	step := s.Step()
	active := s.def.ActiveSteps(s.Fields)
	position := 0
	for i, name := range active {
		if name == step.Name {
			position = i + 1
			break
		}
	}
	return View{
		ID:            s.ID,
		Kind:          s.Kind,
		Title:         s.def.Title,
		Status:        s.Status,
		StepIndex:     s.StepIndex,
		StepName:      step.Name,
		StepTitle:     step.Title,
		StepFields:    slices.Clone(step.Fields),
		StepCount:     s.def.StepCount(),
		Position:      position,
		ActiveSteps:   active,
		Fields:        CloneMap(s.Fields),
		Errors:        maps.Clone(s.StepErrors),
		Result:        s.Result.clone(),
		FailureReason: s.FailureReason,
		Attempts:      s.Attempts,
	}
}

// Clone 返回不与原视图共享任何 map 或切片的副本。
func (v View) Clone() View {
	v.StepFields = slices.Clone(v.StepFields)
	v.ActiveSteps = slices.Clone(v.ActiveSteps)
	v.Fields = CloneMap(v.Fields)
	v.Errors = maps.Clone(v.Errors)
	v.Result = v.Result.clone()
	return v
}
