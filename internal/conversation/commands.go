package conversation

import (
	"strings"
	"unicode"
)

// wizardOp 是作用于进行中向导的操作。
type wizardOp string

const (
	opAdvance wizardOp = "advance"
	opRetreat wizardOp = "retreat"
	opCancel  wizardOp = "cancel"
	opRetry   wizardOp = "retry"
	opEdit    wizardOp = "edit"
)

var commandWords = map[string]wizardOp{
	"next":     opAdvance,
	"confirm":  opAdvance,
	"ok":       opAdvance,
	"确认":       opAdvance,
	"下一步":      opAdvance,
	"继续":       opAdvance,
	"提交":       opAdvance,
	"back":     opRetreat,
	"previous": opRetreat,
	"prev":     opRetreat,
	"上一步":      opRetreat,
	"返回":       opRetreat,
	"cancel":   opCancel,
	"取消":       opCancel,
	"退出":       opCancel,
	"retry":    opRetry,
	"重试":       opRetry,
}

// parseCommand 解析向导进行中的一轮输入：key=value 或 key: value 行设置字段，
// 独立的指令词决定操作。只有字段没有指令词时只修改字段，不触发校验；
// 既无字段也无指令词时视为前进。
func parseCommand(text string) (wizardOp, map[string]any) {
	var (
		op     wizardOp
		fields map[string]any
	)
	for _, segment := range splitSegments(text) {
		if key, value, ok := splitField(segment); ok {
			if fields == nil {
				fields = make(map[string]any)
			}
			if value == "" {
				fields[key] = nil
			} else {
				fields[key] = value
			}
			continue
		}
		word := strings.ToLower(strings.Trim(segment, " \t.!。！"))
		if matched, ok := commandWords[word]; ok {
			op = matched
		}
	}
	if op == "" {
		op = opAdvance
		if len(fields) > 0 {
			op = opEdit
		}
	}
	return op, fields
}

func splitSegments(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == ';' || r == '；'
	})
	out := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// splitField 在第一个 =、: 或 ： 处切分，键必须是标识符。
func splitField(segment string) (string, string, bool) {
	idx, width := -1, 0
	for i, r := range segment {
		if r == '=' || r == ':' || r == '：' {
			idx, width = i, len(string(r))
			break
		}
	}
	if idx <= 0 {
		return "", "", false
	}
	key := strings.TrimSpace(segment[:idx])
	if !isIdentifier(key) {
		return "", "", false
	}
	return strings.ToLower(key), strings.TrimSpace(segment[idx+width:]), true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || (r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}
