package conversation

import (
	"fmt"
	"sort"
	"strings"

	"Agentrix-Chat/internal/wizard"
)

// 以下函数生成向导相关的回复文本，结构化数据由 guided_wizard 载荷承载。

func stepPrompt(view wizard.View) string {
	text := fmt.Sprintf("第 %d/%d 步：%s", view.Position, len(view.ActiveSteps), view.StepTitle)
	if len(view.StepFields) > 0 {
		text += fmt.Sprintf("\n请填写：%s（格式 key=value，每行一项），填写完成后回复“确认”继续。", strings.Join(view.StepFields, ", "))
	} else {
		text += "\n请确认以上信息，回复“确认”提交，或回复“上一步”修改。"
	}
	return text
}

func startedText(view wizard.View) string {
	return fmt.Sprintf("好的，我们开始%s。\n%s", view.Title, stepPrompt(view))
}

func blockedText(view wizard.View) string {
	keys := make([]string, 0, len(view.Errors))
	for key := range view.Errors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("请修正以下问题：")
	for _, key := range keys {
		b.WriteString(fmt.Sprintf("\n- %s: %s", key, view.Errors[key]))
	}
	return b.String()
}

func succeededText(view wizard.View) string {
	summary := ""
	if view.Result != nil {
		summary = strings.TrimSpace(view.Result.Summary)
		if summary == "" && view.Result.Reference != "" {
			summary = "参考编号 " + view.Result.Reference
		}
	}
	if summary == "" {
		return fmt.Sprintf("%s已提交成功。", view.Title)
	}
	return fmt.Sprintf("%s已提交成功：%s", view.Title, summary)
}

func failedText(view wizard.View) string {
	return fmt.Sprintf("%s提交失败：%s\n已保留全部填写内容，回复“重试”返回最后一步，或回复“确认”再次提交。",
		view.Title, view.FailureReason)
}

func cancelledText(title string) string {
	return fmt.Sprintf("已取消%s，填写的内容已丢弃。", title)
}

func retriedText(view wizard.View) string {
	return "已返回最后一步，内容均已保留。\n" + stepPrompt(view)
}

func ignoredText(view wizard.View) string {
	if view.Status == wizard.StatusSubmitting {
		return "正在提交，请稍候。"
	}
	return "当前步骤无法执行该操作。\n" + stepPrompt(view)
}

func editedText(view wizard.View) string {
	return "已更新填写内容。\n" + stepPrompt(view)
}
