package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"Agentrix-Chat/sdk/go/agentrix"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	codeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	wizardBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

var statusStyles = map[string]lipgloss.Style{
	"pending":     lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
	"running":     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	"in_progress": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	"submitting":  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	"succeeded":   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	"failed":      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	"cancelled":   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
}

func renderStatus(status string) string {
	if style, ok := statusStyles[status]; ok {
		return style.Render(status)
	}
	return status
}

func renderMessage(msg agentrix.Message) string {
	var b strings.Builder
	switch msg.Role {
	case "user":
		b.WriteString(userStyle.Render("you"))
	case "assistant":
		b.WriteString(assistantStyle.Render("agentrix"))
	default:
		b.WriteString(hintStyle.Render(msg.Role))
	}
	b.WriteString(" ")
	b.WriteString(hintStyle.Render(msg.Timestamp.Local().Format("15:04:05")))
	if msg.Content != "" {
		b.WriteString("\n")
		b.WriteString(msg.Content)
	}
	if extra := renderPayload(msg.Payload); extra != "" {
		b.WriteString("\n")
		b.WriteString(extra)
	}
	return b.String()
}

// renderPayload renders the parts of a structured payload that the message
// text does not already cover. Guided wizard payloads are shown through the
// live wizard panel instead.
func renderPayload(p *agentrix.Payload) string {
	if p == nil {
		return ""
	}
	switch p.Type {
	case agentrix.PayloadCode:
		var code agentrix.CodePayload
		if err := p.Decode(&code); err != nil || code.Source == "" {
			return ""
		}
		return hintStyle.Render(code.Language) + "\n" + codeStyle.Render(code.Source)
	case agentrix.PayloadProductSearch:
		var search agentrix.ProductSearchPayload
		if err := p.Decode(&search); err != nil {
			return ""
		}
		lines := make([]string, 0, len(search.Products)+1)
		lines = append(lines, titleStyle.Render(fmt.Sprintf("%d result(s) for %q", search.Total, search.Query)))
		for _, product := range search.Products {
			lines = append(lines, fmt.Sprintf("  • %v  %v %v", product["name"], product["price"], product["currency"]))
		}
		return strings.Join(lines, "\n")
	case agentrix.PayloadPayment:
		var payment agentrix.PaymentPayload
		if err := p.Decode(&payment); err != nil {
			return ""
		}
		return titleStyle.Render("payment") + fmt.Sprintf(" %s %.2f %s", payment.PaymentID, payment.Amount, payment.Currency)
	case agentrix.PayloadError:
		var failure agentrix.ErrorPayload
		if err := p.Decode(&failure); err != nil {
			return ""
		}
		if failure.Code != "" {
			return errorStyle.Render(failure.Code + ": " + failure.Message)
		}
		return errorStyle.Render(failure.Message)
	default:
		return ""
	}
}

func renderWizard(w *agentrix.Wizard) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(w.Title))
	b.WriteString(" ")
	b.WriteString(renderStatus(w.Status))
	if w.Position > 0 {
		fmt.Fprintf(&b, "\nstep %d/%d: %s", w.Position, len(w.ActiveSteps), w.StepTitle)
	}
	for _, name := range w.StepFields {
		value, ok := w.Fields[name]
		display := hintStyle.Render("(empty)")
		if ok {
			display = fmt.Sprint(value)
		}
		fmt.Fprintf(&b, "\n  %s = %s", name, display)
	}
	if len(w.Errors) > 0 {
		keys := make([]string, 0, len(w.Errors))
		for key := range w.Errors {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render("  ! " + key + ": " + w.Errors[key]))
		}
	}
	if w.FailureReason != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("failed: " + w.FailureReason))
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("use /retry to try again or /cancel to give up"))
	}
	return wizardBoxStyle.Render(b.String())
}

func renderAPIError(err *agentrix.APIError) string {
	if err.Code != "" {
		return errorStyle.Render(err.Code) + " " + err.Message
	}
	return errorStyle.Render(err.Message)
}

func renderSubmissions(out io.Writer, subs []agentrix.Submission) error {
	if len(subs) == 0 {
		_, err := fmt.Fprintln(out, headerStyle.Render("No submissions found"))
		return err
	}
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Found %d submission(s)", len(subs))))

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, strings.Join([]string{
		titleStyle.Render("ID"), titleStyle.Render("Wizard"), titleStyle.Render("Status"),
		titleStyle.Render("Attempts"), titleStyle.Render("Updated"), titleStyle.Render("Detail"),
	}, "\t"))
	for _, sub := range subs {
		fmt.Fprintln(w, strings.Join([]string{
			idStyle.Render(sub.ID),
			sub.WizardKind,
			renderStatus(sub.Status),
			fmt.Sprintf("%d/%d", sub.Attempts, sub.MaxRetries),
			formatUnix(sub.UpdatedAt),
			submissionDetail(sub),
		}, "\t"))
	}
	return w.Flush()
}

func renderSubmission(sub agentrix.Submission) string {
	rows := [][2]string{
		{"id", idStyle.Render(sub.ID)},
		{"wizard", sub.WizardKind},
		{"session", sub.SessionID},
		{"status", renderStatus(sub.Status)},
		{"attempts", fmt.Sprintf("%d/%d", sub.Attempts, sub.MaxRetries)},
		{"created", formatUnix(sub.CreatedAt)},
		{"updated", formatUnix(sub.UpdatedAt)},
	}
	if sub.LastError != "" {
		rows = append(rows, [2]string{"error", errorStyle.Render(strings.TrimSpace(sub.ErrorCode + " " + sub.LastError))})
	}
	if r := sub.Result; r != nil {
		rows = append(rows,
			[2]string{"contract", r.ContractAddress},
			[2]string{"tx", r.TxHash},
			[2]string{"chain", r.ChainID},
			[2]string{"block", r.BlockNumber},
		)
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%-9s %s", titleStyle.Render(row[0]), row[1]))
	}
	return strings.Join(lines, "\n")
}

func renderStats(stats agentrix.SubmissionStats) string {
	return fmt.Sprintf("%s  %s %d  %s %d  %s %d  %s %d",
		headerStyle.Render(fmt.Sprintf("%d submission(s)", stats.Total)),
		renderStatus("pending"), stats.Pending,
		renderStatus("running"), stats.Running,
		renderStatus("succeeded"), stats.Succeeded,
		renderStatus("failed"), stats.Failed,
	)
}

func submissionDetail(sub agentrix.Submission) string {
	switch {
	case sub.Result != nil && sub.Result.ContractAddress != "":
		return sub.Result.ContractAddress
	case sub.LastError != "":
		msg := sub.LastError
		if len(msg) > 48 {
			msg = msg[:45] + "..."
		}
		return errorStyle.Render(msg)
	default:
		return ""
	}
}

func formatUnix(sec int64) string {
	if sec <= 0 {
		return "-"
	}
	return time.Unix(sec, 0).Local().Format("2006-01-02 15:04:05")
}
