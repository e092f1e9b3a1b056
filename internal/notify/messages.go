package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/deskflow/itsm-approvals/internal/domain"
)

// Message is one notification rendered for every channel.
type Message struct {
	Subject string
	HTML    string
	Slack   string
}

var emailTemplate = template.Must(template.New("email").Parse(`<h2>{{.Subject}}</h2>
<p>{{.Body}}</p>
{{- if .Reason}}
<p>Rejection Reason: {{.Reason}}</p>
{{- end}}
<p>{{.Footer}}</p>
<p><a href="{{.Link}}">View ticket</a></p>
`))

type emailView struct {
	Subject string
	Body    string
	Reason  string
	Footer  string
	Link    string
}

func ticketLink(appURL string, ticket *domain.Ticket) string {
	return strings.TrimRight(appURL, "/") + "/tickets/" + ticket.ID
}

func render(view emailView) string {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return view.Body
	}
	return buf.String()
}

func slackSummary(heading string, ticket *domain.Ticket, lines []string, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", heading)
	fmt.Fprintf(&b, "*Title:* %s\n", ticket.Title)
	fmt.Fprintf(&b, "*Type:* %s\n", ticket.Type)
	fmt.Fprintf(&b, "*Priority:* %s\n", ticket.Priority)
	fmt.Fprintf(&b, "*Status:* %s\n", ticket.Status)
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n<%s|View Ticket>", link)
	return b.String()
}

// ApprovalMessage announces an approval at level.
func ApprovalMessage(appURL string, ticket *domain.Ticket, approver string, level domain.ApprovalLevel, comments string) Message {
	subject := fmt.Sprintf("Ticket #%s approved at level %d", ticket.ID, level)
	link := ticketLink(appURL, ticket)
	return Message{
		Subject: subject,
		HTML: render(emailView{
			Subject: subject,
			Body:    fmt.Sprintf("Your ticket %q was approved by %s. Comments: %s", ticket.Title, approver, comments),
			Footer:  "Please log in to the ITSM portal to review the ticket.",
			Link:    link,
		}),
		Slack: slackSummary(fmt.Sprintf("Ticket Approved - Level %d", level), ticket, []string{
			"*Approved By:* " + approver,
			"*Comments:* " + comments,
		}, link),
	}
}

// RejectionMessage announces a rejection.
func RejectionMessage(appURL string, ticket *domain.Ticket, approver, reason, comments string) Message {
	subject := fmt.Sprintf("Ticket #%s rejected", ticket.ID)
	link := ticketLink(appURL, ticket)
	return Message{
		Subject: subject,
		HTML: render(emailView{
			Subject: subject,
			Body:    fmt.Sprintf("Your ticket %q was rejected by %s. Comments: %s", ticket.Title, approver, comments),
			Reason:  reason,
			Footer:  "Please contact your IT department for further assistance.",
			Link:    link,
		}),
		Slack: slackSummary("Ticket Rejected", ticket, []string{
			"*Rejected By:* " + approver,
			"*Rejection Reason:* " + reason,
		}, link),
	}
}

// ReminderMessage nudges an approver about a waiting ticket.
func ReminderMessage(appURL string, ticket *domain.Ticket) Message {
	subject := fmt.Sprintf("Reminder: Pending Approval for Ticket #%s", ticket.ID)
	link := ticketLink(appURL, ticket)
	return Message{
		Subject: subject,
		HTML: render(emailView{
			Subject: subject,
			Body:    fmt.Sprintf("This is a reminder that you have a pending approval for the ticket titled %q.", ticket.Title),
			Footer:  "Please log in to the ITSM portal to review the ticket.",
			Link:    link,
		}),
		Slack: slackSummary(fmt.Sprintf("Approval Reminder - Level %d", ticket.ApprovalLevel), ticket, nil, link),
	}
}

// EscalationMessage tells the new approver a ticket was handed to them.
func EscalationMessage(appURL string, ticket *domain.Ticket, newApprover string) Message {
	subject := fmt.Sprintf("Escalated Approval: Ticket #%s", ticket.ID)
	link := ticketLink(appURL, ticket)
	return Message{
		Subject: subject,
		HTML: render(emailView{
			Subject: subject,
			Body:    fmt.Sprintf("This approval has been escalated to you due to timeout. Please review ticket titled %q.", ticket.Title),
			Footer:  "Please log in to the ITSM portal to review the ticket.",
			Link:    link,
		}),
		Slack: slackSummary(fmt.Sprintf("Approval Escalated - Level %d", ticket.ApprovalLevel), ticket, []string{
			"*Escalated To:* " + newApprover,
		}, link),
	}
}
