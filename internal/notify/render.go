package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/shineum/quote-intake/internal/email"
	"github.com/shineum/quote-intake/internal/submission"
)

// Placeholders used in the operator message for optional fields.
const (
	placeholderNotProvided  = "Not provided"
	placeholderNotSpecified = "Not specified"
	placeholderNone         = "None"
	placeholderNoFile       = "No file attached"
)

const (
	brandAccent     = "#D98B4C"
	brandBackground = "#FAF7F2"
	brandInk        = "#2B2B2B"
)

// Branding carries the studio details printed in outgoing messages.
type Branding struct {
	Name      string
	Signature string
}

// OperatorSubject is the subject line of the operator notice.
func OperatorSubject(rec submission.Record) string {
	return "New Quote Request from " + rec.Name()
}

// CustomerSubject is the fixed subject line of the acknowledgment.
func CustomerSubject(brand Branding) string {
	if brand.Name == "" {
		return "Quote Request Received"
	}
	return "Quote Request Received - " + brand.Name
}

// RenderOperator builds the operator notice. Every field is listed and
// missing optional values are shown as placeholders. The uploaded file, if
// any, is attached to this message only.
func RenderOperator(rec submission.Record, from, operator string) *email.Email {
	var b strings.Builder
	b.WriteString("<h2>New Quote Request</h2>\n")
	operatorRow(&b, "Name", rec.Name(), "")
	operatorRow(&b, "Email", rec.Email(), "")
	operatorRow(&b, "Phone", rec.Phone(), placeholderNotProvided)
	operatorRow(&b, "Project Description", rec.Description(), "")
	operatorRow(&b, "Preferred Scale/Size", rec.Scale(), placeholderNotSpecified)
	operatorRow(&b, "Material", rec.Material(), "")
	operatorRow(&b, "Finishing", rec.Finishing(), "")
	operatorRow(&b, "Timeline/Deadline", rec.Timeline(), placeholderNotSpecified)
	operatorRow(&b, "Additional Notes", rec.Notes(), placeholderNone)

	msg := &email.Email{
		From:    from,
		To:      []string{operator},
		ReplyTo: rec.Email(),
		Subject: OperatorSubject(rec),
	}

	if att, ok := rec.Attachment(); ok {
		operatorRow(&b, "3D File", att.Filename, "")
		msg.Attachments = []email.Attachment{{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Content:     att.Data,
		}}
	} else {
		operatorRow(&b, "3D File", "", placeholderNoFile)
	}

	msg.HtmlBody = b.String()
	return msg
}

func operatorRow(b *strings.Builder, label, value, placeholder string) {
	if value == "" {
		value = placeholder
	}
	fmt.Fprintf(b, "<p><strong>%s:</strong> %s</p>\n", label, html.EscapeString(value))
}

// RenderCustomer builds the acknowledgment sent to the submitter. The summary
// repeats only what the customer supplied: optional fields that were left
// blank are omitted rather than shown as placeholders. The 3D File row is
// always present, as on the operator notice.
func RenderCustomer(rec submission.Record, from string, brand Branding) *email.Email {
	var summary strings.Builder
	customerRow(&summary, "Project Description", rec.Description())
	customerRow(&summary, "Preferred Scale/Size", rec.Scale())
	customerRow(&summary, "Material", rec.Material())
	customerRow(&summary, "Surface Finishing", rec.Finishing())
	customerRow(&summary, "Timeline", rec.Timeline())
	customerRow(&summary, "Additional Notes", rec.Notes())
	if att, ok := rec.Attachment(); ok {
		customerRow(&summary, "3D File", att.Filename)
	} else {
		customerRow(&summary, "3D File", placeholderNoFile)
	}

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
`)
	fmt.Fprintf(&b, `<body style="margin:0; padding:0; font-family:-apple-system, BlinkMacSystemFont, 'Segoe UI', Arial, sans-serif; background-color:%s; color:%s;">
<table width="100%%" cellpadding="0" cellspacing="0" style="background-color:%s; padding:40px 20px;">
<tr><td align="center">
<table width="100%%" cellpadding="0" cellspacing="0" style="max-width:600px; background-color:#ffffff; border-radius:12px; overflow:hidden;">
`, brandBackground, brandInk, brandBackground)

	fmt.Fprintf(&b, `<tr><td style="background:%s; padding:32px 40px; text-align:center;"><h1 style="margin:0; color:#ffffff; font-size:28px; font-weight:600;">Quote Request Received</h1></td></tr>
`, brandAccent)

	b.WriteString(`<tr><td style="padding:40px;">` + "\n")
	fmt.Fprintf(&b, `<p style="margin:0 0 20px 0; font-size:17px; line-height:1.6;">Hi <strong>%s</strong>,</p>
`, html.EscapeString(rec.Name()))
	b.WriteString(`<p style="margin:0 0 20px 0; font-size:16px; line-height:1.6; color:#4a4a4a;">Thank you for your inquiry. We've received your project details and will review them carefully.</p>
`)
	fmt.Fprintf(&b, `<div style="background:#f8f6f3; border-left:4px solid %s; padding:20px; margin:24px 0; border-radius:4px;">
<p style="margin:0 0 8px 0; font-size:15px; font-weight:600;">What's Next?</p>
<p style="margin:0; font-size:15px; line-height:1.6; color:#4a4a4a;">You can expect a detailed quote within <strong>1-2 business days</strong>, including pricing, timeline, and material recommendations.</p>
</div>
`, brandAccent)
	fmt.Fprintf(&b, `<h2 style="margin:32px 0 16px 0; font-size:20px; font-weight:600; border-bottom:2px solid %s; padding-bottom:8px;">Your Submission Summary</h2>
`, brandAccent)
	b.WriteString(`<table width="100%" cellpadding="8" cellspacing="0" style="font-size:15px; line-height:1.6;">` + "\n")
	b.WriteString(summary.String())
	b.WriteString("</table>\n")
	b.WriteString(`<p style="margin:32px 0 0 0; font-size:15px; line-height:1.6; color:#4a4a4a;">If you have any questions in the meantime, feel free to reply to this email.</p>
</td></tr>
`)

	b.WriteString(`<tr><td style="background:#f8f6f3; padding:32px 40px; border-top:1px solid #e0ddd8;">` + "\n")
	b.WriteString(`<p style="margin:0 0 4px 0; font-size:15px; font-weight:600;">Best regards,</p>` + "\n")
	if brand.Signature != "" {
		fmt.Fprintf(&b, `<p style="margin:0 0 2px 0; font-size:15px; font-weight:600; color:%s;">%s</p>
`, brandAccent, html.EscapeString(brand.Signature))
	}
	if brand.Name != "" {
		fmt.Fprintf(&b, `<p style="margin:0; font-size:14px; color:#666;">%s</p>
`, html.EscapeString(brand.Name))
	}
	b.WriteString("</td></tr>\n</table>\n")
	if brand.Name != "" {
		fmt.Fprintf(&b, `<p style="margin:24px 0 0 0; font-size:13px; color:#999; text-align:center;">&copy; %s. All rights reserved.</p>
`, html.EscapeString(brand.Name))
	}
	b.WriteString("</td></tr>\n</table>\n</body>\n</html>\n")

	return &email.Email{
		From:     from,
		To:       []string{rec.Email()},
		Subject:  CustomerSubject(brand),
		HtmlBody: b.String(),
	}
}

func customerRow(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, `<tr><td style="padding:8px 0; color:#666; vertical-align:top; width:180px;"><strong>%s:</strong></td><td style="padding:8px 0;">%s</td></tr>
`, label, html.EscapeString(value))
}
