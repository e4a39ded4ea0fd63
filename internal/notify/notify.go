// Package notify delivers run outcomes: failures to an SNS topic watched by
// the platform team, successes by email to the requesting team.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/edvin/accountfactory/internal/model"
)

// SNSAPI is the subset of the SNS client used by the failure notifier.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SESAPI is the subset of the SESv2 client used by the mailer.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Failure describes a failed run for the notification payload.
type Failure struct {
	AccountName string    `json:"account_name"`
	ExecutionID string    `json:"execution_id"`
	Step        string    `json:"step"`
	Error       string    `json:"error"`
	FailedAt    time.Time `json:"failed_at"`
}

// FailureNotifier publishes run failures to an SNS topic.
type FailureNotifier struct {
	sns      SNSAPI
	topicArn string
}

// NewFailureNotifier creates a FailureNotifier for the given topic.
func NewFailureNotifier(api SNSAPI, topicArn string) *FailureNotifier {
	return &FailureNotifier{sns: api, topicArn: topicArn}
}

// Publish sends the failure to the topic. The subject names the account so
// on-call can triage from the notification list alone.
func (n *FailureNotifier) Publish(ctx context.Context, failure Failure) error {
	payload, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("marshal failure notification: %w", err)
	}
	_, err = n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String(fmt.Sprintf("Account provisioning failed: %s", failure.AccountName)),
		Message:  aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("publish failure notification: %w", err)
	}
	return nil
}

// MailOptions tune the completion email.
type MailOptions struct {
	CC          []string
	BCC         []string
	SSOLoginURL string
}

// Mailer sends completion emails over SESv2.
type Mailer struct {
	ses    SESAPI
	sender string
	opts   MailOptions
}

// NewMailer creates a Mailer sending from the given address.
func NewMailer(api SESAPI, sender string, opts MailOptions) *Mailer {
	return &Mailer{ses: api, sender: sender, opts: opts}
}

// SendCompletion emails the support DL that the account is ready, with the
// validation outcome per check.
func (m *Mailer) SendCompletion(ctx context.Context, recipient string, output model.RunOutput) error {
	subject := fmt.Sprintf("Account %s is ready", output.Account.Name)
	text := completionText(output, m.opts.SSOLoginURL)
	html := completionHTML(output, m.opts.SSOLoginURL)

	_, err := m.ses.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.sender),
		Destination: &sestypes.Destination{
			ToAddresses:  []string{recipient},
			CcAddresses:  m.opts.CC,
			BccAddresses: m.opts.BCC,
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subject)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(text)},
					Html: &sestypes.Content{Data: aws.String(html)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send completion email: %w", err)
	}
	return nil
}

func completionText(output model.RunOutput, loginURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Account %s (%s) has been provisioned.\n\n", output.Account.Name, output.Account.AccountID)
	fmt.Fprintf(&b, "Validation: %s\n", output.ValidationStatus)
	for _, result := range output.ValidationResults {
		fmt.Fprintf(&b, "  %s: %s", result.Check, result.Status)
		if result.Message != "" {
			fmt.Fprintf(&b, " (%s)", result.Message)
		}
		b.WriteString("\n")
	}
	if len(output.GroupAssignments) > 0 {
		b.WriteString("\nAccess granted to:\n")
		for _, group := range output.GroupAssignments {
			fmt.Fprintf(&b, "  %s\n", group)
		}
	}
	if loginURL != "" {
		fmt.Fprintf(&b, "\nSign in: %s\n", loginURL)
	}
	return b.String()
}

func completionHTML(output model.RunOutput, loginURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Account %s is ready</h2>", output.Account.Name)
	fmt.Fprintf(&b, "<p>Account ID: <code>%s</code></p>", output.Account.AccountID)
	fmt.Fprintf(&b, "<p>Validation: <strong>%s</strong></p><ul>", output.ValidationStatus)
	for _, result := range output.ValidationResults {
		fmt.Fprintf(&b, "<li>%s: %s</li>", result.Check, result.Status)
	}
	b.WriteString("</ul>")
	if len(output.GroupAssignments) > 0 {
		b.WriteString("<p>Access granted to:</p><ul>")
		for _, group := range output.GroupAssignments {
			fmt.Fprintf(&b, "<li>%s</li>", group)
		}
		b.WriteString("</ul>")
	}
	if loginURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s">Sign in to your account</a></p>`, loginURL)
	}
	return b.String()
}
