package activity

import (
	"context"

	"github.com/edvin/accountfactory/internal/metrics"
	"github.com/edvin/accountfactory/internal/model"
	"github.com/edvin/accountfactory/internal/notify"
)

// Notify contains the outcome-delivery activities.
type Notify struct {
	failures *notify.FailureNotifier
	mailer   *notify.Mailer
}

// NewNotify creates a new Notify activity struct.
func NewNotify(failures *notify.FailureNotifier, mailer *notify.Mailer) *Notify {
	return &Notify{failures: failures, mailer: mailer}
}

// PublishFailure sends a failed-run notification to the platform topic.
func (a *Notify) PublishFailure(ctx context.Context, failure notify.Failure) error {
	metrics.RunsFailed.WithLabelValues(failure.Step).Inc()
	return a.failures.Publish(ctx, failure)
}

// SendCompletionEmailParams holds parameters for the success email.
type SendCompletionEmailParams struct {
	Recipient string          `json:"recipient"`
	Output    model.RunOutput `json:"output"`
}

// SendCompletionEmail mails the requesting team that their account is
// ready.
func (a *Notify) SendCompletionEmail(ctx context.Context, params SendCompletionEmailParams) error {
	metrics.RunsSucceeded.Inc()
	return a.mailer.SendCompletion(ctx, params.Recipient, params.Output)
}
