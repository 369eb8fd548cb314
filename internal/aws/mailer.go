package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Mailer sends HTML email through SES.
type Mailer struct {
	SES  SESAPI
	From string
}

// NewMailer returns a Mailer sending from the given address.
func NewMailer(client SESAPI, from string) *Mailer {
	return &Mailer{SES: client, From: from}
}

// Send delivers a single HTML message and returns the SES message id.
func (m *Mailer) Send(ctx context.Context, to, subject, html string) (string, error) {
	if to == "" {
		return "", fmt.Errorf("send email: empty recipient")
	}
	out, err := m.SES.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: awsString(m.From),
		Destination:      &sestypes.Destination{ToAddresses: []string{to}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: awsString(subject), Charset: awsString("UTF-8")},
				Body: &sestypes.Body{
					Html: &sestypes.Content{Data: awsString(html), Charset: awsString("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	if out.MessageId == nil {
		return "", nil
	}
	return *out.MessageId, nil
}
