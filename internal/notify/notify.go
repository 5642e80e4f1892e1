// Package notify tells users by email how their applications ended.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"jobmate/autoapply-service/internal/model"
)

// Notifier sends the outcome of a processing run to the applicant.
type Notifier interface {
	ApplicationFinished(ctx context.Context, user *model.UserProfile, app *model.JobApplication, posting *model.JobPosting) error
}

// SESService is the subset of the SES client used here.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SES sends plain-text outcome emails through Amazon SES.
type SES struct {
	client SESService
	from   string
}

// NewSES returns a notifier over an existing SES client.
func NewSES(client SESService, fromEmail string) *SES {
	return &SES{client: client, from: fromEmail}
}

// NewSESFromRegion loads the default AWS credential chain for region.
func NewSESFromRegion(ctx context.Context, region, fromEmail string) (*SES, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSES(ses.NewFromConfig(cfg), fromEmail), nil
}

func (s *SES) ApplicationFinished(
	ctx context.Context,
	user *model.UserProfile,
	app *model.JobApplication,
	posting *model.JobPosting,
) error {
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return nil
	}
	subject, body := render(user, app, posting)
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{user.Email}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
		Source: aws.String(s.from),
	})
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", user.Email, err)
	}
	return nil
}

func render(user *model.UserProfile, app *model.JobApplication, posting *model.JobPosting) (string, string) {
	title, company := "", ""
	if posting != nil {
		title, company = posting.Title, posting.Company
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s,\n\n", strings.TrimSpace(user.Name))
	var subject string
	if app.Status == model.StatusApplied {
		subject = fmt.Sprintf("Postulación enviada: %s", title)
		fmt.Fprintf(&b, "Tu postulación al cargo %s en %s fue enviada.\n", title, company)
	} else {
		subject = fmt.Sprintf("Postulación no enviada: %s", title)
		fmt.Fprintf(&b, "No pudimos enviar tu postulación al cargo %s en %s.\n", title, company)
		if app.Notes != "" {
			fmt.Fprintf(&b, "Motivo: %s\n", app.Notes)
		}
	}
	if posting != nil && posting.URL != "" {
		fmt.Fprintf(&b, "\nOferta: %s\n", posting.URL)
	}
	return subject, b.String()
}

// Nop discards notifications.
type Nop struct{}

func (Nop) ApplicationFinished(context.Context, *model.UserProfile, *model.JobApplication, *model.JobPosting) error {
	return nil
}
