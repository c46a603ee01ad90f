// internal/workers/notification/send-apply-confirmation/handler_test.go
package sendapplyconfirmation

import (
	"context"
	"errors"
	"testing"

	"grantmatch-workers/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	err  error
	sent []*ses.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &ses.SendEmailOutput{}, nil
}

type fakeSNS struct {
	err       error
	published []*sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, params)
	return &sns.PublishOutput{}, nil
}

func newTestHandler(t *testing.T, cfg *Config, sesClient SESService, snsClient SNSService) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Handler{
		config:    cfg,
		db:        db,
		logger:    logger.NewTestLogger(t),
		sesClient: sesClient,
		snsClient: snsClient,
	}, mock
}

func contactRows(email, phone string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"email", "phone"}).AddRow(email, phone)
}

func TestExecute_SendsEmailConfirmation(t *testing.T) {
	sesClient := &fakeSES{}
	h, mock := newTestHandler(t, LoadConfig(), sesClient, &fakeSNS{})
	mock.ExpectQuery("SELECT email, phone FROM users").
		WithArgs("user-1").
		WillReturnRows(contactRows("alice@example.org", ""))

	out, err := h.Execute(context.Background(), &Input{
		UserID:     "user-1",
		GrantID:    "grant-1",
		GrantTitle: "Rural Health Outreach",
		CloseAt:    "2026-10-15T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, out.Status)
	assert.NotEmpty(t, out.NotificationID)

	require.Len(t, sesClient.sent, 1)
	msg := sesClient.sent[0]
	assert.Contains(t, *msg.Message.Subject.Data, "Rural Health Outreach")
	assert.Contains(t, *msg.Message.Body.Text.Data, "October 15, 2026")
	assert.Equal(t, []string{"alice@example.org"}, msg.Destination.ToAddresses)
}

func TestExecute_RollingDeadlineInBody(t *testing.T) {
	sesClient := &fakeSES{}
	h, mock := newTestHandler(t, LoadConfig(), sesClient, &fakeSNS{})
	mock.ExpectQuery("SELECT email, phone FROM users").
		WithArgs("user-1").
		WillReturnRows(contactRows("alice@example.org", ""))

	_, err := h.Execute(context.Background(), &Input{
		UserID:     "user-1",
		GrantID:    "grant-1",
		GrantTitle: "Open Research Fund",
	})
	require.NoError(t, err)
	require.Len(t, sesClient.sent, 1)
	assert.Contains(t, *sesClient.sent[0].Message.Body.Text.Data, "rolling")
}

func TestExecute_MissingContactIsDisabled(t *testing.T) {
	h, mock := newTestHandler(t, LoadConfig(), &fakeSES{}, &fakeSNS{})
	mock.ExpectQuery("SELECT email, phone FROM users").
		WithArgs("user-gone").
		WillReturnError(errors.New("sql: no rows in result set"))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-gone", GrantID: "grant-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, out.Status)
}

func TestExecute_EmailFailureReportsFailed(t *testing.T) {
	h, mock := newTestHandler(t, LoadConfig(), &fakeSES{err: errors.New("ses throttled")}, &fakeSNS{})
	mock.ExpectQuery("SELECT email, phone FROM users").
		WithArgs("user-1").
		WillReturnRows(contactRows("alice@example.org", ""))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1", GrantID: "grant-1", GrantTitle: "X"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
}

func TestExecute_SMSWhenEnabledAndPhonePresent(t *testing.T) {
	cfg := LoadConfig()
	cfg.SMSEnabled = true
	snsClient := &fakeSNS{}
	h, mock := newTestHandler(t, cfg, &fakeSES{}, snsClient)
	mock.ExpectQuery("SELECT email, phone FROM users").
		WithArgs("user-1").
		WillReturnRows(contactRows("alice@example.org", "+12025550147"))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1", GrantID: "grant-1", GrantTitle: "X"})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, out.Status)
	require.Len(t, snsClient.published, 1)
	assert.Equal(t, "+12025550147", *snsClient.published[0].PhoneNumber)
}

func TestExecute_RequiresIDs(t *testing.T) {
	h, _ := newTestHandler(t, LoadConfig(), &fakeSES{}, &fakeSNS{})

	_, err := h.Execute(context.Background(), &Input{GrantID: "grant-1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRenderTemplate_StripsUnknownPlaceholders(t *testing.T) {
	out := renderTemplate("Hello {{name}}, deadline {{closeAt}}.", map[string]interface{}{"name": "Alice"})
	assert.Equal(t, "Hello Alice, deadline .", out)
}
