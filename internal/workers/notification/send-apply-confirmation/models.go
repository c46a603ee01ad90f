// internal/workers/notification/send-apply-confirmation/models.go
package sendapplyconfirmation

const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

type Input struct {
	UserID     string `json:"userId"`
	GrantID    string `json:"grantId"`
	GrantTitle string `json:"grantTitle"`
	GrantURL   string `json:"grantUrl,omitempty"`
	CloseAt    string `json:"closeAt,omitempty"` // RFC3339, empty for rolling deadlines

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"`
	SentAt         string `json:"sentAt"`
}
