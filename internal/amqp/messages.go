package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// OnboardingCompletedMessage announces that a user finished the wizard.
// The consumer fetches the profile itself; the message only names the user.
type OnboardingCompletedMessage struct {
	UserID    string    `json:"userId"`
	Mode      string    `json:"mode,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewOnboardingCompletedMessage(userID, mode string) *OnboardingCompletedMessage {
	return &OnboardingCompletedMessage{
		UserID:    userID,
		Mode:      mode,
		Timestamp: time.Now(),
	}
}

func (m *OnboardingCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func OnboardingCompletedMessageFromJSON(data []byte) (*OnboardingCompletedMessage, error) {
	var msg OnboardingCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errors.New("message has no user id")
	}
	return &msg, nil
}
