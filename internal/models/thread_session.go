package models

import "time"

// ThreadSession maps a Slack thread to a Langflow session. ThreadKey is
// "{channelID}:{threadTS}". The session token is handed to Langflow on every
// run call so the flow keeps conversation state across messages.
//
// FlowName is the flow the thread was bound to when the session was created.
// The binding never changes for the life of the thread, even if the channel
// is later pointed at a different flow.
type ThreadSession struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	ThreadKey    string `gorm:"size:128;uniqueIndex;not null"`
	Token        string `gorm:"size:64;not null"`
	FlowName     string `gorm:"size:64;index"`
	CreatedAt    time.Time
	LastActivity time.Time `gorm:"index"`
}
