package models

import "time"

// ChannelFlow binds a Slack channel to a named flow. A channel without a
// binding falls back to the default flow at resolution time. Removing a flow
// cascades to its bindings.
type ChannelFlow struct {
	ChannelID string `gorm:"primaryKey;size:64"`
	FlowName  string `gorm:"size:64;not null;index"`
	CreatedAt time.Time
}
