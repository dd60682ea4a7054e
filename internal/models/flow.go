package models

import "time"

// Flow is a named Langflow execution configuration. Each flow points at a
// Langflow server, a flow ID to run, and carries the API key for that server.
// At most one flow is the default at any time; the registry enforces the swap
// atomically.
type Flow struct {
	Name        string `gorm:"primaryKey;size:64"`
	URL         string `gorm:"size:512;not null"`
	FlowID      string `gorm:"size:128;not null"`
	APIKey      string `gorm:"size:256;not null"`
	Description string `gorm:"size:512"`
	IsDefault   bool   `gorm:"default:false;index"`
	CreatedAt   time.Time
}

// Endpoint returns the full run URL for this flow.
func (f *Flow) Endpoint() string {
	url := f.URL
	for len(url) > 0 && url[len(url)-1] == '/' {
		url = url[:len(url)-1]
	}
	return url + "/api/v1/run/" + f.FlowID
}
