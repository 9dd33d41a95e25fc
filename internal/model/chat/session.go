package chat

import "time"

// Session captures a transient follow-up conversation bound to one dream record.
type Session struct {
	ID        string    `json:"id"`
	RecordID  string    `json:"recordId"`
	CreatedAt time.Time `json:"createdAt"`
}
