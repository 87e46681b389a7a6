package users

import (
	"encoding/json"
	"strconv"
	"time"
)

// Record is the engagement state of one user.
type Record struct {
	UserID       int64
	Username     string
	WelcomeSent  bool
	PDFSent      bool
	IsSubscribed bool
	LastActivity time.Time
	// LastChecked is zero until the first membership verification.
	LastChecked time.Time
}

// Stats summarizes the store.
type Stats struct {
	Users      int `json:"users"`
	Subscribed int `json:"subscribed"`
	PDFSent    int `json:"pdf_sent"`
}

type fileRecord struct {
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	WelcomeSent  bool   `json:"welcome_sent"`
	PDFSent      bool   `json:"pdf_sent"`
	IsSubscribed bool   `json:"is_subscribed"`
	LastActivity string `json:"last_activity"`
	LastChecked  string `json:"last_checked,omitempty"`
}

// timestampLayouts covers RFC 3339 and ISO-8601 without a zone offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format(time.RFC3339Nano)
}

func (r Record) toFile() fileRecord {
	return fileRecord{
		UserID:       r.UserID,
		Username:     r.Username,
		WelcomeSent:  r.WelcomeSent,
		PDFSent:      r.PDFSent,
		IsSubscribed: r.IsSubscribed,
		LastActivity: formatTimestamp(r.LastActivity),
		LastChecked:  formatTimestamp(r.LastChecked),
	}
}

// EncodeSnapshot renders records in the persisted file format: an object
// keyed by the decimal user id.
func EncodeSnapshot(records []Record) ([]byte, error) {
	doc := make(map[string]fileRecord, len(records))
	for _, r := range records {
		doc[strconv.FormatInt(r.UserID, 10)] = r.toFile()
	}
	return json.MarshalIndent(doc, "", "  ")
}
