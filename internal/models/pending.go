package models

import "time"

// PendingUpload is a finished session that could not be uploaded because
// the device was offline. It is removed once a remote write succeeds.
type PendingUpload struct {
	ID          string        `json:"id"`
	GroupID     string        `json:"groupID"`
	UserName    string        `json:"userName"`
	SessionData SessionRecord `json:"sessionData"`
	Timestamp   time.Time     `json:"timestamp"`
}

// SessionDocument is a finished session handed over by the capture side,
// either on the command line or through the inbox directory.
type SessionDocument struct {
	GroupID  string        `json:"groupId,omitempty"`
	UserName string        `json:"userName,omitempty"`
	Session  SessionRecord `json:"session"`
}
