package models

import "time"

// Note is a moderator annotation on a flag. A note has no surrogate
// identifier; it is addressed by the (FlagID, Created) pair.
type Note struct {
	FlagID  string
	UID     string
	Body    string
	Created time.Time
}
