package models

import "time"

// HistoryEntry is one append-only audit record of a state-affecting action on
// a flag. Fields maps each changed field to its new value; Note carries free
// text for system-generated entries instead.
type HistoryEntry struct {
	FlagID  string
	UID     string
	Fields  map[string]string
	Note    string
	Created time.Time
}
