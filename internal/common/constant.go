package common

// Target types a flag may be opened against. Validation of anything richer
// than membership in this set belongs to the host platform.
const (
	TargetTypePost  = "post"
	TargetTypeTopic = "topic"
	TargetTypeUser  = "user"
)

// Flag states. A new flag always starts out open.
const (
	FlagStateOpen     = "open"
	FlagStateWIP      = "wip"
	FlagStateResolved = "resolved"
	FlagStateRejected = "rejected"
)

// NoteDeletedText is the free-text body of the synthetic history entry
// appended after a note deletion.
const NoteDeletedText = "note deleted"
