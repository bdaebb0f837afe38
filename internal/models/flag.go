// Package models defines the shared domain types for flagkeeper.
package models

import "time"

// Flag is one moderation case opened against a piece of content. The store
// assigns the identifier at creation; the orchestrator never mutates a Flag
// directly.
type Flag struct {
	ID          string
	TargetType  string
	TargetID    string
	ReporterUID string
	Reason      string
	State       string
	AssigneeUID string
	Created     time.Time
}
