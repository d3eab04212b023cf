package model

import "time"

// Heartbeat is an ephemeral liveness pulse from a logged-in student.
type Heartbeat struct {
	StudentName string    `json:"student_name"`
	ClassName   string    `json:"class_name"`
	At          time.Time `json:"at"`
}

// OnlineStudent is one entry of the presence view.
type OnlineStudent struct {
	StudentName string    `json:"student_name"`
	ClassName   string    `json:"class_name"`
	LastSeen    time.Time `json:"last_seen"`
}
