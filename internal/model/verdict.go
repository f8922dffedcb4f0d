package model

// Violation is a single failed policy check with its human-readable reason.
type Violation struct {
	Reason string `json:"reason"`
}

// Verdict is the outcome of evaluating one trade against its allow-list.
// Every failed check contributes a Violation; Allowed is true only when
// none failed.
type Verdict struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations,omitempty"`
}
