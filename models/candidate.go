package models

// Candidate is one entry of the candidate registry.
type Candidate struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
}
