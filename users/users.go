package users

import "strings"

// JobField is the career field a user ranks their spec in.
type JobField string

const (
	JobFieldManagement   JobField = "MANAGEMENT"
	JobFieldFinance      JobField = "FINANCE"
	JobFieldSales        JobField = "SALES"
	JobFieldMarketing    JobField = "MARKETING"
	JobFieldIT           JobField = "IT"
	JobFieldEngineering  JobField = "ENGINEERING"
	JobFieldDesign       JobField = "DESIGN"
	JobFieldResearch     JobField = "RESEARCH"
	JobFieldPublic       JobField = "PUBLIC"
	JobFieldUnclassified JobField = ""
)

// Profile is the cached profile of the authenticated user.
type Profile struct {
	ID              int64    `json:"id"`                        // Unique identifier for the user
	Nickname        string   `json:"nickname,omitempty"`        // Display name
	ProfileImageURL string   `json:"profileImageUrl,omitempty"` // Avatar URL
	JobField        JobField `json:"jobField,omitempty"`        // Field the user's spec is ranked in
	HasSpec         bool     `json:"hasActiveSpec,omitempty"`   // HasSpec, has the user registered a spec
	ActiveSpecID    *int64   `json:"activeSpec,omitempty"`      // ActiveSpecID, the currently ranked spec if any
}

// OwnsSpec reports whether specID is the user's active spec.
func (p *Profile) OwnsSpec(specID int64) bool {
	if p == nil || p.ActiveSpecID == nil {
		return false
	}
	return *p.ActiveSpecID == specID
}

// DisplayName returns the nickname, or a placeholder when none is set.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	if name := strings.TrimSpace(p.Nickname); name != "" {
		return name
	}
	return "anonymous"
}
