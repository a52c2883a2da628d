package domain

import "time"

// IncidentStatus represents the lifecycle stage of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusIdentified    IncidentStatus = "identified"
	IncidentStatusMonitoring    IncidentStatus = "monitoring"
	IncidentStatusResolved      IncidentStatus = "resolved"
)

// IsValid checks if the incident status is valid.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusInvestigating, IncidentStatusIdentified,
		IncidentStatusMonitoring, IncidentStatusResolved:
		return true
	}
	return false
}

// IsResolved reports whether the incident is closed.
func (s IncidentStatus) IsResolved() bool {
	return s == IncidentStatusResolved
}

// Severity represents the severity level of an incident.
type Severity string

// Severity levels.
const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is valid.
func (s Severity) IsValid() bool {
	return s == SeverityMinor || s == SeverityMajor || s == SeverityCritical
}

// Incident is a narrative record of a degraded or outage period.
// ServiceID is a weak reference: deleting or resetting services never
// touches incidents.
type Incident struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Status     IncidentStatus   `json:"status"`
	Severity   Severity         `json:"severity"`
	ServiceID  string           `json:"serviceId"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
	ResolvedAt *time.Time       `json:"resolvedAt,omitempty"`
	Updates    []IncidentUpdate `json:"updates"`
}

// IncidentUpdate is an append-only entry of an incident narrative.
type IncidentUpdate struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
}

// Apply appends update to the narrative and moves the incident to status.
// ResolvedAt is set on the transition to resolved and cleared on reopen.
func (i *Incident) Apply(status IncidentStatus, update IncidentUpdate) {
	wasResolved := i.Status.IsResolved()

	i.Status = status
	i.UpdatedAt = update.Timestamp
	i.Updates = append(i.Updates, update)

	switch {
	case status.IsResolved() && !wasResolved:
		resolvedAt := update.Timestamp
		i.ResolvedAt = &resolvedAt
	case !status.IsResolved():
		i.ResolvedAt = nil
	}
}

// Clone returns a deep copy of the incident.
func (i *Incident) Clone() *Incident {
	c := *i
	if i.ResolvedAt != nil {
		resolvedAt := *i.ResolvedAt
		c.ResolvedAt = &resolvedAt
	}
	c.Updates = make([]IncidentUpdate, len(i.Updates))
	copy(c.Updates, i.Updates)
	return &c
}
