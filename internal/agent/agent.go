// Package agent drives the customs agents screens: the agent directory,
// its per-agent statistics and the invitations sent to new agents.
package agent

import "time"

// Agent is a customs officer posted at a point of exit.
type Agent struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	FullName         string     `json:"full_name"`
	Phone            string     `json:"phone"`
	IsActive         bool       `json:"is_active"`
	PointOfExitID    string     `json:"point_of_exit_id"`
	PointOfExitName  string     `json:"point_of_exit_name"`
	PointOfExitCode  string     `json:"point_of_exit_code"`
	Matricule        string     `json:"matricule"`
	Grade            string     `json:"grade"`
	Department       string     `json:"department"`
	ValidationsCount int        `json:"validations_count"`
	ValidationsToday int        `json:"validations_today"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLogin        *time.Time `json:"last_login"`
}

func (a Agent) Name() string {
	if a.FullName != "" {
		return a.FullName
	}
	if a.FirstName == "" && a.LastName == "" {
		return a.Email
	}
	return a.FirstName + " " + a.LastName
}

// Stats are the validation counters shown on an agent's page.
type Stats struct {
	TotalValidations int `json:"total_validations"`
	ValidationsToday int `json:"validations_today"`
	ValidatedCount   int `json:"validated_count"`
	RefusedCount     int `json:"refused_count"`
}

// Detail is the agent page payload.
type Detail struct {
	Agent Agent `json:"agent"`
	Stats Stats `json:"stats"`
}

type agentList struct {
	Count  int     `json:"count"`
	Agents []Agent `json:"agents"`
}

const (
	InvitationPending   = "PENDING"
	InvitationAccepted  = "ACCEPTED"
	InvitationExpired   = "EXPIRED"
	InvitationCancelled = "CANCELLED"
)

// Invitation is an activation link sent to a future agent.
type Invitation struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Phone           string     `json:"phone"`
	Matricule       string     `json:"matricule"`
	Grade           string     `json:"grade"`
	PointOfExitName string     `json:"point_of_exit_name"`
	PointOfExitCode string     `json:"point_of_exit_code"`
	Status          string     `json:"status"`
	IsExpired       bool       `json:"is_expired"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	ActivatedAt     *time.Time `json:"activated_at"`
	CreatedByName   string     `json:"created_by_name"`
}

// DisplayStatus folds the expiry flag into the status.
func (i Invitation) DisplayStatus() string {
	if i.Status == InvitationPending && i.IsExpired {
		return InvitationExpired
	}
	return i.Status
}

// Cancellable reports whether the backend still accepts a cancellation.
func (i Invitation) Cancellable() bool { return i.Status == InvitationPending }

// Resendable: pending links, expired or not, can be sent again.
func (i Invitation) Resendable() bool { return i.Status == InvitationPending || i.Status == InvitationExpired }

type invitationList struct {
	Count       int          `json:"count"`
	Invitations []Invitation `json:"invitations"`
}

// Border is the reduced point-of-exit record the filter bar needs.
type Border struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}
