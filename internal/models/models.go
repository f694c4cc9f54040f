// Package models defines the core data structures for SafeBot.
//
// It includes types for incident reports, the student roster, and the
// shared API response envelope used across modules.
package models

import (
	"errors"
	"regexp"
	"time"
)

// Category is one of the fixed incident categories the incident store accepts.
type Category string

const (
	CategoryAccident        Category = "Accident"
	CategoryTheft           Category = "Theft"
	CategoryHarassment      Category = "Harassment"
	CategorySafetyViolation Category = "Safety Violation"
	CategoryOther           Category = "Other"
)

// Categories lists every canonical category in presentation order.
var Categories = []Category{
	CategoryAccident,
	CategoryTheft,
	CategoryHarassment,
	CategorySafetyViolation,
	CategoryOther,
}

// IsValidCategory checks if the given category is one of the canonical set.
func IsValidCategory(c Category) bool {
	switch c {
	case CategoryAccident, CategoryTheft, CategoryHarassment, CategorySafetyViolation, CategoryOther:
		return true
	default:
		return false
	}
}

// Urgency represents the urgency level of an incident report.
type Urgency string

const (
	UrgencyLow      Urgency = "Low"
	UrgencyMedium   Urgency = "Medium"
	UrgencyHigh     Urgency = "High"
	UrgencyCritical Urgency = "Critical"
)

// DefaultUrgency is assigned to reports collected through the bot flow,
// which has no urgency-selection step.
const DefaultUrgency = UrgencyMedium

// IsValidUrgency checks if the given urgency level is supported.
func IsValidUrgency(u Urgency) bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	default:
		return false
	}
}

// IncidentStatus tracks the triage state of a report.
type IncidentStatus string

const (
	IncidentStatusPending       IncidentStatus = "pending"
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusResolved      IncidentStatus = "resolved"
	IncidentStatusClosed        IncidentStatus = "closed"
)

// Validation errors for incident reports.
var (
	ErrMissingTitle       = errors.New("incident title is required")
	ErrInvalidCategory    = errors.New("invalid incident category")
	ErrMissingDescription = errors.New("detailed description is required")
	ErrMissingLocation    = errors.New("incident location is required")
	ErrMissingOccurredAt  = errors.New("incident occurrence time is required")
	ErrInvalidUrgency     = errors.New("invalid urgency level")
	ErrMissingContact     = errors.New("contact email is required for non-anonymous reports")
	ErrInvalidContact     = errors.New("contact email is not a valid email address")
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// StudentInfo is the identity snapshot attached to verified reports.
type StudentInfo struct {
	Name        string `json:"name"`
	IndexNumber string `json:"index_number"`
	Department  string `json:"department,omitempty"`
}

// Incident represents a single safety incident report.
type Incident struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Category     Category       `json:"category"`
	Description  string         `json:"description"`
	Location     string         `json:"location"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Urgency      Urgency        `json:"urgency"`
	Anonymous    bool           `json:"anonymous"`
	ContactEmail string         `json:"contact_email,omitempty"`
	Status       IncidentStatus `json:"status"`
	Student      *StudentInfo   `json:"student,omitempty"`
	ChatID       string         `json:"chat_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Validate performs field validation on an incident report.
func (i *Incident) Validate() error {
	if i.Title == "" {
		return ErrMissingTitle
	}
	if !IsValidCategory(i.Category) {
		return ErrInvalidCategory
	}
	if i.Description == "" {
		return ErrMissingDescription
	}
	if i.Location == "" {
		return ErrMissingLocation
	}
	if i.OccurredAt.IsZero() {
		return ErrMissingOccurredAt
	}
	if !IsValidUrgency(i.Urgency) {
		return ErrInvalidUrgency
	}
	if !i.Anonymous && i.Student == nil {
		if i.ContactEmail == "" {
			return ErrMissingContact
		}
		if !emailRegex.MatchString(i.ContactEmail) {
			return ErrInvalidContact
		}
	}
	return nil
}

// Student is an entry in the campus roster that the verification gate
// checks reported identities against.
type Student struct {
	ID             string     `json:"id"`
	FullName       string     `json:"full_name"`
	IndexNumber    string     `json:"index_number"`
	Department     string     `json:"department,omitempty"`
	Email          string     `json:"email,omitempty"`
	Verified       bool       `json:"verified"`
	TelegramChatID string     `json:"telegram_chat_id,omitempty"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Info returns the identity snapshot for attaching to reports.
func (s *Student) Info() *StudentInfo {
	return &StudentInfo{
		Name:        s.FullName,
		IndexNumber: s.IndexNumber,
		Department:  s.Department,
	}
}

// Admin is a dashboard operator account.
type Admin struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Response represents an incoming message from a chat participant.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope returned by every endpoint.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
