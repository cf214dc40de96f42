package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for lifecycle failures surfaced to callers.
const (
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeAlreadyClaimed      = "ALREADY_CLAIMED"
	CodeNotAssignee         = "NOT_ASSIGNEE"
	CodeVersionConflict     = "VERSION_CONFLICT"
	CodeDuplicateOpenTicket = "DUPLICATE_OPEN_TICKET"
	CodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	CodeTranscriptPending   = "TRANSCRIPT_PENDING"
	CodeTranscriptFailed    = "TRANSCRIPT_FAILED"
	CodeTicketNotFound      = "TICKET_NOT_FOUND"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

// NewTicketNotFound reports a missing ticket by id.
func NewTicketNotFound(ticketID string) error {
	return NewDomainError(CodeTicketNotFound, fmt.Sprintf("ticket %s not found", ticketID),
		http.StatusNotFound, map[string]any{"ticket_id": ticketID})
}

// NewInvalidTransition reports an attempted move not allowed from the current state.
func NewInvalidTransition(ticketID, from, to string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("ticket %s cannot move from %s to %s", ticketID, from, to),
		http.StatusConflict, map[string]any{"ticket_id": ticketID, "from": from, "to": to})
}

// NewAlreadyClaimed reports a claim on a ticket held by another staff member.
func NewAlreadyClaimed(ticketID, holder string) error {
	return NewDomainError(CodeAlreadyClaimed,
		fmt.Sprintf("ticket %s is already claimed", ticketID),
		http.StatusConflict, map[string]any{"ticket_id": ticketID, "claimed_by": holder})
}

// NewNotAssignee reports an operation reserved for the assigned staff member.
func NewNotAssignee(ticketID, actorID string) error {
	return NewDomainError(CodeNotAssignee,
		fmt.Sprintf("ticket %s is not assigned to %s", ticketID, actorID),
		http.StatusForbidden, map[string]any{"ticket_id": ticketID, "actor_id": actorID})
}

// NewVersionConflict reports a stale optimistic write.
func NewVersionConflict(ticketID string) error {
	return NewDomainError(CodeVersionConflict,
		fmt.Sprintf("ticket %s was modified concurrently", ticketID),
		http.StatusConflict, map[string]any{"ticket_id": ticketID})
}

// NewDuplicateOpenTicket reports an owner exceeding the open-ticket policy.
func NewDuplicateOpenTicket(ownerID, category string) error {
	return NewDomainError(CodeDuplicateOpenTicket,
		"owner already has an open ticket",
		http.StatusConflict, map[string]any{"owner_id": ownerID, "category": category})
}

// NewStorageUnavailable wraps a storage timeout or connection failure.
func NewStorageUnavailable(err error) error {
	return &DomainError{
		Code:       CodeStorageUnavailable,
		Message:    "storage unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewTranscriptPending reports archival attempted before transcript generation.
func NewTranscriptPending(ticketID string) error {
	return NewDomainError(CodeTranscriptPending,
		fmt.Sprintf("ticket %s has no transcript yet", ticketID),
		http.StatusConflict, map[string]any{"ticket_id": ticketID})
}

// NewTranscriptFailed reports permanent transcript generation failure.
func NewTranscriptFailed(ticketID string, err error) error {
	return &DomainError{
		Code:       CodeTranscriptFailed,
		Message:    fmt.Sprintf("transcript generation failed for ticket %s", ticketID),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"ticket_id": ticketID},
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
