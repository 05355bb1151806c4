// Package session implements the stateless parse/query collaborator the
// Daemon consumes for read-only session-projection requests: turning raw
// text captured from a CLI's session history into a [SessionRecord], and
// ordering a set of them for display.
//
// This package owns no storage and no lifecycle — it is pure functions
// over values, isolated from the contract lifecycle the rest of stead
// implements.
package session

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Record is a normalized view of one session captured from an external
// collaborator's CLI history.
type Record struct {
	ID        string    `json:"id"`
	CLIKind   string    `json:"cli_kind"`
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorCode names the category of a [ParseError].
type ErrorCode string

const (
	// ErrorCodeInvalidFormat indicates raw_text failed structural
	// validation for the given CLI kind.
	ErrorCodeInvalidFormat ErrorCode = "invalid_format"
	// ErrorCodeInvalidJSON indicates raw_text could not be decoded as JSON
	// at all.
	ErrorCodeInvalidJSON ErrorCode = "invalid_json"
)

// ParseError reports why [Parse] rejected a raw session payload: an error
// category and a human-readable message.
type ParseError struct {
	Code    ErrorCode
	Message string
}

func (e *ParseError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// genericPayload is the shape [Parse] expects for the "generic" CLI kind:
// an id, a free-text summary, and an RFC3339 timestamp.
type genericPayload struct {
	ID        string `json:"id"`
	Summary   string `json:"summary"`
	UpdatedAt string `json:"updated_at"`
}

// Parse decodes rawText for the given cliKind into a [Record]. Only the
// "generic" kind is recognized today; unrecognized kinds and malformed
// JSON return a [ParseError] rather than a zero Record, so callers can
// distinguish "no session" from "bad session".
func Parse(cliKind, rawText string) (*Record, *ParseError) {
	if cliKind != "generic" {
		return nil, &ParseError{Code: ErrorCodeInvalidFormat, Message: "unrecognized cli_kind: " + cliKind}
	}

	var payload genericPayload
	if err := json.Unmarshal([]byte(rawText), &payload); err != nil {
		return nil, &ParseError{Code: ErrorCodeInvalidJSON, Message: err.Error()}
	}
	if payload.ID == "" {
		return nil, &ParseError{Code: ErrorCodeInvalidFormat, Message: "session id is required"}
	}

	updatedAt, err := time.Parse(time.RFC3339, payload.UpdatedAt)
	if err != nil {
		return nil, &ParseError{Code: ErrorCodeInvalidFormat, Message: "updated_at must be RFC3339: " + err.Error()}
	}

	return &Record{
		ID:        payload.ID,
		CLIKind:   cliKind,
		Summary:   payload.Summary,
		UpdatedAt: updatedAt,
	}, nil
}

// Query filters sessions to those matching cliFilter (ignored if empty)
// and containing textFilter as a case-sensitive substring of Summary
// (ignored if empty), then orders the result by UpdatedAt descending,
// breaking ties by ID ascending. The input slice is not mutated.
func Query(sessions []Record, cliFilter, textFilter string) []Record {
	matched := make([]Record, 0, len(sessions))
	for _, s := range sessions {
		if cliFilter != "" && s.CLIKind != cliFilter {
			continue
		}
		if textFilter != "" && !strings.Contains(s.Summary, textFilter) {
			continue
		}
		matched = append(matched, s)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return matched
}
