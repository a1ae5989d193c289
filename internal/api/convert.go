package api

import (
	"errors"
	"fmt"
	"time"

	"stagequeue/internal/lifecycle"
	"stagequeue/internal/projection"
	"stagequeue/internal/requests"
	"stagequeue/internal/reset"
)

// FromRequest converts a request to its API representation.
func FromRequest(req requests.Request) Request {
	dto := Request{
		ID:             req.ID,
		SingerName:     req.SingerName,
		IGHandle:       req.IGHandle,
		Song:           req.Song,
		Artist:         req.Artist,
		BackingTrack:   string(req.BackingTrack),
		TechnicalNeeds: req.TechnicalNeeds,
		YouTubeURL:     req.YouTubeURL,
		Status:         string(req.Status),
		CreatedAt:      FormatTime(req.CreatedAt),
		UpdatedAt:      FormatTime(req.UpdatedAt),
	}
	if req.Status == requests.StatusPending || (req.Status == requests.StatusQueued && !req.HasTrack()) {
		dto.SearchURL = lifecycle.SearchURL(req)
	}
	return dto
}

// FromRequests converts a slice of requests; nil input yields an empty slice.
func FromRequests(list []requests.Request) []Request {
	out := make([]Request, 0, len(list))
	for _, req := range list {
		out = append(out, FromRequest(req))
	}
	return out
}

// ToRequest converts an API request back to the domain model.
func ToRequest(dto Request) (requests.Request, error) {
	status, ok := requests.ParseStatus(dto.Status)
	if !ok {
		return requests.Request{}, fmt.Errorf("request %s: unknown status %q", dto.ID, dto.Status)
	}
	backing, ok := requests.ParseBackingTrack(dto.BackingTrack)
	if !ok {
		return requests.Request{}, fmt.Errorf("request %s: unknown backing track %q", dto.ID, dto.BackingTrack)
	}
	created, err := ParseTime(dto.CreatedAt)
	if err != nil {
		return requests.Request{}, fmt.Errorf("request %s: %w", dto.ID, err)
	}
	updated, _ := ParseTime(dto.UpdatedAt)
	return requests.Request{
		ID:             dto.ID,
		SingerName:     dto.SingerName,
		IGHandle:       dto.IGHandle,
		Song:           dto.Song,
		Artist:         dto.Artist,
		BackingTrack:   backing,
		TechnicalNeeds: dto.TechnicalNeeds,
		YouTubeURL:     dto.YouTubeURL,
		Status:         status,
		CreatedAt:      created,
		UpdatedAt:      updated,
	}, nil
}

// ToRequests converts API requests back to the domain model.
func ToRequests(list []Request) ([]requests.Request, error) {
	out := make([]requests.Request, 0, len(list))
	for _, dto := range list {
		req, err := ToRequest(dto)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// FromSettings converts settings to their API representation.
func FromSettings(settings requests.Settings) Settings {
	theme, _ := requests.ParseTheme(string(settings.Theme))
	return Settings{Theme: string(theme), UpdatedAt: FormatTime(settings.UpdatedAt)}
}

// ToSettings converts API settings back to the domain model. Unknown themes
// become the default theme.
func ToSettings(dto Settings) requests.Settings {
	theme, _ := requests.ParseTheme(dto.Theme)
	updated, _ := ParseTime(dto.UpdatedAt)
	return requests.Settings{Theme: theme, UpdatedAt: updated}
}

// FromViews converts projected views for role.
func FromViews(role projection.Role, views projection.Views, settings requests.Settings, revision uint64) Views {
	dto := Views{
		Role:     string(role),
		Pending:  FromRequests(views.Pending),
		UpNext:   make([]Slot, 0, len(views.UpNext)),
		History:  FromRequests(views.History),
		Counts:   MergeCounts(views.Counts),
		Warnings: views.Warnings,
		Settings: FromSettings(settings),
		Revision: revision,
	}
	for _, slot := range views.UpNext {
		dto.UpNext = append(dto.UpNext, Slot{Position: slot.Position, Request: FromRequest(slot.Request)})
	}
	if views.NowPlaying != nil {
		playing := FromRequest(*views.NowPlaying)
		dto.NowPlaying = &playing
	}
	return dto
}

// MergeCounts produces a string-keyed representation of status counts.
func MergeCounts(counts map[requests.Status]int) map[string]int {
	out := make(map[string]int, len(counts))
	for status, count := range counts {
		out[string(status)] = count
	}
	return out
}

// FromResetResult converts a reset result.
func FromResetResult(result reset.Result) ResetResult {
	return ResetResult{Total: result.Total, Batches: result.Batches, Deleted: result.Deleted}
}

// FromTicket converts a reset ticket.
func FromTicket(ticket reset.Ticket) ResetTicket {
	return ResetTicket{Ticket: ticket.ID, ExpiresAt: FormatTime(ticket.ExpiresAt), Confirmed: ticket.Confirmed}
}

// ErrorPayload builds the response body for err.
func ErrorPayload(err error) ErrorResponse {
	resp := ErrorResponse{Error: err.Error(), Kind: requests.Kind(err)}
	var verr *requests.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	var perr *requests.PreconditionError
	if errors.As(err, &perr) {
		resp.Status = string(perr.Status)
	}
	var partial *reset.PartialBatchFailure
	if errors.As(err, &partial) {
		for _, f := range partial.Failed {
			resp.Failed = append(resp.Failed, BatchFailure{Index: f.Index, Size: f.Size, Error: f.Err.Error()})
		}
	}
	return resp
}

// FormatTime converts a time to RFC3339 with nanoseconds or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses timestamps written by FormatTime.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}
