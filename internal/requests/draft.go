package requests

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Draft is the attendee-supplied part of a request.
type Draft struct {
	SingerName     string
	IGHandle       string
	Song           string
	Artist         string
	BackingTrack   string
	TechnicalNeeds string
}

// Normalize validates the draft and returns a pending Request ready for the
// store. ID and CreatedAt are left for the store to assign.
func (d Draft) Normalize() (Request, error) {
	req := Request{
		SingerName: cleanText(d.SingerName),
		IGHandle:   strings.TrimLeft(cleanText(d.IGHandle), "@"),
		Song:       cleanText(d.Song),
		Artist:     cleanText(d.Artist),
		Status:     StatusPending,
	}
	if req.SingerName == "" {
		return Request{}, Invalid("singerName", "is required")
	}
	if req.Song == "" {
		return Request{}, Invalid("song", "is required")
	}
	if req.Artist == "" {
		return Request{}, Invalid("artist", "is required")
	}
	backing, ok := ParseBackingTrack(d.BackingTrack)
	if !ok {
		return Request{}, Invalid("backingTrack", "must be karaoke, original, or none")
	}
	req.BackingTrack = backing
	if backing == BackingNone {
		req.TechnicalNeeds = cleanText(d.TechnicalNeeds)
	}
	return req, nil
}

// Edit carries operator corrections to a pending or queued request.
type Edit struct {
	Song       string
	Artist     string
	YouTubeURL string
}

// Normalize validates the edit. Song and artist stay required; the URL may be
// cleared.
func (e Edit) Normalize() (Edit, error) {
	out := Edit{
		Song:       cleanText(e.Song),
		Artist:     cleanText(e.Artist),
		YouTubeURL: strings.TrimSpace(e.YouTubeURL),
	}
	if out.Song == "" {
		return Edit{}, Invalid("song", "is required")
	}
	if out.Artist == "" {
		return Edit{}, Invalid("artist", "is required")
	}
	return out, nil
}

func cleanText(value string) string {
	return strings.Join(strings.Fields(norm.NFC.String(value)), " ")
}
