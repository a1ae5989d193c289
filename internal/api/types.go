package api

// dateTimeFormat keeps full nanosecond precision so remote consumers can
// order requests exactly as the store does.
const dateTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Request describes a song request in a transport-friendly format.
type Request struct {
	ID             string `json:"id"`
	SingerName     string `json:"singerName"`
	IGHandle       string `json:"igHandle,omitempty"`
	Song           string `json:"song"`
	Artist         string `json:"artist"`
	BackingTrack   string `json:"backingTrack"`
	TechnicalNeeds string `json:"technicalNeeds,omitempty"`
	YouTubeURL     string `json:"youtubeUrl,omitempty"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
	// SearchURL is a karaoke track search for operators choosing a URL.
	SearchURL string `json:"searchUrl,omitempty"`
}

// Slot is an up next entry with its 1-based position.
type Slot struct {
	Position int     `json:"position"`
	Request  Request `json:"request"`
}

// Settings carries display settings.
type Settings struct {
	Theme     string `json:"theme"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Views is the projected queue for one role.
type Views struct {
	Role       string         `json:"role"`
	Pending    []Request      `json:"pending"`
	UpNext     []Slot         `json:"upNext"`
	NowPlaying *Request       `json:"nowPlaying,omitempty"`
	History    []Request      `json:"history"`
	Counts     map[string]int `json:"counts"`
	Warnings   []string       `json:"warnings,omitempty"`
	Settings   Settings       `json:"settings"`
	Revision   uint64         `json:"revision"`
}

// SubmitRequest is the public submission payload.
type SubmitRequest struct {
	SingerName     string `json:"singerName"`
	IGHandle       string `json:"igHandle"`
	Song           string `json:"song"`
	Artist         string `json:"artist"`
	BackingTrack   string `json:"backingTrack"`
	TechnicalNeeds string `json:"technicalNeeds"`
}

// ApproveRequest carries the track chosen at approval.
type ApproveRequest struct {
	YouTubeURL string `json:"youtubeUrl"`
}

// EditRequest carries operator corrections.
type EditRequest struct {
	Song       string `json:"song"`
	Artist     string `json:"artist"`
	YouTubeURL string `json:"youtubeUrl"`
}

// ThemeRequest selects the display theme.
type ThemeRequest struct {
	Theme string `json:"theme"`
}

// RequestResponse wraps a single request.
type RequestResponse struct {
	Request Request `json:"request"`
}

// RequestFeed is one snapshot of a request subscription.
type RequestFeed struct {
	View     string    `json:"view"`
	Epoch    string    `json:"epoch"`
	Revision uint64    `json:"revision"`
	Requests []Request `json:"requests"`
}

// SettingsFeed is one snapshot of the settings subscription.
type SettingsFeed struct {
	Epoch    string   `json:"epoch"`
	Revision uint64   `json:"revision"`
	Settings Settings `json:"settings"`
}

// ResetTicket is an armed reset awaiting confirmation.
type ResetTicket struct {
	Ticket    string `json:"ticket"`
	ExpiresAt string `json:"expiresAt"`
	Confirmed bool   `json:"confirmed"`
}

// ResetResult reports a completed or partially completed reset.
type ResetResult struct {
	Total   int   `json:"total"`
	Batches int   `json:"batches"`
	Deleted int64 `json:"deleted"`
}

// BatchFailure names one failed reset batch.
type BatchFailure struct {
	Index int    `json:"index"`
	Size  int    `json:"size"`
	Error string `json:"error"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error  string         `json:"error"`
	Kind   string         `json:"kind"`
	Field  string         `json:"field,omitempty"`
	Status string         `json:"status,omitempty"`
	Failed []BatchFailure `json:"failed,omitempty"`
	Result *ResetResult   `json:"result,omitempty"`
}

// DatabaseHealth mirrors store diagnostics.
type DatabaseHealth struct {
	Path           string `json:"path"`
	Exists         bool   `json:"exists"`
	Readable       bool   `json:"readable"`
	IntegrityCheck bool   `json:"integrityCheck"`
	TotalRequests  int    `json:"totalRequests"`
	Error          string `json:"error,omitempty"`
}

// ArchiveStatus reports archive delivery counters.
type ArchiveStatus struct {
	Enabled   bool `json:"enabled"`
	Delivered int  `json:"delivered"`
	Failed    int  `json:"failed"`
	Dropped   int  `json:"dropped"`
	Queued    int  `json:"queued"`
}

// PlayerStatus reports whether the track open command can run.
type PlayerStatus struct {
	Command    string `json:"command,omitempty"`
	Configured bool   `json:"configured"`
	Available  bool   `json:"available"`
	Detail     string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	Bind         string         `json:"bind"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	Revision     uint64         `json:"revision"`
	Counts       map[string]int `json:"counts"`
	Database     DatabaseHealth `json:"database"`
	Archive      ArchiveStatus  `json:"archive"`
	Player       PlayerStatus   `json:"player"`
}
