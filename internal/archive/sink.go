package archive

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"stagequeue/internal/config"
	"stagequeue/internal/logging"
	"stagequeue/internal/requests"
)

// Record is one archived submission row.
type Record struct {
	RequestID string
	Time      time.Time
	Name      string
	Handle    string
	Song      string
	Artist    string
}

// RecordFromRequest builds the archive row for req.
func RecordFromRequest(req requests.Request) Record {
	name := req.SingerName
	if strings.TrimSpace(name) == "" {
		name = "Unknown"
	}
	return Record{
		RequestID: req.ID,
		Time:      req.CreatedAt,
		Name:      name,
		Handle:    req.IGHandle,
		Song:      req.Song,
		Artist:    req.Artist,
	}
}

// Row returns the spreadsheet columns: time, name, handle, song, artist.
func (r Record) Row() []string {
	return []string{
		r.Time.Local().Format("2006-01-02 15:04:05"),
		r.Name,
		r.Handle,
		r.Song,
		r.Artist,
	}
}

// Sink stores archive records somewhere outside the request store.
type Sink interface {
	Append(ctx context.Context, record Record) error
}

// NewSink returns the configured sink. A disabled or unusable configuration
// yields a no-op sink so archiving never affects submissions.
func NewSink(cfg *config.Config, logger *slog.Logger) Sink {
	logger = logging.NewComponentLogger(logger, "archive")
	if cfg == nil || !cfg.Archive.Enabled {
		return noopSink{}
	}
	sink, err := NewSheetsSink(context.Background(), SheetsOptions{
		SpreadsheetID:   cfg.Archive.SpreadsheetID,
		SheetName:       cfg.Archive.SheetName,
		CredentialsFile: cfg.Archive.CredentialsFile,
		BaseURL:         cfg.Archive.BaseURL,
		Timeout:         cfg.ArchiveRequestTimeout(),
	})
	if err != nil {
		logging.WarnWithContext(logger, "archive disabled", "archive_config_invalid",
			logging.Error(err),
			logging.String(logging.FieldImpact, "new requests are not backed up to the spreadsheet"),
			logging.String(logging.FieldErrorHint, "check archive.credentials_file and archive.spreadsheet_id"))
		return noopSink{}
	}
	return sink
}

type noopSink struct{}

func (noopSink) Append(context.Context, Record) error { return nil }
