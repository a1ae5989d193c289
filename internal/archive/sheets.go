package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	sheetsScope      = "https://www.googleapis.com/auth/spreadsheets"
	defaultSheetsURL = "https://sheets.googleapis.com/v4/spreadsheets"
)

// SheetsOptions configures a SheetsSink.
type SheetsOptions struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	// BaseURL overrides the Sheets API root.
	BaseURL string
	Timeout time.Duration
	// HTTPClient is the transport used for the token exchange and API calls.
	HTTPClient *http.Client
}

// SheetsSink appends records to a Google Sheet with service-account auth.
type SheetsSink struct {
	endpoint string
	client   *http.Client
}

// NewSheetsSink reads the service-account key and prepares an authenticated client.
func NewSheetsSink(ctx context.Context, opts SheetsOptions) (*SheetsSink, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	data, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, sheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// The token source outlives ctx; it must not be bound to a request context.
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, base)
	client := oauth2.NewClient(tokenCtx, conf.TokenSource(tokenCtx))
	client.Timeout = timeout

	root := strings.TrimRight(opts.BaseURL, "/")
	if root == "" {
		root = defaultSheetsURL
	}
	sheet := opts.SheetName
	if sheet == "" {
		sheet = "Sheet1"
	}
	endpoint := fmt.Sprintf("%s/%s/values/%s:append?%s",
		root,
		url.PathEscape(opts.SpreadsheetID),
		url.PathEscape(sheet),
		url.Values{
			"valueInputOption": {"USER_ENTERED"},
			"insertDataOption": {"INSERT_ROWS"},
		}.Encode(),
	)
	return &SheetsSink{endpoint: endpoint, client: client}, nil
}

type appendBody struct {
	Values [][]string `json:"values"`
}

// Append adds one row for record.
func (s *SheetsSink) Append(ctx context.Context, record Record) error {
	body, err := json.Marshal(appendBody{Values: [][]string{record.Row()}})
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build append request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("append row: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
