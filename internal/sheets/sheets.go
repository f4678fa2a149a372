// Package sheets appends finished dialog transcripts to a Google Sheets
// spreadsheet, one row per conversation.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/deskhelp/deskbot/internal/logging"
	"github.com/deskhelp/deskbot/internal/persist"
)

const timestampLayout = "2006-01-02 15:04:05"

// transientCodes are the HTTP statuses worth retrying. Everything else from
// the API (bad spreadsheet id, revoked credentials, malformed range) will
// not heal on its own.
var transientCodes = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Config locates the target spreadsheet.
type Config struct {
	SpreadsheetID string
	// Range in A1 notation, e.g. "Conversations!A:E".
	Range string
	// CredentialsJSON is a service account key. Empty means the sink stays
	// unready and rows wait in the queue.
	CredentialsJSON []byte
}

// Sink implements persist.Sink on top of the Sheets API. The service is
// created lazily on first Ready so a bot started without credentials can
// have them supplied later via config reload without losing rows.
type Sink struct {
	cfg Config

	mu  sync.Mutex
	svc *sheets.Service
}

func New(cfg Config) *Sink {
	return &Sink{cfg: cfg}
}

// Ready reports whether the sink can accept batches, building the API
// client on first use.
func (s *Sink) Ready() bool {
	if s.cfg.SpreadsheetID == "" || len(s.cfg.CredentialsJSON) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.svc != nil {
		return true
	}
	svc, err := sheets.NewService(context.Background(),
		option.WithCredentialsJSON(s.cfg.CredentialsJSON),
		option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		logging.Warnf("sheets: client init failed: %v", err)
		return false
	}
	s.svc = svc
	return true
}

// AppendBatch writes one spreadsheet row per persistence row.
func (s *Sink) AppendBatch(ctx context.Context, rows []persist.Row) error {
	s.mu.Lock()
	svc := s.svc
	s.mu.Unlock()
	if svc == nil {
		return &persist.SinkError{Kind: persist.Transient, Code: "uninitialized",
			Err: errors.New("sheets: service not initialized")}
	}

	values := make([][]interface{}, 0, len(rows))
	for _, r := range rows {
		values = append(values, []interface{}{
			r.Timestamp.Format(timestampLayout),
			r.UserID,
			r.DisplayName,
			r.SourceTag,
			r.Transcript,
		})
	}

	_, err := svc.Spreadsheets.Values.
		Append(s.cfg.SpreadsheetID, s.cfg.Range, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return classify(err)
	}
	return nil
}

// classify maps an API error onto the sink failure taxonomy. Plain network
// errors are transient; HTTP errors follow the status code policy.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		kind := persist.Permanent
		if transientCodes[apiErr.Code] {
			kind = persist.Transient
		}
		return &persist.SinkError{Kind: kind, Code: fmt.Sprintf("%d", apiErr.Code), Err: err}
	}
	return &persist.SinkError{Kind: persist.Transient, Code: "network", Err: err}
}
