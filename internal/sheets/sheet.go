// Package sheets mirrors the lead funnel over a Google Sheets tracking range.
package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"leadsync_backend/platform/config"
	"leadsync_backend/platform/googleauth"
)

// Sheet reads and overwrites a cell range.
type Sheet interface {
	ReadRange(ctx context.Context, rng string) ([][]string, error)
	WriteRange(ctx context.Context, rng string, rows [][]string) error
}

// GoogleSheet is a Sheet backed by one spreadsheet.
type GoogleSheet struct {
	svc           *gsheets.Service
	spreadsheetID string
}

// NewGoogleSheet builds the Sheets client. Credential problems fail here.
func NewGoogleSheet(ctx context.Context, cfg config.GoogleConfig) (*GoogleSheet, error) {
	if cfg.GetSheetsSpreadsheetID() == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id not configured")
	}
	client, err := googleauth.HTTPClient(ctx, cfg, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("sheets credentials: %w", err)
	}
	return newGoogleSheet(ctx, cfg.GetSheetsSpreadsheetID(), option.WithHTTPClient(client))
}

func newGoogleSheet(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*GoogleSheet, error) {
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &GoogleSheet{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// ReadRange returns the formatted cell values of rng as strings.
func (s *GoogleSheet) ReadRange(ctx context.Context, rng string) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", rng, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			if cell != nil {
				row[i] = fmt.Sprint(cell)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteRange overwrites rng with rows using RAW input, so nothing is parsed as a formula.
func (s *GoogleSheet) WriteRange(ctx context.Context, rng string, rows [][]string) error {
	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = v
		}
		values = append(values, cells)
	}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write range %s: %w", rng, err)
	}
	return nil
}

var _ Sheet = (*GoogleSheet)(nil)
