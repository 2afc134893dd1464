// Package gsheets is a core.TableClient backed by the Google Sheets API v4.
package gsheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/JonMunkholm/sheetsync/internal/a1"
	"github.com/JonMunkholm/sheetsync/internal/core"
)

// Client talks to one spreadsheet.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

// New creates a client for spreadsheetID. Without options it uses
// application default credentials; pass option.WithCredentialsFile for a
// service account key.
func New(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Client, error) {
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetIDs: make(map[string]int64)}, nil
}

// Read implements core.TableClient.
func (c *Client) Read(ctx context.Context, rng a1.Range) ([][]any, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng.String()).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, classify(fmt.Sprintf("read %s", rng), err)
	}
	return resp.Values, nil
}

// BatchRead implements core.TableClient.
func (c *Client) BatchRead(ctx context.Context, rngs []a1.Range) ([][][]any, error) {
	if len(rngs) == 0 {
		return nil, nil
	}
	names := make([]string, len(rngs))
	for i, r := range rngs {
		names[i] = r.String()
	}
	resp, err := c.svc.Spreadsheets.Values.BatchGet(c.spreadsheetID).
		Ranges(names...).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, classify("batch read", err)
	}
	if len(resp.ValueRanges) != len(rngs) {
		return nil, fmt.Errorf("batch read: got %d ranges, want %d", len(resp.ValueRanges), len(rngs))
	}
	out := make([][][]any, len(rngs))
	for i, vr := range resp.ValueRanges {
		out[i] = vr.Values
	}
	return out, nil
}

// BatchWrite implements core.TableClient with one values.batchUpdate call.
func (c *Client) BatchWrite(ctx context.Context, writes []core.PendingWrite) error {
	if len(writes) == 0 {
		return nil
	}
	data := make([]*sheets.ValueRange, len(writes))
	for i, w := range writes {
		data[i] = &sheets.ValueRange{Range: w.Range.String(), Values: w.Values}
	}
	_, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return classify("batch write", err)
	}
	return nil
}

// SheetID implements core.TableClient. Ids are cached per client.
func (c *Client) SheetID(ctx context.Context, name string) (int64, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[name]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).Do()
	if err != nil {
		return 0, classify("get spreadsheet", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
		}
	}
	id, ok = c.sheetIDs[name]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found", name)
	}
	return id, nil
}

// ApplyFormat implements core.TableClient with a repeatCell request.
func (c *Client) ApplyFormat(ctx context.Context, sheetID int64, rng a1.Range, format core.CellFormat) error {
	cf := &sheets.CellFormat{}
	var fields []string
	if format.Background != nil {
		cf.BackgroundColor = &sheets.Color{
			Red:   format.Background.Red,
			Green: format.Background.Green,
			Blue:  format.Background.Blue,
		}
		fields = append(fields, "userEnteredFormat.backgroundColor")
	}
	if format.NumberPattern != "" {
		cf.NumberFormat = &sheets.NumberFormat{Type: "PERCENT", Pattern: format.NumberPattern}
		fields = append(fields, "userEnteredFormat.numberFormat")
	}
	if len(fields) == 0 {
		return nil
	}

	mask := fields[0]
	for _, f := range fields[1:] {
		mask += "," + f
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			RepeatCell: &sheets.RepeatCellRequest{
				Range:  GridRange(sheetID, rng),
				Cell:   &sheets.CellData{UserEnteredFormat: cf},
				Fields: mask,
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return classify("apply format", err)
	}
	return nil
}

// GridRange converts an A1 range into the API's zero-based, end-exclusive
// grid range. Open ends are left unbounded.
func GridRange(sheetID int64, rng a1.Range) *sheets.GridRange {
	gr := &sheets.GridRange{
		SheetId:          sheetID,
		StartRowIndex:    int64(rng.StartRow - 1),
		StartColumnIndex: int64(rng.StartCol),
		ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
	}
	if rng.EndRow != a1.Open {
		gr.EndRowIndex = int64(rng.EndRow)
	}
	if rng.EndCol != a1.Open {
		gr.EndColumnIndex = int64(rng.EndCol + 1)
	}
	return gr
}

// classify maps API throttling onto the core error types.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests:
			return &core.RateLimitError{Err: fmt.Errorf("%s: %w", op, err)}
		case http.StatusServiceUnavailable:
			return &core.TransientNetworkError{StatusCode: gerr.Code, Err: fmt.Errorf("%s: %w", op, err)}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
