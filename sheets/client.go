package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const defaultBaseURL = "https://sheets.googleapis.com/v4"

// Client is a thin wrapper over the Sheets REST API: just the endpoints
// the sync service needs, with bearer auth from the injected TokenSource.
type Client struct {
	SpreadsheetID string
	BaseURL       string       // overridable for tests
	HTTPClient    *http.Client // defaults to http.DefaultClient
	Tokens        TokenSource
}

func NewClient(spreadsheetID string, tokens TokenSource) (*Client, error) {
	if spreadsheetID == "" {
		return nil, newError(CodeConfig, "missing spreadsheet ID")
	}
	return &Client{SpreadsheetID: spreadsheetID, Tokens: tokens}, nil
}

type SheetProperties struct {
	SheetID int64  `json:"sheetId"`
	Title   string `json:"title"`
}

type Sheet struct {
	Properties SheetProperties `json:"properties"`
}

type Spreadsheet struct {
	Sheets []Sheet `json:"sheets"`
}

type GridRange struct {
	SheetID          int64 `json:"sheetId"`
	StartRowIndex    int64 `json:"startRowIndex,omitempty"`
	EndRowIndex      int64 `json:"endRowIndex,omitempty"`
	StartColumnIndex int64 `json:"startColumnIndex,omitempty"`
	EndColumnIndex   int64 `json:"endColumnIndex,omitempty"`
}

type DimensionRange struct {
	SheetID    int64  `json:"sheetId"`
	Dimension  string `json:"dimension"`
	StartIndex int64  `json:"startIndex"`
	EndIndex   int64  `json:"endIndex"`
}

type SortSpec struct {
	DimensionIndex int64  `json:"dimensionIndex"`
	SortOrder      string `json:"sortOrder"`
}

// Request is one entry of a batchUpdate call; exactly one field is set.
type Request struct {
	AddSheet *struct {
		Properties SheetProperties `json:"properties"`
	} `json:"addSheet,omitempty"`
	DeleteDimension *struct {
		Range DimensionRange `json:"range"`
	} `json:"deleteDimension,omitempty"`
	SortRange *struct {
		Range     GridRange  `json:"range"`
		SortSpecs []SortSpec `json:"sortSpecs"`
	} `json:"sortRange,omitempty"`
}

func AddSheetRequest(title string) Request {
	var r Request
	r.AddSheet = &struct {
		Properties SheetProperties `json:"properties"`
	}{Properties: SheetProperties{Title: title}}
	return r
}

func DeleteRowRequest(sheetID, rowIndex int64) Request {
	var r Request
	r.DeleteDimension = &struct {
		Range DimensionRange `json:"range"`
	}{Range: DimensionRange{
		SheetID:    sheetID,
		Dimension:  "ROWS",
		StartIndex: rowIndex - 1,
		EndIndex:   rowIndex,
	}}
	return r
}

func SortRangeRequest(sheetID int64, columnCount int64, specs []SortSpec) Request {
	var r Request
	r.SortRange = &struct {
		Range     GridRange  `json:"range"`
		SortSpecs []SortSpec `json:"sortSpecs"`
	}{
		Range: GridRange{
			SheetID:        sheetID,
			StartRowIndex:  1, // skip header row
			EndColumnIndex: columnCount,
		},
		SortSpecs: specs,
	}
	return r
}

type BatchUpdateResponse struct {
	Replies []struct {
		AddSheet *struct {
			Properties SheetProperties `json:"properties"`
		} `json:"addSheet"`
	} `json:"replies"`
}

// Metadata fetches the spreadsheet's sheet list.
func (c *Client) Metadata(ctx context.Context) (*Spreadsheet, error) {
	var out Spreadsheet
	if err := c.do(ctx, http.MethodGet, "/spreadsheets/"+c.SpreadsheetID, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) BatchUpdate(ctx context.Context, requests []Request) (*BatchUpdateResponse, error) {
	var out BatchUpdateResponse
	body := map[string]interface{}{"requests": requests}
	if err := c.do(ctx, http.MethodPost, "/spreadsheets/"+c.SpreadsheetID+":batchUpdate", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetValues reads a range. Cells come back as loosely typed JSON; they are
// flattened to strings since everything is written with RAW string input.
func (c *Client) GetValues(ctx context.Context, valueRange string) ([][]string, error) {
	var out struct {
		Values [][]interface{} `json:"values"`
	}
	path := "/spreadsheets/" + c.SpreadsheetID + "/values/" + url.PathEscape(valueRange)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	rows := make([][]string, len(out.Values))
	for i, raw := range out.Values {
		row := make([]string, len(raw))
		for j, cell := range raw {
			row[j] = fmt.Sprint(cell)
		}
		rows[i] = row
	}
	return rows, nil
}

// UpdateValues overwrites a range with RAW string values.
func (c *Client) UpdateValues(ctx context.Context, valueRange string, values [][]string) error {
	path := "/spreadsheets/" + c.SpreadsheetID + "/values/" + url.PathEscape(valueRange)
	query := url.Values{"valueInputOption": {"RAW"}}
	return c.do(ctx, http.MethodPut, path, query, map[string]interface{}{"values": values}, nil)
}

// AppendValues appends rows after the last data row of the range's table.
func (c *Client) AppendValues(ctx context.Context, valueRange string, values [][]string) error {
	path := "/spreadsheets/" + c.SpreadsheetID + "/values/" + url.PathEscape(valueRange) + ":append"
	query := url.Values{"valueInputOption": {"RAW"}, "insertDataOption": {"INSERT_ROWS"}}
	return c.do(ctx, http.MethodPost, path, query, map[string]interface{}{"values": values}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return err
	}

	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Message: "encode request body", Cause: err}
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return &Error{Message: "build request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return &Error{Message: "network error: " + err.Error(), Cause: err}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp, respBody)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &Error{Message: "decode response body", Cause: err}
		}
	}
	return nil
}
