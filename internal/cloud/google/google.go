// Package google stores sync records in a Google Sheets spreadsheet, one sheet
// per record type plus an Assets sheet for detached avatars.
package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"moneta/internal/cloud"
)

type Config struct {
	SpreadsheetID   string
	UsersSheet      string
	CategoriesSheet string
	AssetsSheet     string
	CredentialsJSON []byte
}

func (c *Config) applyDefaults() {
	if c.UsersSheet == "" {
		c.UsersSheet = "Users"
	}
	if c.CategoriesSheet == "" {
		c.CategoriesSheet = "Categories"
	}
	if c.AssetsSheet == "" {
		c.AssetsSheet = "Assets"
	}
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheets        map[cloud.RecordType]string
	assetsSheet   string
}

var _ cloud.Backend = (*Client)(nil)

// New creates a Sheets-backed store authenticated with service-account
// credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if len(cfg.CredentialsJSON) == 0 {
		return nil, errors.New("missing service account credentials")
	}

	creds, err := gauth.CredentialsFromJSON(ctx, cfg.CredentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	// Token refreshes and API calls share the pooled transport.
	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	httpClient := oauth2.NewClient(base, creds.TokenSource)

	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets store created",
		"spreadsheet_id", cfg.SpreadsheetID,
		"client_email", clientEmail(creds))

	return newWithService(svc, cfg), nil
}

func newWithService(svc *gsheet.Service, cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheets: map[cloud.RecordType]string{
			cloud.RecordUser:     cfg.UsersSheet,
			cloud.RecordCategory: cfg.CategoriesSheet,
		},
		assetsSheet: cfg.AssetsSheet,
	}
}

func clientEmail(creds *gauth.Credentials) string {
	if creds == nil || creds.JSON == nil {
		return ""
	}
	cfg, err := gauth.JWTConfigFromJSON(creds.JSON)
	if err != nil {
		return ""
	}
	return cfg.Email
}

// newHTTPClientWithPooling returns an HTTP client tuned for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// classify maps Sheets API and transport errors onto the cloud taxonomy.
func classify(op string, rt cloud.RecordType, id string, err error) error {
	if err == nil {
		return nil
	}
	kind := cloud.KindNetwork
	var (
		gerr *googleapi.Error
		rerr *oauth2.RetrieveError
	)
	switch {
	case errors.As(err, &rerr):
		kind = cloud.KindAuth
	case errors.As(err, &gerr):
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = cloud.KindAuth
		case http.StatusNotFound:
			kind = cloud.KindNotFound
		}
	}
	return cloud.NewError(op, kind, rt, id, err)
}

func (c *Client) sheetFor(rt cloud.RecordType) (string, []string, error) {
	cols, err := columnsFor(rt)
	if err != nil {
		return "", nil, err
	}
	return c.sheets[rt], cols, nil
}

func (c *Client) readRows(ctx context.Context, sheet string, width int) ([][]any, error) {
	rng := fmt.Sprintf("%s!A2:%s", sheet, lastColumn(width))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *Client) QueryAll(ctx context.Context, rt cloud.RecordType) ([]cloud.Record, error) {
	sheet, cols, err := c.sheetFor(rt)
	if err != nil {
		return nil, err
	}
	rows, err := c.readRows(ctx, sheet, len(cols))
	if err != nil {
		return nil, classify("query", rt, "", err)
	}

	out := make([]cloud.Record, 0, len(rows))
	for _, row := range rows {
		if rec, ok := parseRow(cols, row); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, rt cloud.RecordType, rec cloud.Record) error {
	sheet, cols, err := c.sheetFor(rt)
	if err != nil {
		return err
	}
	rng := fmt.Sprintf("%s!A:%s", sheet, lastColumn(len(cols)))
	vr := &gsheet.ValueRange{Values: [][]any{formatRow(cols, rec)}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return classify("create", rt, rec.ID, err)
	}
	slog.DebugContext(ctx, "Record appended to sheet", "sheet", sheet, "id", rec.ID)
	return nil
}

// Update rewrites the row holding id with the merged fields.
func (c *Client) Update(ctx context.Context, rt cloud.RecordType, id string, fields map[string]any) error {
	sheet, cols, err := c.sheetFor(rt)
	if err != nil {
		return err
	}
	rows, err := c.readRows(ctx, sheet, len(cols))
	if err != nil {
		return classify("update", rt, id, err)
	}

	for i, row := range rows {
		existing, ok := parseRow(cols, row)
		if !ok || existing.ID != id {
			continue
		}
		for k, v := range fields {
			existing.Fields[k] = v
		}
		rowNum := i + 2
		rng := fmt.Sprintf("%s!A%d:%s%d", sheet, rowNum, lastColumn(len(cols)), rowNum)
		vr := &gsheet.ValueRange{Values: [][]any{formatRow(cols, existing)}}
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return classify("update", rt, id, err)
		}
		return nil
	}
	return cloud.NewError("update", cloud.KindNotFound, rt, id, nil)
}

func (c *Client) FetchAsset(ctx context.Context, ref string) ([]byte, error) {
	rows, err := c.readRows(ctx, c.assetsSheet, 2)
	if err != nil {
		return nil, classify("fetch asset", "", ref, err)
	}
	encoded, ok := parseAssets(rows)[ref]
	if !ok {
		return nil, cloud.NewError("fetch asset", cloud.KindNotFound, "", ref, nil)
	}
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, cloud.NewError("fetch asset", cloud.KindPartialRecord, "", ref, err)
	}
	return b, nil
}
