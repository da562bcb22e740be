// Package backend is the HTTP client for the reservation service that
// actually moves furniture.  It speaks the unassign, assign, pool-data and
// preferences-match endpoints and classifies failures into transport
// errors and business rejections.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/venue-reassignment/internal/model"
)

// DefaultCSRFHeader is the header carrying the anti-forgery token.
const DefaultCSRFHeader = "X-CSRFToken"

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 1 << 20

// MoveRequest is the body of the unassign and assign endpoints.
type MoveRequest struct {
	ReservationID uint64   `json:"reservation_id"`
	FurnitureIDs  []uint64 `json:"furniture_ids"`
	Date          string   `json:"date"`
}

// UnassignResult is a successful unassign response.  FurnitureIDs lists
// what the backend actually released, which may differ from the request.
type UnassignResult struct {
	UnassignedCount int
	FurnitureIDs    []uint64
}

// AssignResult is a successful assign response.
type AssignResult struct {
	FurnitureIDs []uint64
	Message      string
}

type moveResponse struct {
	Success         bool     `json:"success"`
	UnassignedCount int      `json:"unassigned_count"`
	FurnitureIDs    []uint64 `json:"furniture_ids"`
	Message         string   `json:"message"`
	Error           string   `json:"error"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenSource
	CSRFHeader string
	Cache      *PrefCache
}

// Client talks to the reservation backend.
type Client struct {
	base       *url.URL
	http       *http.Client
	tokens     TokenSource
	csrfHeader string
	cache      *PrefCache
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("backend: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: parse base URL: %w", err)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	header := opts.CSRFHeader
	if header == "" {
		header = DefaultCSRFHeader
	}
	return &Client{base: base, http: hc, tokens: opts.Tokens, csrfHeader: header, cache: opts.Cache}, nil
}

// Unassign releases furniture from a reservation.
func (c *Client) Unassign(ctx context.Context, req MoveRequest) (UnassignResult, error) {
	var resp moveResponse
	if err := c.postMove(ctx, "unassign", req, &resp); err != nil {
		return UnassignResult{}, err
	}
	c.cache.InvalidateDate(ctx, req.Date)
	return UnassignResult{UnassignedCount: resp.UnassignedCount, FurnitureIDs: resp.FurnitureIDs}, nil
}

// Assign gives furniture to a reservation.
func (c *Client) Assign(ctx context.Context, req MoveRequest) (AssignResult, error) {
	var resp moveResponse
	if err := c.postMove(ctx, "assign", req, &resp); err != nil {
		return AssignResult{}, err
	}
	c.cache.InvalidateDate(ctx, req.Date)
	return AssignResult{FurnitureIDs: resp.FurnitureIDs, Message: resp.Message}, nil
}

func (c *Client) postMove(ctx context.Context, op string, req MoveRequest, out *moveResponse) error {
	body, err := json.Marshal(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(op, nil), bytes.NewReader(body))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("anti-forgery token: %w", err)}
		}
		httpReq.Header.Set(c.csrfHeader, tok)
	}

	status, raw, err := c.do(httpReq, op)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Op: op, Status: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !out.Success {
		if out.Error != "" && status < http.StatusInternalServerError {
			return &RejectionError{Op: op, Message: out.Error}
		}
		return &TransportError{Op: op, Status: status, Err: errors.New(firstNonEmpty(out.Error, "unsuccessful response"))}
	}
	if status >= http.StatusMultipleChoices {
		return &TransportError{Op: op, Status: status, Err: errors.New("unexpected status")}
	}
	return nil
}

// PoolData loads the reservation's current furniture and headcount.
// Fields the engine does not use are returned in Display.
func (c *Client) PoolData(ctx context.Context, reservationID uint64, date string) (model.ReservationSnapshot, error) {
	const op = "pool-data"
	q := url.Values{}
	q.Set("reservation_id", strconv.FormatUint(reservationID, 10))
	q.Set("date", date)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(op, q), nil)
	if err != nil {
		return model.ReservationSnapshot{}, &TransportError{Op: op, Err: err}
	}
	status, raw, err := c.do(httpReq, op)
	if err != nil {
		return model.ReservationSnapshot{}, err
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		var re *RejectionError
		if errors.As(err, &re) {
			return model.ReservationSnapshot{}, err
		}
		return model.ReservationSnapshot{}, &TransportError{Op: op, Status: status, Err: err}
	}
	if status >= http.StatusMultipleChoices {
		return model.ReservationSnapshot{}, &TransportError{Op: op, Status: status, Err: errors.New("unexpected status")}
	}
	if snap.ReservationID == 0 {
		snap.ReservationID = reservationID
	}
	return snap, nil
}

// PreferencesMatch returns the furniture matching prefs on date.  Results
// are served from the cache when one is configured.
func (c *Client) PreferencesMatch(ctx context.Context, date string, prefs []string) ([]uint64, error) {
	const op = "preferences-match"
	if ids, ok := c.cache.Get(ctx, date, prefs); ok {
		return ids, nil
	}
	q := url.Values{}
	q.Set("date", date)
	q.Set("preferences", strings.Join(prefs, ","))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(op, q), nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	status, raw, err := c.do(httpReq, op)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusMultipleChoices {
		return nil, &TransportError{Op: op, Status: status, Err: errors.New("unexpected status")}
	}
	var body struct {
		Furniture []uint64 `json:"furniture"`
		Error     string   `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, &TransportError{Op: op, Status: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if body.Error != "" {
		return nil, &RejectionError{Op: op, Message: body.Error}
	}
	if body.Furniture == nil {
		body.Furniture = []uint64{}
	}
	c.cache.Set(ctx, date, prefs, body.Furniture)
	return body.Furniture, nil
}

func (c *Client) endpoint(op string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + op
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do sends req and returns the status and body.  Server errors whose body
// is not JSON are transport failures; everything else is left to the
// caller to interpret.
func (c *Client) do(req *http.Request, op string) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("backend: %s %s failed: %v", req.Method, op, err)
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode >= http.StatusInternalServerError && !json.Valid(raw) {
		log.Printf("backend: %s %s returned %d", req.Method, op, resp.StatusCode)
		return resp.StatusCode, nil, &TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	return resp.StatusCode, raw, nil
}

// decodeSnapshot reads a pool-data body.  Known keys are mapped onto the
// snapshot; everything else is kept as display data.
func decodeSnapshot(raw []byte) (model.ReservationSnapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.ReservationSnapshot{}, fmt.Errorf("decode response: %w", err)
	}
	var snap model.ReservationSnapshot
	if msg, ok := fields["error"]; ok {
		var text string
		if err := json.Unmarshal(msg, &text); err == nil && text != "" {
			return snap, &RejectionError{Op: "pool-data", Message: text}
		}
	}
	if v, ok := fields["original_furniture"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &snap.Furniture); err != nil {
			return snap, fmt.Errorf("decode original_furniture: %w", err)
		}
	}
	if v, ok := fields["num_people"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &snap.NumPeople); err != nil {
			return snap, fmt.Errorf("decode num_people: %w", err)
		}
	}
	if v, ok := fields["reservation_id"]; ok {
		_ = json.Unmarshal(v, &snap.ReservationID)
	}
	if v, ok := fields["preferences"]; ok {
		snap.Preferences = decodePreferences(v)
	}

	snap.Display = map[string]any{}
	for k, v := range fields {
		switch k {
		case "original_furniture", "num_people", "reservation_id", "preferences", "error":
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err == nil {
			snap.Display[k] = val
		}
	}
	return snap, nil
}

// decodePreferences accepts either a JSON array of codes or a CSV string.
func decodePreferences(v json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		return cleanCodes(list)
	}
	var csv string
	if err := json.Unmarshal(v, &csv); err == nil {
		return cleanCodes(strings.Split(csv, ","))
	}
	return nil
}

func cleanCodes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
