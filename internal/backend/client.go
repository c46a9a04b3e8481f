// Package backend is the REST client for the cat monitoring API.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	fastshot "github.com/opus-domini/fast-shot"
)

const (
	DefaultBaseURL = "http://localhost:5000"
	defaultTimeout = 10 * time.Second

	pathCats            = "/api/cats"
	pathRooms           = "/api/rooms"
	pathAlerts          = "/api/alerts"
	pathAlertsMarkRead  = "/api/alerts/mark_read"
	pathAlertsMarkAll   = "/api/alerts/mark_all_read"
	pathAlertsDelete    = "/api/alerts/delete"
	pathStatistics      = "/api/statistics"
	pathStatisticsYears = "/api/statistics/years"
	pathVideoFeed       = "/video_feed"
)

var ErrEmptyIDs = errors.New("at least one alert id is required")

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Code    int
	Path    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Path, e.Code)
}

type Options struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	http    fastshot.ClientHttpMethods
	baseURL string
}

func New(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := fastshot.NewClient(base).
		Config().SetTimeout(timeout).
		Header().Add("Accept", "application/json").
		Build()
	return &Client{http: httpClient, baseURL: base}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Cats(ctx context.Context) ([]Cat, error) {
	var out []Cat
	resp, err := c.http.GET(pathCats).Context().Set(ctx).Send()
	if err := finish(pathCats, resp, err, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Rooms(ctx context.Context) ([]Room, error) {
	var out []Room
	resp, err := c.http.GET(pathRooms).Context().Set(ctx).Send()
	if err := finish(pathRooms, resp, err, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Alerts lists alerts; an empty Cat means every cat and a nil IncludeRead
// leaves the backend default (read alerts included).
func (c *Client) Alerts(ctx context.Context, q AlertQuery) ([]Alert, error) {
	req := c.http.GET(pathAlerts).Context().Set(ctx)
	if cat := strings.TrimSpace(q.Cat); cat != "" {
		req = req.Query().AddParam("cat", cat)
	}
	if q.IncludeRead != nil {
		req = req.Query().AddParam("include_read", flagParam(*q.IncludeRead))
	}
	resp, err := req.Send()
	var out []Alert
	if err := finish(pathAlerts, resp, err, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type idsBody struct {
	IDs []int64 `json:"ids"`
}

func (c *Client) MarkRead(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return ErrEmptyIDs
	}
	resp, err := c.http.PATCH(pathAlertsMarkRead).
		Context().Set(ctx).
		Body().AsJSON(idsBody{IDs: ids}).
		Send()
	return finish(pathAlertsMarkRead, resp, err, nil)
}

func (c *Client) MarkAllRead(ctx context.Context, cat string) error {
	req := c.http.PATCH(pathAlertsMarkAll).Context().Set(ctx)
	if cat = strings.TrimSpace(cat); cat != "" {
		req = req.Query().AddParam("cat", cat)
	}
	resp, err := req.Send()
	return finish(pathAlertsMarkAll, resp, err, nil)
}

// Delete asks the backend to remove ids. Callers treat Deleted <= 0 as a
// rejected delete.
func (c *Client) Delete(ctx context.Context, ids []int64) (DeleteResult, error) {
	if len(ids) == 0 {
		return DeleteResult{}, ErrEmptyIDs
	}
	resp, err := c.http.DELETE(pathAlertsDelete).
		Context().Set(ctx).
		Body().AsJSON(idsBody{IDs: ids}).
		Send()
	var out DeleteResult
	if err := finish(pathAlertsDelete, resp, err, &out); err != nil {
		return DeleteResult{}, err
	}
	return out, nil
}

func (c *Client) Statistics(ctx context.Context, p StatisticsParams) (Statistics, error) {
	req := c.http.GET(pathStatistics).Context().Set(ctx)
	for _, kv := range [][2]string{
		{"cat", p.Cat},
		{"period", p.Period},
		{"year", p.Year},
		{"month", p.Month},
		{"start_year", p.StartYear},
		{"end_year", p.EndYear},
	} {
		if v := strings.TrimSpace(kv[1]); v != "" {
			req = req.Query().AddParam(kv[0], v)
		}
	}
	resp, err := req.Send()
	var out Statistics
	if err := finish(pathStatistics, resp, err, &out); err != nil {
		return Statistics{}, err
	}
	return out, nil
}

// StatisticsYears returns every year with recorded activity, ascending.
func (c *Client) StatisticsYears(ctx context.Context) ([]int, error) {
	resp, err := c.http.GET(pathStatisticsYears).Context().Set(ctx).Send()
	var out struct {
		Years []int `json:"years"`
	}
	if err := finish(pathStatisticsYears, resp, err, &out); err != nil {
		return nil, err
	}
	return out.Years, nil
}

// FeedURL is the MJPEG stream of one camera of a room.
func (c *Client) FeedURL(room string, index int) string {
	return c.baseURL + pathVideoFeed + "/" + url.PathEscape(room) + "/" + strconv.Itoa(index)
}

func finish(path string, resp *fastshot.Response, sendErr error, out any) error {
	if sendErr != nil {
		return fmt.Errorf("%s: %w", path, sendErr)
	}
	defer resp.Body().Close()

	if resp.Status().IsError() {
		var body struct {
			Message string `json:"message"`
		}
		_ = resp.Body().AsJSON(&body)
		return &StatusError{Code: resp.Status().Code(), Path: path, Message: body.Message}
	}
	if out == nil {
		return nil
	}
	if err := resp.Body().AsJSON(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}

func flagParam(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
