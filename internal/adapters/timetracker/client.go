// Package timetracker is the HTTP client for the TimeTracker service: it
// authenticates, lists the project's work items and registers time entries.
package timetracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/pkg/logger"
	"github.com/okian/ttlink/pkg/metrics"
)

const (
	defaultTimeout = 30 * time.Second
	timeLayout     = "2006-01-02T15:04:05"
)

// Auth is an established session.
type Auth struct {
	Token  string
	UserID string
}

// Task is one time entry.
type Task struct {
	WorkItemID string
	Start      time.Time
	End        time.Time
	Memo       string
}

// Validate rejects empty or inverted ranges and bounds off the half hour.
func (t Task) Validate() error {
	if t.WorkItemID == "" {
		return fmt.Errorf("%w: work item id is empty", ErrInvalidTask)
	}
	if !t.Start.Before(t.End) {
		return fmt.Errorf("%w: start_time is greater than end_time", ErrInvalidTask)
	}
	if t.Start.Minute()%30 != 0 || t.Start.Second() != 0 {
		return fmt.Errorf("%w: start_time is not multiple of 30 minutes", ErrInvalidTask)
	}
	if t.End.Minute()%30 != 0 || t.End.Second() != 0 {
		return fmt.Errorf("%w: end_time is not multiple of 30 minutes", ErrInvalidTask)
	}
	return nil
}

// TaskFor builds the time entry for a linked pair with its bounds rounded
// onto half hour slots. An event that rounds to less than one slot yields
// ErrInvalidTask.
func TaskFor(p model.Pair, m RoundingMethod) (Task, error) {
	start, end, ok := Round(p.Event.Start, p.Event.End, m)
	if !ok {
		return Task{}, fmt.Errorf("%w: %s to %s is shorter than one slot after %s rounding",
			ErrInvalidTask, p.Event.Start.Format(time.Kitchen), p.Event.End.Format(time.Kitchen), m)
	}
	return Task{
		WorkItemID: p.WorkItem.ID,
		Start:      start,
		End:        end,
		Memo:       p.Event.Name,
	}, nil
}

// Client talks to one TimeTracker project as one user. It authenticates
// lazily and re-authenticates once when a token is rejected.
type Client struct {
	baseURL   string
	user      string
	password  string
	projectID string

	http         *http.Client
	limiter      *rate.Limiter
	assignedOnly bool
	rounding     RoundingMethod
	log          logger.Logger

	mu   sync.Mutex
	auth *Auth
}

// New creates a Client.
func New(baseURL, user, password, projectID string, opts ...Option) (*Client, error) {
	if baseURL == "" || user == "" || projectID == "" {
		return nil, fmt.Errorf("%w: base url, user and project id are required", ErrConfig)
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		user:         user,
		password:     password,
		projectID:    projectID,
		http:         &http.Client{Timeout: defaultTimeout},
		assignedOnly: true,
		rounding:     RoundBackward,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("timetracker")
	}
	return c, nil
}

// Authenticate obtains a token and resolves the user id.
func (c *Client) Authenticate(ctx context.Context) (Auth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) (Auth, error) {
	c.auth = nil

	var tok struct {
		Token string `json:"token"`
	}
	body := map[string]string{"loginname": c.user, "password": c.password}
	if err := c.do(ctx, "authenticate", http.MethodPost, "/auth/token", nil, body, &tok); err != nil {
		return Auth{}, err
	}
	if tok.Token == "" {
		return Auth{}, fmt.Errorf("%w: empty token", ErrAuth)
	}

	auth := Auth{Token: tok.Token}
	var me struct {
		ID        string `json:"id"`
		LoginName string `json:"loginName"`
	}
	if err := c.do(ctx, "current user", http.MethodGet, "/system/users/me", &auth, nil, &me); err != nil {
		return Auth{}, err
	}
	if me.LoginName != c.user || me.ID == "" {
		return Auth{}, fmt.Errorf("%w: user %q not resolved", ErrAuth, c.user)
	}
	auth.UserID = me.ID
	c.auth = &auth
	c.log.Info(ctx, "authenticated", logger.String("user", c.user))
	return auth, nil
}

func (c *Client) session(ctx context.Context) (Auth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auth != nil {
		return *c.auth, nil
	}
	return c.authenticateLocked(ctx)
}

// withSession runs fn with a session, retrying once on an auth failure.
func (c *Client) withSession(ctx context.Context, fn func(Auth) error) error {
	auth, err := c.session(ctx)
	if err != nil {
		return err
	}
	err = fn(auth)
	if !IsAuthError(err) {
		return err
	}
	c.log.Warn(ctx, "token rejected, re-authenticating")
	auth, err = c.Authenticate(ctx)
	if err != nil {
		return err
	}
	return fn(auth)
}

type workItemDTO struct {
	Fields struct {
		ID         string        `json:"Id"`
		Name       string        `json:"Name"`
		FolderName string        `json:"FolderName"`
		SubItems   []workItemDTO `json:"SubItems"`
	} `json:"fields"`
}

func (d workItemDTO) toModel(parentPath string) model.WorkItem {
	path := d.Fields.FolderName
	if parentPath != "" {
		path = parentPath + "/" + d.Fields.FolderName
	}
	wi := model.WorkItem{
		ID:         d.Fields.ID,
		Name:       d.Fields.Name,
		FolderName: d.Fields.FolderName,
		FolderPath: path,
	}
	for _, sub := range d.Fields.SubItems {
		wi.SubItems = append(wi.SubItems, sub.toModel(path))
	}
	return wi
}

// WorkItems returns the project's work item tree.
func (c *Client) WorkItems(ctx context.Context) ([]model.WorkItem, error) {
	q := url.Values{}
	q.Set("fields", "FolderName,Name")
	if c.assignedOnly {
		q.Set("assignedUsers", c.user)
	}
	q.Set("includeDeleted", "false")
	path := "/workitem/workItems/" + url.PathEscape(c.projectID) + "/subItems?" + q.Encode()

	var dtos []workItemDTO
	err := c.withSession(ctx, func(a Auth) error {
		dtos = nil
		return c.do(ctx, "work items", http.MethodGet, path, &a, nil, &dtos)
	})
	if err != nil {
		return nil, err
	}
	items := make([]model.WorkItem, 0, len(dtos))
	for _, d := range dtos {
		items = append(items, d.toModel(""))
	}
	c.log.Debug(ctx, "work items fetched", logger.Int("roots", len(items)))
	return items, nil
}

// RegisterTask validates and sends one time entry.
func (c *Client) RegisterTask(ctx context.Context, t Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	body := map[string]string{
		"workItemId": t.WorkItemID,
		"startTime":  t.Start.UTC().Format(timeLayout),
		"finishTime": t.End.UTC().Format(timeLayout),
		"memo":       t.Memo,
	}
	return c.withSession(ctx, func(a Auth) error {
		path := "/system/users/" + url.PathEscape(a.UserID) + "/timeEntries"
		return c.do(ctx, "register task", http.MethodPost, path, &a, body, nil)
	})
}

// Register rounds and sends the time entry for a linked pair.
func (c *Client) Register(ctx context.Context, p model.Pair) error {
	t, err := TaskFor(p, c.rounding)
	if err != nil {
		return err
	}
	return c.RegisterTask(ctx, t)
}

func (c *Client) do(ctx context.Context, op, method, path string, auth *Auth, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrRequest, op, err)
		}
	}

	var reader io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: %s: encode: %w", ErrRequest, op, err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRequest, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != nil {
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordErrorByComponent("timetracker", "transport")
		return fmt.Errorf("%w: %s: %w", ErrRequest, op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %w", ErrRequest, op, err)
	}
	c.log.Debug(ctx, "request done",
		logger.String("op", op),
		logger.Int("status", resp.StatusCode),
		logger.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordErrorByComponent("timetracker", "status_"+fmt.Sprint(resp.StatusCode))
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(payload)}
	}
	if out == nil || len(payload) == 0 {
		if out != nil {
			return fmt.Errorf("%w: %s: empty response", ErrRequest, op)
		}
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %s: Unknown response %s", ErrRequest, op, payload)
	}
	return nil
}

// errorMessage extracts the first message of a `[{"message": ...}]` body.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return "empty response"
	}
	var list []struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 && list[0].Message != "" {
		return list[0].Message
	}
	return "Unknown response " + string(body)
}
