package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/teesched/internal/task"
)

// Client consumes a remote registry server. It satisfies the coordinator's
// consumer-side view (List, SecureConfig, UpdateStatus), so a coordinator
// runs unchanged against a local store or a remote registry.
type Client struct {
	BaseURL string
	// Token is the plaintext operator token sent as a Bearer credential.
	Token string
	HTTP  *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) List(ctx context.Context) ([]task.Task, error) {
	var out []task.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id string) (task.Task, error) {
	var out task.Task
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+id, nil, &out)
	return out, err
}

func (c *Client) SecureConfig(ctx context.Context, id string) (task.Task, error) {
	var out SecureTask
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+id+"/secure-config", nil, &out); err != nil {
		return task.Task{}, err
	}
	t := out.Task
	t.Credentials = out.Credentials
	return t, nil
}

func (c *Client) UpdateStatus(ctx context.Context, id string, status task.Status, lastError string) error {
	body := statusRequest{Status: string(status), Error: lastError}
	return c.do(ctx, http.MethodPut, "/api/tasks/"+id+"/status", body, nil)
}

func (c *Client) Create(ctx context.Context, req CreateTask) (task.Task, error) {
	var out task.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks", req.wire(), &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+id, nil, nil)
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// CreateTask is the client-side creation request.
type CreateTask struct {
	Username   string
	Password   string
	Course     int
	Players    int
	Holes      int
	TimeStart  string
	TimeEnd    string
	TargetDate string
	OpensDate  string
	OpenHour   int
	OpenMinute int
}

func (r CreateTask) wire() createTaskRequest {
	h, m := r.OpenHour, r.OpenMinute
	return createTaskRequest{
		Username:   r.Username,
		Password:   r.Password,
		Course:     r.Course,
		Players:    r.Players,
		Holes:      r.Holes,
		TimeStart:  r.TimeStart,
		TimeEnd:    r.TimeEnd,
		TargetDate: r.TargetDate,
		OpensDate:  r.OpensDate,
		OpenHour:   &h,
		OpenMinute: &m,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var e errorResponse
	if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, e.Error)
		case http.StatusConflict:
			if strings.Contains(e.Error, "running") {
				return fmt.Errorf("%w: %s", ErrRunning, e.Error)
			}
			return fmt.Errorf("%w: %s", task.ErrBadTransition, e.Error)
		}
		return fmt.Errorf("registry: %s (HTTP %d)", e.Error, resp.StatusCode)
	}
	return fmt.Errorf("registry: HTTP %d", resp.StatusCode)
}
