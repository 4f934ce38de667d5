// Package directory reads users, managers and open tasks from the
// organisation directory (Microsoft Graph).
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"leavebot/internal/model"
)

var ErrNotFound = errors.New("not found in directory")

const (
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"
	graphScope     = "https://graph.microsoft.com/.default"

	// tokenRefreshWindow is how close to expiry a cached token is replaced.
	tokenRefreshWindow = 10 * time.Second
)

type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// TokenURL overrides the endpoint derived from TenantID.
	TokenURL string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient uses httpClient as is; it must already attach credentials.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// NewAuthenticatedClient returns a client holding one cached app token.
func NewAuthenticatedClient(ctx context.Context, baseURL string, creds Credentials, timeout time.Duration) *Client {
	tokenURL := creds.TokenURL
	if tokenURL == "" {
		tokenURL = "https://login.microsoftonline.com/" + creds.TenantID + "/oauth2/v2.0/token"
	}
	cfg := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	src := oauth2.ReuseTokenSourceWithExpiry(nil, cfg.TokenSource(ctx), tokenRefreshWindow)
	hc := oauth2.NewClient(ctx, src)
	hc.Timeout = timeout
	return NewClient(baseURL, hc)
}

type graphUser struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

func (u graphUser) toModel() *model.User {
	email := u.Mail
	if email == "" {
		email = u.UserPrincipalName
	}
	return &model.User{ID: u.ID, DisplayName: u.DisplayName, Email: email}
}

const userFields = "$select=id,displayName,mail,userPrincipalName"

// GetUser looks a user up by email or object id.
func (c *Client) GetUser(ctx context.Context, idOrEmail string) (*model.User, error) {
	var u graphUser
	if err := c.get(ctx, "/users/"+url.PathEscape(idOrEmail)+"?"+userFields, &u); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u.toModel(), nil
}

// GetManager returns the manager of the user. ErrNotFound when none is set.
func (c *Client) GetManager(ctx context.Context, idOrEmail string) (*model.User, error) {
	var u graphUser
	if err := c.get(ctx, "/users/"+url.PathEscape(idOrEmail)+"/manager?"+userFields, &u); err != nil {
		return nil, fmt.Errorf("get manager: %w", err)
	}
	return u.toModel(), nil
}

type graphList[T any] struct {
	Value []T `json:"value"`
}

type plannerTask struct {
	Title           string     `json:"title"`
	DueDateTime     *time.Time `json:"dueDateTime"`
	Priority        int        `json:"priority"`
	PercentComplete int        `json:"percentComplete"`
}

type todoList struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type todoTask struct {
	Title       string `json:"title"`
	Status      string `json:"status"`
	Importance  string `json:"importance"`
	DueDateTime *struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"dueDateTime"`
}

// ListOpenTasks returns the user's incomplete planner tasks and to-do items.
func (c *Client) ListOpenTasks(ctx context.Context, idOrEmail string) (model.TaskList, error) {
	var tasks model.TaskList
	user := "/users/" + url.PathEscape(idOrEmail)

	var planner graphList[plannerTask]
	if err := c.get(ctx, user+"/planner/tasks", &planner); err != nil {
		return tasks, fmt.Errorf("list planner tasks: %w", err)
	}
	for _, t := range planner.Value {
		if t.PercentComplete >= 100 {
			continue
		}
		task := model.Task{
			Title:           t.Title,
			Priority:        plannerPriority(t.Priority),
			PercentComplete: t.PercentComplete,
			Status:          plannerStatus(t.PercentComplete),
			Source:          model.TaskSourceAssigned,
		}
		if t.DueDateTime != nil {
			task.DueDate = t.DueDateTime.Format("2006-01-02")
		}
		tasks.Assigned = append(tasks.Assigned, task)
	}

	var lists graphList[todoList]
	if err := c.get(ctx, user+"/todo/lists", &lists); err != nil {
		return tasks, fmt.Errorf("list todo lists: %w", err)
	}
	filter := url.Values{"$filter": {"status ne 'completed'"}}.Encode()
	for _, l := range lists.Value {
		var items graphList[todoTask]
		if err := c.get(ctx, user+"/todo/lists/"+url.PathEscape(l.ID)+"/tasks?"+filter, &items); err != nil {
			return tasks, fmt.Errorf("list todo tasks %q: %w", l.DisplayName, err)
		}
		for _, t := range items.Value {
			if t.Status == "completed" {
				continue
			}
			task := model.Task{
				Title:    t.Title,
				Priority: t.Importance,
				Status:   t.Status,
				Source:   model.TaskSourceTodo,
			}
			if t.DueDateTime != nil && len(t.DueDateTime.DateTime) >= 10 {
				task.DueDate = t.DueDateTime.DateTime[:10]
			}
			tasks.Todo = append(tasks.Todo, task)
		}
	}
	return tasks, nil
}

// plannerPriority maps Planner's 0-10 scale to its four display buckets.
func plannerPriority(p int) string {
	switch {
	case p <= 1:
		return "urgent"
	case p <= 4:
		return "important"
	case p <= 7:
		return "medium"
	default:
		return "low"
	}
}

func plannerStatus(percent int) string {
	if percent == 0 {
		return "notStarted"
	}
	return "inProgress"
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
