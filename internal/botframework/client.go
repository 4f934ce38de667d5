package botframework

import (
	"bytes"
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
)

// ErrUpdateRejected is returned when the connector refuses an in-place
// activity update.
var ErrUpdateRejected = errors.New("activity update rejected")

const connectorScope = "https://api.botframework.com/.default"

// Credentials is the bot's identity with the connector.
type Credentials struct {
	AppID       string
	AppPassword string
	// TenantID selects a single-tenant app; empty means botframework.com.
	TenantID string
	// TokenURL overrides the token endpoint derived from TenantID.
	TokenURL string
}

func (c Credentials) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	tenant := c.TenantID
	if tenant == "" {
		tenant = "botframework.com"
	}
	return "https://login.microsoftonline.com/" + tenant + "/oauth2/v2.0/token"
}

type Client struct {
	httpClient *http.Client
}

// NewClient uses httpClient as is; it must already attach credentials.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient}
}

// NewAuthenticatedClient returns a client that fetches and caches a
// client-credentials token for the connector. The token is refreshed once
// it is within ten seconds of expiry.
func NewAuthenticatedClient(ctx context.Context, creds Credentials, timeout time.Duration) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     creds.AppID,
		ClientSecret: creds.AppPassword,
		TokenURL:     creds.tokenURL(),
		Scopes:       []string{connectorScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	hc := oauth2.NewClient(ctx, cfg.TokenSource(ctx))
	hc.Timeout = timeout
	return &Client{httpClient: hc}
}

// Send posts activity to the conversation in ref. When the activity is a
// reply (ReplyToID set) it is threaded under that activity.
func (c *Client) Send(ctx context.Context, ref ConversationReference, activity *Activity) (*ResourceResponse, error) {
	ApplyReference(activity, ref)

	path := "/v3/conversations/" + url.PathEscape(ref.Conversation.ID) + "/activities"
	if activity.ReplyToID != "" {
		path += "/" + url.PathEscape(activity.ReplyToID)
	}

	var result ResourceResponse
	if err := c.doJSON(ctx, http.MethodPost, ref.ServiceURL, path, activity, &result); err != nil {
		return nil, fmt.Errorf("send activity: %w", err)
	}
	return &result, nil
}

// Update replaces a previously sent activity in place.
func (c *Client) Update(ctx context.Context, ref ConversationReference, activityID string, activity *Activity) error {
	if activityID == "" {
		return fmt.Errorf("update activity: %w: no activity id", ErrUpdateRejected)
	}
	ApplyReference(activity, ref)
	activity.ID = activityID

	path := "/v3/conversations/" + url.PathEscape(ref.Conversation.ID) + "/activities/" + url.PathEscape(activityID)
	err := c.doJSON(ctx, http.MethodPut, ref.ServiceURL, path, activity, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return fmt.Errorf("update activity: %w: %w", ErrUpdateRejected, err)
		}
		return fmt.Errorf("update activity: %w", err)
	}
	return nil
}

// APIError is a non-2xx connector response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

func (c *Client) doJSON(ctx context.Context, method, baseURL, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(baseURL, "/")+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func errMissing(field string) error {
	return fmt.Errorf("activity is missing %s", field)
}
