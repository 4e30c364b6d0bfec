package syncagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal HTTP client for the collaboration API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) ListNotifications(ctx context.Context, cursor string, limit int) (NotificationPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := "notifications"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var page NotificationPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &page)
	return page, err
}

func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var resp struct {
		UnreadCount int64 `json:"unread_count"`
	}
	err := c.do(ctx, http.MethodGet, "notifications/unread-count", nil, &resp)
	return resp.UnreadCount, err
}

func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	var resp struct {
		Updated int64 `json:"updated"`
	}
	err := c.do(ctx, http.MethodPost, "notifications/read-all", nil, &resp)
	return resp.Updated, err
}

func (c *Client) ListCollaborations(ctx context.Context, status string) ([]Collaboration, error) {
	endpoint := "collaborations"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Collaborations []Collaboration `json:"collaborations"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Collaborations, err
}

func (c *Client) GetCollaboration(ctx context.Context, id string) (Collaboration, error) {
	var resp Collaboration
	err := c.do(ctx, http.MethodGet, c.collabPath(id, ""), nil, &resp)
	return resp, err
}

// ProposeParams opens a collaboration on post. Exactly one of Amount and
// Percentage is set.
type ProposeParams struct {
	Post               PostRef
	Amount             *float64
	Percentage         *float64
	ProposedCommission float64
	Message            string
	ContractText       string
}

func (c *Client) Propose(ctx context.Context, p ProposeParams) (Collaboration, error) {
	comp := Compensation{Type: "fixed", Amount: p.Amount}
	if p.Percentage != nil {
		comp = Compensation{Type: "percentage", Percentage: p.Percentage}
	}
	body := map[string]any{
		"post":                p.Post,
		"compensation":        comp,
		"proposed_commission": p.ProposedCommission,
		"message":             p.Message,
		"contract_text":       p.ContractText,
	}
	var resp Collaboration
	err := c.do(ctx, http.MethodPost, "collaborations", body, &resp)
	return resp, err
}

func (c *Client) Respond(ctx context.Context, id, decision string) (Collaboration, error) {
	var resp Collaboration
	err := c.do(ctx, http.MethodPost, c.collabPath(id, "respond"), map[string]any{"decision": decision}, &resp)
	return resp, err
}

func (c *Client) Activate(ctx context.Context, id string) (Collaboration, error) {
	var resp Collaboration
	err := c.do(ctx, http.MethodPost, c.collabPath(id, "activate"), nil, &resp)
	return resp, err
}

func (c *Client) Terminate(ctx context.Context, id, outcome string) (Collaboration, error) {
	var resp Collaboration
	err := c.do(ctx, http.MethodPost, c.collabPath(id, "terminate"), map[string]any{"outcome": outcome}, &resp)
	return resp, err
}

func (c *Client) UpdateContract(ctx context.Context, id, text string) (Collaboration, error) {
	var resp Collaboration
	err := c.do(ctx, http.MethodPut, c.collabPath(id, "contract"), map[string]any{"text": text}, &resp)
	return resp, err
}

// Sign reports whether both parties have signed after this signature.
func (c *Client) Sign(ctx context.Context, id string) (Collaboration, bool, error) {
	var resp struct {
		Collaboration Collaboration `json:"collaboration"`
		FullySigned   bool          `json:"fully_signed"`
	}
	err := c.do(ctx, http.MethodPost, c.collabPath(id, "contract/sign"), nil, &resp)
	return resp.Collaboration, resp.FullySigned, err
}

func (c *Client) ValidateStep(ctx context.Context, id, step, note string) (Collaboration, error) {
	var body any
	if note != "" {
		body = map[string]any{"note": note}
	}
	var resp Collaboration
	err := c.do(ctx, http.MethodPost, c.collabPath(id, "steps/"+url.PathEscape(step)+"/validate"), body, &resp)
	return resp, err
}

func (c *Client) AddNote(ctx context.Context, id, content, step string) (Collaboration, error) {
	var resp Collaboration
	err := c.do(ctx, http.MethodPost, c.collabPath(id, "notes"), map[string]any{"content": content, "step_key": step}, &resp)
	return resp, err
}

// WebSocketURL returns the push channel URL for the client's token.
func (c *Client) WebSocketURL() (string, error) {
	u, err := url.Parse(c.base())
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {c.Token}}.Encode()
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *Client) collabPath(id, suffix string) string {
	p := "collaborations/" + url.PathEscape(id)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
