package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned when no identity provider URL or service key is set.
var ErrNotConfigured = errors.New("identity provider is not configured")

// Error is a non-2xx answer from the identity provider.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity provider: %d %s", e.Status, e.Message)
}

// User is the subset of the provider's user object the backend reads.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateUserParams struct {
	Email    string
	Password string
	Name     string
}

// UpdateUserParams leaves nil fields untouched on the provider side.
type UpdateUserParams struct {
	Email    *string
	Password *string
}

// Client talks to the provider's admin user endpoints with the service key.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func NewClient(baseURL, serviceKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) configured() bool {
	return c != nil && c.baseURL != "" && c.serviceKey != ""
}

func (c *Client) CreateUser(ctx context.Context, p CreateUserParams) (*User, error) {
	body := map[string]interface{}{
		"email":         p.Email,
		"password":      p.Password,
		"email_confirm": true,
		"user_metadata": map[string]string{"name": p.Name},
	}
	var u User
	if err := c.do(ctx, http.MethodPost, "/auth/v1/admin/users", body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) UpdateUser(ctx context.Context, id uuid.UUID, p UpdateUserParams) error {
	body := map[string]interface{}{}
	if p.Email != nil {
		body["email"] = *p.Email
	}
	if p.Password != nil {
		body["password"] = *p.Password
	}
	if len(body) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPut, "/auth/v1/admin/users/"+id.String(), body, nil)
}

func (c *Client) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/auth/v1/admin/users/"+id.String(), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if !c.configured() {
		return ErrNotConfigured
	}

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read identity response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Status: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode identity response: %w", err)
		}
	}
	return nil
}

// errorMessage picks the first populated message field the provider uses.
func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, m := range []string{payload.Msg, payload.Message, payload.ErrorDescription, payload.Error} {
			if m != "" {
				return m
			}
		}
	}
	return fallback
}
