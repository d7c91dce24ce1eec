package classeviva

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

	"github.com/savino/classeviva-HA-custom-integration/internal/models"
)

const DefaultBaseURL = "https://web.spaggiari.eu/rest/v1"

const (
	userAgent = "zorro/1.0"
	apiKey    = "+zorro+"
)

// agenda endpoint date format: YYYYMMDD
const dateFmt = "20060102"

// AuthError means the remote rejected the credentials at login.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return "classeviva: authentication failed: " + e.Msg }

// errTokenExpired is the internal expiry signal; callers see it only after
// the single re-login attempt has also failed.
var errTokenExpired = errors.New("auth token expired")

// Session holds the state established by a successful login.
type Session struct {
	Token     string
	StudentID string
	FirstName string
	LastName  string
}

// Client talks to the ClasseViva REST API for a single student account.
// It owns the session token and the re-authentication retry: any read that
// reports token expiry triggers exactly one re-login followed by one retry.
type Client struct {
	httpc    *http.Client
	baseURL  string
	username string
	password string
	session  *Session
}

func New(baseURL, username, password string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpc:    &http.Client{Timeout: 30 * time.Second},
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
	}
}

// Session returns the current session, or nil before the first login.
func (c *Client) Session() *Session { return c.session }

type loginResponse struct {
	Token     string `json:"token"`
	Ident     string `json:"ident"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Error     string `json:"error"`
}

// Login authenticates and stores the session. The composite ident string is
// reduced to its digits to obtain the numeric student id.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	body, err := json.Marshal(map[string]string{"uid": c.username, "pass": c.password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Z-Dev-Apikey", apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("login: decode response: %w", err)
	}
	if strings.Contains(strings.ToLower(lr.Error), "authentication failed") {
		return nil, &AuthError{Msg: lr.Error}
	}
	if lr.Token == "" {
		return nil, fmt.Errorf("login: no token in response")
	}
	c.session = &Session{
		Token:     lr.Token,
		StudentID: digitsOnly(lr.Ident),
		FirstName: lr.FirstName,
		LastName:  lr.LastName,
	}
	return c.session, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (c *Client) studentURL(segs ...string) string {
	sid := ""
	if c.session != nil {
		sid = c.session.StudentID
	}
	return c.baseURL + "/students/" + sid + "/" + strings.Join(segs, "/")
}

func (c *Client) authHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Z-Dev-Apikey", apiKey)
	token := ""
	if c.session != nil {
		token = c.session.Token
	}
	req.Header.Set("Z-Auth-Token", token)
}

func expired(errField string) bool {
	return strings.Contains(strings.ToLower(errField), "auth token expired")
}

// getOnce performs a single GET and decodes the JSON body into out.
// A body whose error field signals token expiry yields errTokenExpired.
func (c *Client) getOnce(ctx context.Context, out any, segs ...string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.studentURL(segs...), nil)
	if err != nil {
		return err
	}
	c.authHeaders(req)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && expired(env.Error) {
		return errTokenExpired
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", strings.Join(segs, "/"), err)
	}
	return nil
}

// get retries exactly once after a token expiry: re-login, then repeat the
// request. A second expiry propagates as a hard failure.
func (c *Client) get(ctx context.Context, out any, segs ...string) error {
	err := c.getOnce(ctx, out, segs...)
	if !errors.Is(err, errTokenExpired) {
		return err
	}
	if _, err := c.Login(ctx); err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	if err := c.getOnce(ctx, out, segs...); err != nil {
		if errors.Is(err, errTokenExpired) {
			return fmt.Errorf("%s: token expired again after refresh", strings.Join(segs, "/"))
		}
		return err
	}
	return nil
}

func (c *Client) Grades(ctx context.Context) ([]models.Grade, error) {
	var resp struct {
		Grades []models.Grade `json:"grades"`
	}
	if err := c.get(ctx, &resp, "grades"); err != nil {
		return nil, err
	}
	return resp.Grades, nil
}

func (c *Client) Absences(ctx context.Context) ([]models.Absence, error) {
	var resp struct {
		Events []models.Absence `json:"events"`
	}
	if err := c.get(ctx, &resp, "absences", "details"); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) Agenda(ctx context.Context, begin, end time.Time) ([]models.AgendaEvent, error) {
	var resp struct {
		Agenda []models.AgendaEvent `json:"agenda"`
	}
	if err := c.get(ctx, &resp, "agenda", "all", begin.Format(dateFmt), end.Format(dateFmt)); err != nil {
		return nil, err
	}
	return resp.Agenda, nil
}

// Didactics returns the teacher/folder/item hierarchy. Some server versions
// misspell the payload key; the correct key wins when both are present.
func (c *Client) Didactics(ctx context.Context) ([]models.Teacher, error) {
	var resp struct {
		Didactics []models.Teacher `json:"didactics"`
		Typo      []models.Teacher `json:"didacticts"`
	}
	if err := c.get(ctx, &resp, "didactics"); err != nil {
		return nil, err
	}
	if resp.Didactics != nil {
		return resp.Didactics, nil
	}
	return resp.Typo, nil
}

func (c *Client) Noticeboard(ctx context.Context) ([]models.NoticeboardItem, error) {
	var resp struct {
		Items []models.NoticeboardItem `json:"items"`
	}
	if err := c.get(ctx, &resp, "noticeboard"); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// DownloadContent fetches the binary payload of a didactics attachment.
// A nil byte slice with nil error means the content is unavailable; per-item
// download failures must never abort a poll cycle, so error envelopes that
// are not token expiry map to absence rather than failure.
func (c *Client) DownloadContent(ctx context.Context, contentID int64) ([]byte, error) {
	data, exp, err := c.downloadOnce(ctx, contentID)
	if err != nil || !exp {
		return data, err
	}
	if _, err := c.Login(ctx); err != nil {
		return nil, fmt.Errorf("token refresh: %w", err)
	}
	data, _, err = c.downloadOnce(ctx, contentID)
	return data, err
}

func (c *Client) downloadOnce(ctx context.Context, contentID int64) (data []byte, tokenExpired bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.studentURL("didactics", "item", fmt.Sprint(contentID)), nil)
	if err != nil {
		return nil, false, err
	}
	c.authHeaders(req)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = resp.Body.Close() }()

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode == http.StatusOK && !strings.Contains(ct, "application/json") {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, err
		}
		return body, false, nil
	}

	// JSON body is an error envelope; only expiry is actionable.
	var env struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, false, nil
	}
	if expired(env.Error) {
		return nil, true, nil
	}
	return nil, false, nil
}
