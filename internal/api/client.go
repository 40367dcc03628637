// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/slashcoder/slashcoder-client/internal/models"
)

const defaultTimeout = 15 * time.Second

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token() string
}

// APIError is a non-2xx response, carrying whatever message the backend
// put in the body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// Client talks to the platform's REST backend. Calls are not retried;
// callers decide what a failure means for them.
type Client struct {
	base   string
	http   *http.Client
	tokens TokenSource
	log    *logrus.Logger
}

func NewClient(base string, tokens TokenSource, log *logrus.Logger) *Client {
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: defaultTimeout},
		tokens: tokens,
		log:    log,
	}
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type SignupResponse struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

// Signup registers a new account and returns its first session token.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (SignupResponse, error) {
	var out SignupResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/signup", req, &out)
	return out, err
}

type VerifyResponse struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
}

// VerifyToken asks the backend to validate the current token and returns
// the identity it resolves to.
func (c *Client) VerifyToken(ctx context.Context) (VerifyResponse, error) {
	var out VerifyResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/verify", nil, &out)
	return out, err
}

type refreshResponse struct {
	Token string `json:"token"`
}

// Refresh exchanges the current token for a fresh one. Shaped to plug
// straight into the auth manager's refresh hook.
func (c *Client) Refresh(ctx context.Context, _ string) (string, error) {
	var out refreshResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// Profile fetches another player's public profile.
func (c *Client) Profile(ctx context.Context, uid string) (models.UserProfile, error) {
	var out models.UserProfile
	err := c.doJSON(ctx, http.MethodGet, "/profile/"+uid, nil, &out)
	return out, err
}

// PracticeProblems lists the solo practice catalog.
func (c *Client) PracticeProblems(ctx context.Context) ([]models.Problem, error) {
	var out []models.Problem
	err := c.doJSON(ctx, http.MethodGet, "/api/practice/problems", nil, &out)
	return out, err
}

type PracticeRunRequest struct {
	ProblemID  string `json:"problemId"`
	Language   string `json:"language"`
	SourceCode string `json:"source_code"`
	Stdin      string `json:"stdin,omitempty"`
}

// RunPractice executes practice code against the problem's sample input.
func (c *Client) RunPractice(ctx context.Context, req PracticeRunRequest) (models.RunResult, error) {
	var out models.RunResult
	err := c.doJSON(ctx, http.MethodPost, "/api/practice/run", req, &out)
	return out, err
}

type PracticeSubmitRequest struct {
	ProblemID  string `json:"problemId"`
	Language   string `json:"language"`
	SourceCode string `json:"source_code"`
}

// SubmitPractice judges a practice solution against the hidden tests.
func (c *Client) SubmitPractice(ctx context.Context, req PracticeSubmitRequest) (models.SubmissionResult, error) {
	var out models.SubmissionResult
	err := c.doJSON(ctx, http.MethodPost, "/api/practice/submit", req, &out)
	return out, err
}

type RunCodeRequest struct {
	Language   string `json:"language"`
	SourceCode string `json:"source_code"`
	Stdin      string `json:"stdin,omitempty"`
}

// RunCode executes arbitrary code in the sandbox, outside any match.
func (c *Client) RunCode(ctx context.Context, req RunCodeRequest) (models.RunResult, error) {
	var out models.RunResult
	err := c.doJSON(ctx, http.MethodPost, "/code/run", req, &out)
	return out, err
}

type UpdateStatsRequest struct {
	UID      string `json:"uid"`
	Result   string `json:"result"`
	XPChange int    `json:"xpChange"`
}

// UpdateStats reports a finished match's outcome for ranking.
func (c *Client) UpdateStats(ctx context.Context, req UpdateStatsRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/api/update-stats", req, nil)
}

type TutorRequest struct {
	Prompt string `json:"prompt"`
	Code   string `json:"code,omitempty"`
}

type TutorResponse struct {
	Reply string `json:"reply"`
}

// AITutor asks the hint service about the given prompt and code.
func (c *Client) AITutor(ctx context.Context, req TutorRequest) (TutorResponse, error) {
	var out TutorResponse
	err := c.doJSON(ctx, http.MethodPost, "/ai/tutor", req, &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil {
			apiErr.Message = payload.Error
			if apiErr.Message == "" {
				apiErr.Message = payload.Message
			}
		}
		c.log.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Debug("api request failed")
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
