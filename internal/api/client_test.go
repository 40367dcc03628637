// internal/api/client_test.go
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSignup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/signup", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"), "signup is unauthenticated")

		var req SignupRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ada@example.com", req.Email)

		json.NewEncoder(w).Encode(SignupResponse{UID: "u1", Token: "tok"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken(""), testLogger())
	resp, err := c.Signup(context.Background(), SignupRequest{Email: "ada@example.com", Password: "pw", Username: "ada"})
	require.NoError(t, err)
	assert.Equal(t, "u1", resp.UID)
	assert.Equal(t, "tok", resp.Token)
}

func TestBearerTokenAttached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(VerifyResponse{UID: "u1", Username: "ada"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok-123"), testLogger())
	resp, err := c.VerifyToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", resp.UID)
	assert.Equal(t, "ada", resp.Username)
}

func TestRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"token": "fresh"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("old"), testLogger())
	tok, err := c.Refresh(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
}

func TestProfileAndProblems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/profile/u7":
			assert.Equal(t, http.MethodGet, r.Method)
			json.NewEncoder(w).Encode(map[string]any{"id": "u7", "username": "lin", "xp": 420, "wins": 9, "losses": 2})
		case "/api/practice/problems":
			json.NewEncoder(w).Encode([]map[string]any{
				{"title": "Two Sum", "difficulty": "easy"},
				{"title": "LRU Cache", "difficulty": "hard"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok"), testLogger())

	profile, err := c.Profile(context.Background(), "u7")
	require.NoError(t, err)
	assert.Equal(t, "lin", profile.Username)
	assert.Equal(t, 420, profile.XP)
	assert.Equal(t, 4, profile.Level())

	problems, err := c.PracticeProblems(context.Background())
	require.NoError(t, err)
	require.Len(t, problems, 2)
	assert.Equal(t, "Two Sum", problems[0].Title)
}

func TestRunAndSubmitPractice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/practice/run":
			var req PracticeRunRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "p1", req.ProblemID)
			assert.Equal(t, "python", req.Language)
			json.NewEncoder(w).Encode(map[string]string{"stdout": "42\n"})
		case "/api/practice/submit":
			json.NewEncoder(w).Encode(map[string]int{"passed": 8, "total": 10})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok"), testLogger())

	run, err := c.RunPractice(context.Background(), PracticeRunRequest{ProblemID: "p1", Language: "python", SourceCode: "print(42)"})
	require.NoError(t, err)
	assert.Equal(t, "42\n", run.Stdout)

	sub, err := c.SubmitPractice(context.Background(), PracticeSubmitRequest{ProblemID: "p1", Language: "python", SourceCode: "..."})
	require.NoError(t, err)
	assert.Equal(t, 8, sub.Passed)
	assert.Equal(t, 10, sub.Total)
}

func TestUpdateStatsNoBodyExpected(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/api/update-stats", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok"), testLogger())
	require.NoError(t, c.UpdateStats(context.Background(), UpdateStatsRequest{UID: "u1", Result: "win", XPChange: 25}))
	assert.True(t, called)
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "username taken"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken(""), testLogger())
	_, err := c.Signup(context.Background(), SignupRequest{Username: "ada"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "username taken", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "409")
}

func TestAPIErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken(""), testLogger())
	_, err := c.AITutor(context.Background(), TutorRequest{Prompt: "help"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Empty(t, apiErr.Message)
}
