package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/api"
	"github.com/MrEthical07/goRecover/password"
)

type fakeUsers struct {
	users      map[string]goRecover.UserRecord
	byUsername map[string]string
}

func (f *fakeUsers) GetUserByUsername(ctx context.Context, username string) (goRecover.UserRecord, bool, error) {
	userID, ok := f.byUsername[username]
	if !ok {
		return goRecover.UserRecord{}, false, nil
	}
	user, ok := f.users[userID]
	return user, ok, nil
}

func (f *fakeUsers) GetUserByID(ctx context.Context, userID string) (goRecover.UserRecord, bool, error) {
	user, ok := f.users[userID]
	return user, ok, nil
}

func (f *fakeUsers) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	user, ok := f.users[userID]
	if !ok {
		return errors.New("not found")
	}
	user.PasswordHash = newHash
	f.users[userID] = user
	return nil
}

type fakeCreds struct {
	sets map[string]*goRecover.QuestionSet
}

func (f *fakeCreds) GetQuestionSet(ctx context.Context, userID string) (*goRecover.QuestionSet, bool, error) {
	set, ok := f.sets[userID]
	if !ok {
		return nil, false, nil
	}
	cloned := *set
	return &cloned, true, nil
}

func (f *fakeCreds) PutQuestionSet(ctx context.Context, set *goRecover.QuestionSet) error {
	if f.sets == nil {
		f.sets = make(map[string]*goRecover.QuestionSet)
	}
	cloned := *set
	f.sets[set.UserID] = &cloned
	return nil
}

func (f *fakeCreds) DeleteQuestionSet(ctx context.Context, userID string) error {
	delete(f.sets, userID)
	return nil
}

var testAnswers = map[goRecover.QuestionID]string{
	goRecover.QuestionBirthYear:       "1988",
	goRecover.QuestionFatherBirthYear: "1960",
	goRecover.QuestionMotherName:      "Maria",
	goRecover.QuestionFatherName:      "George",
	goRecover.QuestionFavouriteColour: "Blue",
}

func testSelectionPayload() map[string]any {
	selections := make([]map[string]string, 0, goRecover.QuestionSetSize)
	for _, id := range goRecover.Catalog() {
		selections = append(selections, map[string]string{
			"question": string(id),
			"answer":   testAnswers[id],
		})
	}
	return map[string]any{"selections": selections}
}

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	hasher, err := password.NewHasher(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	require.NoError(t, err)
	hash, err := hasher.Hash("correct-pass-1")
	require.NoError(t, err)

	users := &fakeUsers{
		users: map[string]goRecover.UserRecord{
			"u1": {UserID: "u1", Username: "alice", PasswordHash: hash},
		},
		byUsername: map[string]string{"alice": "u1"},
	}

	cfg := goRecover.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Token.Key = []byte("0123456789abcdef0123456789abcdef")

	engine, err := goRecover.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithCredentialStore(&fakeCreds{}).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	a := api.New(engine)
	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	return httptest.NewServer(r)
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequest(method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func loginAlice(t *testing.T, baseURL string) string {
	t.Helper()

	resp := doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/login", "", map[string]string{
		"username": "alice",
		"password": "correct-pass-1",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestLoginAndQuestionsStatus(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()

	token := loginAlice(t, srv.URL)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/questions", token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Configured bool `json:"configured"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.False(t, status.Configured)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/questions/setup", token, testSelectionPayload())
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/questions", token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Configured)
}

func TestRequireAuth(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()

	// No bearer token.
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/questions", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Garbage token.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/questions", "not-a-token", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Token of a logged-out session.
	token := loginAlice(t, srv.URL)
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/logout", token, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/questions", token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSetupSelectionValidation(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()

	token := loginAlice(t, srv.URL)

	// Wrong selection count is rejected before reaching the engine.
	payload := testSelectionPayload()
	payload["selections"] = payload["selections"].([]map[string]string)[:4]
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/questions/setup", token, payload)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// A duplicate question maps to 422.
	payload = testSelectionPayload()
	selections := payload["selections"].([]map[string]string)
	selections[1] = selections[0]
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/questions/setup", token, payload)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestErrorStatusMapping(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()

	// Bad credentials map to 401.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/login", "", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Unknown username on reset begin maps to 404.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/recovery/reset/begin", "", map[string]string{
		"username": "mallory",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Known user without configured questions also maps to 404.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/recovery/reset/begin", "", map[string]string{
		"username": "alice",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// A dead reset session maps to 404.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/recovery/reset/answers", "", map[string]string{
		"session_id": "gone",
		"answer1":    "a",
		"answer2":    "b",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResetFlowOverHTTP(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()

	token := loginAlice(t, srv.URL)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/questions/setup", token, testSelectionPayload())
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/recovery/reset/begin", "", map[string]string{
		"username": "alice",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var challenge struct {
		SessionID string `json:"session_id"`
		Questions []struct {
			Question string `json:"question"`
		} `json:"questions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&challenge))
	resp.Body.Close()
	require.NotEmpty(t, challenge.SessionID)
	require.Len(t, challenge.Questions, goRecover.ChallengeSize)

	// Wrong answers first: incorrect answers map to 403.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/recovery/reset/answers", "", map[string]string{
		"session_id": challenge.SessionID,
		"answer1":    "wrong",
		"answer2":    "wrong",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/recovery/reset/answers", "", map[string]string{
		"session_id": challenge.SessionID,
		"answer1":    testAnswers[goRecover.QuestionID(challenge.Questions[0].Question)],
		"answer2":    testAnswers[goRecover.QuestionID(challenge.Questions[1].Question)],
	})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Weak replacement maps to 422, mismatch too.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/recovery/reset/complete", "", map[string]string{
		"session_id":       challenge.SessionID,
		"new_password":     "short",
		"confirm_password": "short",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/recovery/reset/complete", "", map[string]string{
		"session_id":       challenge.SessionID,
		"new_password":     "new-password-1",
		"confirm_password": "different",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/recovery/reset/complete", "", map[string]string{
		"session_id":       challenge.SessionID,
		"new_password":     "new-password-1",
		"confirm_password": "new-password-1",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The reset revoked the login session issued above.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/questions", token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
