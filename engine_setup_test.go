package goRecover

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goRecover/internal/normalize"
	"github.com/MrEthical07/goRecover/password"
)

type mockUserProvider struct {
	users      map[string]UserRecord
	byUsername map[string]string
	lookupErr  error
	updateErr  error
	mu         sync.Mutex

	getByUsernameCalls  int
	getByIDCalls        int
	updatePasswordCalls int
}

func (m *mockUserProvider) GetUserByUsername(ctx context.Context, username string) (UserRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByUsernameCalls++

	if m.lookupErr != nil {
		return UserRecord{}, false, m.lookupErr
	}
	userID, ok := m.byUsername[username]
	if !ok {
		return UserRecord{}, false, nil
	}
	user, ok := m.users[userID]
	return user, ok, nil
}

func (m *mockUserProvider) GetUserByID(ctx context.Context, userID string) (UserRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls++

	if m.lookupErr != nil {
		return UserRecord{}, false, m.lookupErr
	}
	user, ok := m.users[userID]
	return user, ok, nil
}

func (m *mockUserProvider) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatePasswordCalls++

	if m.updateErr != nil {
		return m.updateErr
	}
	user, ok := m.users[userID]
	if !ok {
		return errors.New("not found")
	}
	user.PasswordHash = newHash
	m.users[userID] = user
	return nil
}

type mockCredStore struct {
	sets   map[string]*QuestionSet
	getErr error
	putErr error
	mu     sync.Mutex

	putCalls int
}

func (m *mockCredStore) GetQuestionSet(ctx context.Context, userID string) (*QuestionSet, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, false, m.getErr
	}
	set, ok := m.sets[userID]
	if !ok {
		return nil, false, nil
	}
	cloned := *set
	return &cloned, true, nil
}

func (m *mockCredStore) PutQuestionSet(ctx context.Context, set *QuestionSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++

	if m.putErr != nil {
		return m.putErr
	}
	if m.sets == nil {
		m.sets = make(map[string]*QuestionSet)
	}
	cloned := *set
	m.sets[set.UserID] = &cloned
	return nil
}

func (m *mockCredStore) DeleteQuestionSet(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets, userID)
	return nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Token.Key = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func newTestEngine(t *testing.T, rdb *redis.Client, up UserProvider, cs CredentialStore) *Engine {
	t.Helper()
	return newTestEngineWithConfig(t, newTestConfig(), rdb, up, cs)
}

func newTestEngineWithConfig(t *testing.T, cfg Config, rdb *redis.Client, up UserProvider, cs CredentialStore) *Engine {
	t.Helper()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(up).
		WithCredentialStore(cs).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newTestHasher(t *testing.T) *password.Hasher {
	t.Helper()

	cfg := newTestConfig()
	h, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return h
}

// testAnswers maps every catalog question to the answer used across tests.
var testAnswers = map[QuestionID]string{
	QuestionBirthYear:       "1988",
	QuestionFatherBirthYear: "1960",
	QuestionMotherName:      "Maria",
	QuestionFatherName:      "George",
	QuestionFavouriteColour: "Blue",
}

func testSelections() [QuestionSetSize]QuestionSelection {
	var out [QuestionSetSize]QuestionSelection
	for i, id := range Catalog() {
		out[i] = QuestionSelection{Question: id, Answer: testAnswers[id]}
	}
	return out
}

func TestSetupQuestionsPersistsDigests(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	cs := &mockCredStore{}
	engine := newTestEngine(t, rdb, &mockUserProvider{}, cs)

	if err := engine.SetupQuestions(ctx, "u1", testSelections()); err != nil {
		t.Fatalf("SetupQuestions failed: %v", err)
	}

	set, ok := cs.sets["u1"]
	if !ok {
		t.Fatal("expected a question set to be persisted")
	}
	for i, slot := range set.Slots {
		if slot.Slot != uint8(i+1) {
			t.Fatalf("slot %d: got slot number %d", i, slot.Slot)
		}
		want := normalize.Digest(testAnswers[slot.Question])
		if slot.Answer != AnswerDigest(want) {
			t.Fatalf("slot %d: digest does not match normalized answer", i)
		}
	}
}

func TestSetupQuestionsNormalizesAnswersBeforeDigesting(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	cs := &mockCredStore{}
	engine := newTestEngine(t, rdb, &mockUserProvider{}, cs)

	selections := testSelections()
	selections[4].Answer = "  BLUE  " // favourite colour, messy casing and padding

	if err := engine.SetupQuestions(ctx, "u1", selections); err != nil {
		t.Fatalf("SetupQuestions failed: %v", err)
	}

	want := normalize.Digest("blue")
	if cs.sets["u1"].Slots[4].Answer != AnswerDigest(want) {
		t.Fatal("expected answer to be trimmed and case-folded before digesting")
	}
}

func TestSetupQuestionsRejectsUnknownQuestion(t *testing.T) {
	_, rdb := newTestRedis(t)

	cs := &mockCredStore{}
	engine := newTestEngine(t, rdb, &mockUserProvider{}, cs)

	selections := testSelections()
	selections[2].Question = "pet_name"

	err := engine.SetupQuestions(context.Background(), "u1", selections)
	if !errors.Is(err, ErrQuestionUnknown) {
		t.Fatalf("expected ErrQuestionUnknown, got %v", err)
	}
	if cs.putCalls != 0 {
		t.Fatal("expected nothing to be persisted on validation failure")
	}
}

func TestSetupQuestionsRejectsDuplicateQuestion(t *testing.T) {
	_, rdb := newTestRedis(t)

	cs := &mockCredStore{}
	engine := newTestEngine(t, rdb, &mockUserProvider{}, cs)

	selections := testSelections()
	selections[1] = selections[0]

	err := engine.SetupQuestions(context.Background(), "u1", selections)
	if !errors.Is(err, ErrDuplicateQuestion) {
		t.Fatalf("expected ErrDuplicateQuestion, got %v", err)
	}
	if cs.putCalls != 0 {
		t.Fatal("expected nothing to be persisted on validation failure")
	}
}

func TestSetupQuestionsRejectsBlankAnswer(t *testing.T) {
	_, rdb := newTestRedis(t)

	cs := &mockCredStore{}
	engine := newTestEngine(t, rdb, &mockUserProvider{}, cs)

	selections := testSelections()
	selections[3].Answer = "   "

	err := engine.SetupQuestions(context.Background(), "u1", selections)
	if !errors.Is(err, ErrMissingAnswer) {
		t.Fatalf("expected ErrMissingAnswer, got %v", err)
	}
	if cs.putCalls != 0 {
		t.Fatal("expected nothing to be persisted on validation failure")
	}
}

func TestSetupQuestionsRejectsSecondSetup(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	cs := &mockCredStore{}
	engine := newTestEngine(t, rdb, &mockUserProvider{}, cs)

	if err := engine.SetupQuestions(ctx, "u1", testSelections()); err != nil {
		t.Fatalf("first SetupQuestions failed: %v", err)
	}

	err := engine.SetupQuestions(ctx, "u1", testSelections())
	if !errors.Is(err, ErrAlreadyConfigured) {
		t.Fatalf("expected ErrAlreadyConfigured, got %v", err)
	}
}

func TestReplaceQuestionsRequiresExistingSet(t *testing.T) {
	_, rdb := newTestRedis(t)

	cs := &mockCredStore{}
	engine := newTestEngine(t, rdb, &mockUserProvider{}, cs)

	err := engine.ReplaceQuestions(context.Background(), "u1", testSelections())
	if !errors.Is(err, ErrNoSecurityQuestions) {
		t.Fatalf("expected ErrNoSecurityQuestions, got %v", err)
	}
}

func TestReplaceQuestionsOverwritesWholeSet(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	cs := &mockCredStore{}
	engine := newTestEngine(t, rdb, &mockUserProvider{}, cs)

	if err := engine.SetupQuestions(ctx, "u1", testSelections()); err != nil {
		t.Fatalf("SetupQuestions failed: %v", err)
	}

	replacement := testSelections()
	replacement[0].Answer = "1979"
	if err := engine.ReplaceQuestions(ctx, "u1", replacement); err != nil {
		t.Fatalf("ReplaceQuestions failed: %v", err)
	}

	want := normalize.Digest("1979")
	if cs.sets["u1"].Slots[0].Answer != AnswerDigest(want) {
		t.Fatal("expected replacement answers to overwrite the stored set")
	}
}

func TestHasQuestions(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	cs := &mockCredStore{}
	engine := newTestEngine(t, rdb, &mockUserProvider{}, cs)

	configured, err := engine.HasQuestions(ctx, "u1")
	if err != nil {
		t.Fatalf("HasQuestions failed: %v", err)
	}
	if configured {
		t.Fatal("expected no questions before setup")
	}

	if err := engine.SetupQuestions(ctx, "u1", testSelections()); err != nil {
		t.Fatalf("SetupQuestions failed: %v", err)
	}

	configured, err = engine.HasQuestions(ctx, "u1")
	if err != nil {
		t.Fatalf("HasQuestions failed: %v", err)
	}
	if !configured {
		t.Fatal("expected questions after setup")
	}
}
