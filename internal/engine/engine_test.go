package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/engramlabs/engram/internal/chat"
	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/embedding"
	"github.com/engramlabs/engram/internal/observe"
	"github.com/engramlabs/engram/internal/provider"
	"github.com/engramlabs/engram/internal/session"
	"github.com/engramlabs/engram/internal/store"
	"github.com/engramlabs/engram/internal/vector"
)

type stubOrigin struct {
	persona string
	def     string
}

func (o stubOrigin) GetSessionID() string      { return "s1" }
func (o stubOrigin) GetPersonaID() string      { return o.persona }
func (o stubOrigin) GetDefaultPersona() string { return o.def }

type testRig struct {
	engine   *Engine
	sessions *session.Store
	vec      vector.Store
	llm      *provider.Stub
	cfg      *config.Config
}

func newTestRig(t *testing.T, mutate func(*config.Config)) *testRig {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Collection = "test_memory"
	cfg.Vector = config.Vector{Backend: "sqlite", Path: dir}
	cfg.Embedding = config.Embedding{Service: "mock", Dim: 4}
	cfg.LLM = config.LLM{Provider: "stub"}
	cfg.Summary.NumPairs = 4
	cfg.Summary.FlushAfterInsert = true
	if mutate != nil {
		mutate(cfg)
	}

	counters, err := store.NewSQLiteStore(filepath.Join(dir, "counters.db"))
	if err != nil {
		t.Fatalf("Failed to open counter store: %v", err)
	}
	t.Cleanup(func() { counters.Close() })

	obs := observe.Discard()
	sessions := session.NewStore(counters, obs)

	vec, err := vector.New(cfg.Vector)
	if err != nil {
		t.Fatalf("Failed to build vector store: %v", err)
	}

	llm := provider.NewStub()

	eng, err := New(context.Background(), cfg, sessions, vec, embedding.NewMock(4), llm, obs, nil)
	if err != nil {
		t.Fatalf("Failed to build engine: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	return &testRig{engine: eng, sessions: sessions, vec: vec, llm: llm, cfg: cfg}
}

func (r *testRig) storedRecords(t *testing.T, sessionID string) []vector.Record {
	t.Helper()
	records, err := r.engine.ListMemories(context.Background(), vector.Filter{SessionID: sessionID}, 0)
	if err != nil {
		t.Fatalf("ListMemories failed: %v", err)
	}
	return records
}

func (r *testRig) turn(t *testing.T, sessionID, prompt, reply string, origin any) *chat.Request {
	t.Helper()
	req := &chat.Request{Prompt: prompt}
	if err := r.engine.OnRequest(context.Background(), sessionID, req, origin); err != nil {
		t.Fatalf("OnRequest failed: %v", err)
	}
	r.engine.OnResponse(context.Background(), sessionID, reply, origin)
	return req
}

func TestCountTriggerFiresAtThreshold(t *testing.T) {
	r := newTestRig(t, nil)
	origin := stubOrigin{persona: "sage"}

	// One turn is two counted messages; threshold 4 fires on the second.
	r.turn(t, "s1", "my name is Ada", "nice to meet you", origin)
	r.engine.WaitPending()
	if got := len(r.storedRecords(t, "s1")); got != 0 {
		t.Fatalf("Expected no summary below threshold, got %d", got)
	}

	r.turn(t, "s1", "I drink tea", "noted", origin)

	// Reset happens synchronously inside the trigger, before the async
	// summarization completes.
	if count := r.sessions.GetCount("s1"); count != 0 {
		t.Errorf("Expected counter reset immediately after trigger, got %d", count)
	}

	r.engine.WaitPending()
	records := r.storedRecords(t, "s1")
	if len(records) != 1 {
		t.Fatalf("Expected exactly one summary, got %d", len(records))
	}
	if records[0].PersonaID != "sage" {
		t.Errorf("Expected persona from origin, got %q", records[0].PersonaID)
	}
	if records[0].Content != "stub summary" {
		t.Errorf("Expected stub summary stored, got %q", records[0].Content)
	}

	calls := r.llm.Calls()
	if len(calls) != 1 {
		t.Fatalf("Expected one summarization call, got %d", len(calls))
	}
	transcript := calls[0].Prompt
	for _, want := range []string{"user: my name is Ada", "assistant: nice to meet you", "user: I drink tea", "assistant: noted"} {
		if !strings.Contains(transcript, want) {
			t.Errorf("Expected transcript to contain %q, got %q", want, transcript)
		}
	}
	if calls[0].System != r.cfg.Summary.Prompt {
		t.Errorf("Expected summary prompt as system instruction")
	}
}

func TestTriggerDoesNotRefireAfterReset(t *testing.T) {
	r := newTestRig(t, nil)
	origin := stubOrigin{persona: "sage"}

	r.turn(t, "s1", "one", "two", origin)
	r.turn(t, "s1", "three", "four", origin)
	r.engine.WaitPending()

	// The sweep sees the freshly reset counter and must not double-fire.
	r.engine.SweepOnce(context.Background())
	r.engine.WaitPending()

	if got := len(r.storedRecords(t, "s1")); got != 1 {
		t.Errorf("Expected a single summary across both trigger paths, got %d", got)
	}
}

func TestRetrievalInjectsIntoUserPrompt(t *testing.T) {
	r := newTestRig(t, nil)
	ctx := context.Background()

	for _, content := range []string{"likes green tea", "owns a bicycle", "lives in Lisbon"} {
		if _, err := r.engine.StoreMemory(ctx, "s1", "sage", content); err != nil {
			t.Fatalf("StoreMemory failed: %v", err)
		}
	}

	req := &chat.Request{Prompt: "what do you know about me?"}
	if err := r.engine.OnRequest(ctx, "s1", req, stubOrigin{persona: "sage"}); err != nil {
		t.Fatalf("OnRequest failed: %v", err)
	}

	if !strings.HasPrefix(req.Prompt, r.cfg.Retrieval.MemoryPrefix) {
		t.Errorf("Expected injected block at start of prompt, got %q", req.Prompt)
	}
	if !strings.HasSuffix(req.Prompt, "what do you know about me?") {
		t.Errorf("Expected original prompt preserved, got %q", req.Prompt)
	}
	for _, want := range []string{"likes green tea", "owns a bicycle", "lives in Lisbon"} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("Expected memory %q injected", want)
		}
	}
	if strings.Count(req.Prompt, r.cfg.Retrieval.MemorySuffix) != 1 {
		t.Errorf("Expected a single memory block, got %q", req.Prompt)
	}
	if !strings.Contains(req.Prompt, "- [") {
		t.Errorf("Expected entry format applied, got %q", req.Prompt)
	}
}

func TestRetrievalStripsStaleBlocksFromContexts(t *testing.T) {
	r := newTestRig(t, nil)
	ctx := context.Background()

	stale := r.cfg.Retrieval.MemoryPrefix + "\nold memory\n" + r.cfg.Retrieval.MemorySuffix
	req := &chat.Request{
		Prompt: "hello",
		Contexts: []chat.Message{
			{Role: chat.RoleUser, Content: stale + " earlier question"},
			{Role: chat.RoleAssistant, Content: "earlier answer"},
		},
	}

	if err := r.engine.OnRequest(ctx, "s1", req, nil); err != nil {
		t.Fatalf("OnRequest failed: %v", err)
	}

	if strings.Contains(req.Contexts[0].Content, "old memory") {
		t.Errorf("Expected stale block stripped, got %q", req.Contexts[0].Content)
	}
	if req.Contexts[1].Content != "earlier answer" {
		t.Errorf("Assistant context must pass through, got %q", req.Contexts[1].Content)
	}
}

func TestInjectionMethodSystemPrompt(t *testing.T) {
	r := newTestRig(t, func(cfg *config.Config) {
		cfg.Retrieval.InjectionMethod = config.InjectSystemPrompt
	})
	ctx := context.Background()

	r.engine.StoreMemory(ctx, "s1", "", "remembers birthdays")

	stale := r.cfg.Retrieval.MemoryPrefix + "\nstale\n" + r.cfg.Retrieval.MemorySuffix
	req := &chat.Request{Prompt: "hi", SystemPrompt: "be helpful " + stale}
	if err := r.engine.OnRequest(ctx, "s1", req, nil); err != nil {
		t.Fatalf("OnRequest failed: %v", err)
	}

	if req.Prompt != "hi" {
		t.Errorf("Expected prompt untouched, got %q", req.Prompt)
	}
	if !strings.Contains(req.SystemPrompt, "remembers birthdays") {
		t.Errorf("Expected memory in system prompt, got %q", req.SystemPrompt)
	}
	if strings.Contains(req.SystemPrompt, "stale") {
		t.Errorf("Expected stale block stripped from system prompt, got %q", req.SystemPrompt)
	}
	if !strings.Contains(req.SystemPrompt, "be helpful") {
		t.Errorf("Expected original system prompt preserved, got %q", req.SystemPrompt)
	}
}

func TestInjectionMethodInsertSystemMessage(t *testing.T) {
	r := newTestRig(t, func(cfg *config.Config) {
		cfg.Retrieval.InjectionMethod = config.InjectInsertSystemPrompt
	})
	ctx := context.Background()

	r.engine.StoreMemory(ctx, "s1", "", "prefers short answers")

	req := &chat.Request{
		Prompt: "hi",
		Contexts: []chat.Message{
			{Role: chat.RoleSystem, Content: "old injected memory message"},
			{Role: chat.RoleUser, Content: "earlier"},
		},
	}
	if err := r.engine.OnRequest(ctx, "s1", req, nil); err != nil {
		t.Fatalf("OnRequest failed: %v", err)
	}

	last := req.Contexts[len(req.Contexts)-1]
	if last.Role != chat.RoleSystem || !strings.Contains(last.Content, "prefers short answers") {
		t.Errorf("Expected appended system message with memory, got %+v", last)
	}
	for _, msg := range req.Contexts[:len(req.Contexts)-1] {
		if msg.Content == "old injected memory message" {
			t.Errorf("Expected older system message trimmed (keep=0)")
		}
	}
}

func TestSystemPromptStrippedWithoutHits(t *testing.T) {
	r := newTestRig(t, func(cfg *config.Config) {
		cfg.Retrieval.InjectionMethod = config.InjectSystemPrompt
	})
	ctx := context.Background()

	// Nothing is stored, so retrieval finds no hits; the stale block from a
	// previous turn must still be stripped.
	stale := r.cfg.Retrieval.MemoryPrefix + "\nstale\n" + r.cfg.Retrieval.MemorySuffix
	req := &chat.Request{Prompt: "anything new?", SystemPrompt: "be helpful " + stale}
	if err := r.engine.OnRequest(ctx, "s1", req, nil); err != nil {
		t.Fatalf("OnRequest failed: %v", err)
	}

	if strings.Contains(req.SystemPrompt, "stale") {
		t.Errorf("Expected stale block stripped on a hitless turn, got %q", req.SystemPrompt)
	}
	if !strings.Contains(req.SystemPrompt, "be helpful") {
		t.Errorf("Expected original system prompt preserved, got %q", req.SystemPrompt)
	}
}

func TestUnknownInjectionMethodFallsBack(t *testing.T) {
	r := newTestRig(t, func(cfg *config.Config) {
		cfg.Retrieval.InjectionMethod = "smoke_signals"
	})
	ctx := context.Background()

	r.engine.StoreMemory(ctx, "s1", "", "a fact")

	req := &chat.Request{Prompt: "hi"}
	if err := r.engine.OnRequest(ctx, "s1", req, nil); err != nil {
		t.Fatalf("OnRequest failed: %v", err)
	}
	if !strings.Contains(req.Prompt, "a fact") {
		t.Errorf("Expected fallback to user prompt injection, got %q", req.Prompt)
	}
}

func TestEmptyPromptSkipsRetrievalButCounts(t *testing.T) {
	r := newTestRig(t, nil)
	ctx := context.Background()

	req := &chat.Request{Prompt: "   "}
	if err := r.engine.OnRequest(ctx, "s1", req, nil); err != nil {
		t.Fatalf("OnRequest failed: %v", err)
	}

	if req.Prompt != "   " {
		t.Errorf("Expected prompt untouched, got %q", req.Prompt)
	}
	if count := r.sessions.GetCount("s1"); count != 1 {
		t.Errorf("Expected turn still counted, got %d", count)
	}
}

func TestEmptySummaryIsNotStored(t *testing.T) {
	r := newTestRig(t, nil)
	r.llm.Reply = "   \n  "
	origin := stubOrigin{persona: "sage"}

	r.turn(t, "s1", "one", "two", origin)
	r.turn(t, "s1", "three", "four", origin)
	r.engine.WaitPending()

	if got := len(r.storedRecords(t, "s1")); got != 0 {
		t.Errorf("Expected empty summary rejected, got %d records", got)
	}
	// The trigger is still consumed; the span is lost, not retried.
	if count := r.sessions.GetCount("s1"); count != 0 {
		t.Errorf("Expected counter reset despite rejected summary, got %d", count)
	}
}

func TestLLMFailureLosesSpanQuietly(t *testing.T) {
	r := newTestRig(t, nil)
	r.llm.Err = context.DeadlineExceeded
	origin := stubOrigin{persona: "sage"}

	r.turn(t, "s1", "one", "two", origin)
	r.turn(t, "s1", "three", "four", origin)
	r.engine.WaitPending()

	if got := len(r.storedRecords(t, "s1")); got != 0 {
		t.Errorf("Expected no record after llm failure, got %d", got)
	}
	if count := r.sessions.GetCount("s1"); count != 0 {
		t.Errorf("Expected counter reset before the async failure, got %d", count)
	}
}

func TestPersonaFallbackChain(t *testing.T) {
	r := newTestRig(t, nil)

	// Sentinel persona falls through to the origin default.
	r.turn(t, "s1", "one", "two", stubOrigin{persona: PersonaNone, def: "platform_default"})
	r.turn(t, "s1", "three", "four", stubOrigin{persona: PersonaNone, def: "platform_default"})
	r.engine.WaitPending()

	records := r.storedRecords(t, "s1")
	if len(records) != 1 || records[0].PersonaID != "platform_default" {
		t.Fatalf("Expected platform default persona, got %+v", records)
	}

	// No origin at all falls back to the configured default.
	r.turn(t, "s2", "one", "two", nil)
	r.turn(t, "s2", "three", "four", nil)
	r.engine.WaitPending()

	records = r.storedRecords(t, "s2")
	if len(records) != 1 || records[0].PersonaID != r.cfg.Summary.DefaultPersona {
		t.Fatalf("Expected configured default persona, got %+v", records)
	}
}

func TestSweepSummarizesIdleSessions(t *testing.T) {
	r := newTestRig(t, func(cfg *config.Config) {
		cfg.Summary.NumPairs = 100 // keep the count trigger out of the way
		cfg.Summary.TimeThresholdSeconds = 1800
	})
	origin := stubOrigin{persona: "sage"}

	r.turn(t, "s1", "remember the milk", "will do", origin)
	if count := r.sessions.GetCount("s1"); count != 2 {
		t.Fatalf("Expected 2 pending turns, got %d", count)
	}

	// Not idle long enough yet.
	r.engine.SweepOnce(context.Background())
	r.engine.WaitPending()
	if got := len(r.storedRecords(t, "s1")); got != 0 {
		t.Fatalf("Expected no sweep below the idle threshold, got %d", got)
	}

	r.engine.now = func() time.Time { return time.Now().Add(1801 * time.Second) }
	r.engine.SweepOnce(context.Background())

	if count := r.sessions.GetCount("s1"); count != 0 {
		t.Errorf("Expected counter reset by time trigger, got %d", count)
	}

	r.engine.WaitPending()
	records := r.storedRecords(t, "s1")
	if len(records) != 1 {
		t.Fatalf("Expected one summary from the sweep, got %d", len(records))
	}

	calls := r.llm.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].Prompt, "remember the milk") {
		t.Errorf("Expected sweep transcript to cover pending turns, got %+v", calls)
	}

	// A second sweep finds nothing pending.
	r.engine.SweepOnce(context.Background())
	r.engine.WaitPending()
	if got := len(r.storedRecords(t, "s1")); got != 1 {
		t.Errorf("Expected no double summarization, got %d", got)
	}
}

func TestSweepDisabledByThreshold(t *testing.T) {
	r := newTestRig(t, func(cfg *config.Config) {
		cfg.Summary.NumPairs = 100
		cfg.Summary.TimeThresholdSeconds = 0
	})

	r.turn(t, "s1", "one", "two", nil)
	r.engine.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	r.engine.SweepOnce(context.Background())
	r.engine.WaitPending()

	if got := len(r.storedRecords(t, "s1")); got != 0 {
		t.Errorf("Expected time trigger disabled, got %d records", got)
	}
}

func TestForgetMemories(t *testing.T) {
	r := newTestRig(t, nil)
	ctx := context.Background()

	r.engine.StoreMemory(ctx, "s1", "sage", "fact one")
	r.engine.StoreMemory(ctx, "s1", "sage", "fact two")
	r.engine.StoreMemory(ctx, "s2", "sage", "other session")

	if _, err := r.engine.ForgetMemories(ctx, vector.Filter{}); err == nil {
		t.Errorf("Expected empty filter to be rejected")
	}

	deleted, err := r.engine.ForgetMemories(ctx, vector.Filter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("ForgetMemories failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}
	if got := len(r.storedRecords(t, "s1")); got != 0 {
		t.Errorf("Expected session memories gone, got %d", got)
	}
	if got := len(r.storedRecords(t, "s2")); got != 1 {
		t.Errorf("Expected other session untouched, got %d", got)
	}
}

func TestListMemoriesOnChromemBackend(t *testing.T) {
	r := newTestRig(t, func(cfg *config.Config) {
		cfg.Vector = config.Vector{Backend: "chromem"}
	})
	ctx := context.Background()

	r.engine.StoreMemory(ctx, "s1", "sage", "fact one")
	r.engine.StoreMemory(ctx, "s1", "sage", "fact two")
	r.engine.StoreMemory(ctx, "s2", "sage", "other session")

	records, err := r.engine.ListMemories(ctx, vector.Filter{SessionID: "s1"}, 0)
	if err != nil {
		t.Fatalf("ListMemories failed on the chromem backend: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	contents := map[string]bool{records[0].Content: true, records[1].Content: true}
	if !contents["fact one"] || !contents["fact two"] {
		t.Errorf("Expected both session memories listed, got %+v", records)
	}
}

func TestSearchMemories(t *testing.T) {
	r := newTestRig(t, nil)
	ctx := context.Background()

	r.engine.StoreMemory(ctx, "s1", "", "enjoys hiking")
	r.engine.StoreMemory(ctx, "s1", "", "allergic to peanuts")

	// The mock embedder is deterministic, so the identical text is the top
	// match for itself.
	hits, err := r.engine.SearchMemories(ctx, "enjoys hiking", vector.Filter{SessionID: "s1"}, 2)
	if err != nil {
		t.Fatalf("SearchMemories failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}
	if hits[0].Content != "enjoys hiking" {
		t.Errorf("Expected exact text as best hit, got %q", hits[0].Content)
	}
}

// emptyEmbedder reports a valid dimension but produces empty vectors.
type emptyEmbedder struct{}

func (emptyEmbedder) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	return out, nil
}
func (emptyEmbedder) Dim() int     { return 4 }
func (emptyEmbedder) Name() string { return "empty" }

// spyVec counts Search calls on a wrapped backend.
type spyVec struct {
	vector.Store
	searches int
}

func (s *spyVec) Search(ctx context.Context, collection string, vectors [][]float32, params map[string]string, limit int, filter vector.Filter) ([][]vector.Hit, error) {
	s.searches++
	return s.Store.Search(ctx, collection, vectors, params, limit, filter)
}

func TestEmptyEmbeddingAbortsBeforeSearch(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Collection = "test_memory"
	cfg.Vector = config.Vector{Backend: "sqlite", Path: dir}
	cfg.Embedding = config.Embedding{Service: "mock", Dim: 4}

	counters, err := store.NewSQLiteStore(filepath.Join(dir, "counters.db"))
	if err != nil {
		t.Fatalf("Failed to open counter store: %v", err)
	}
	defer counters.Close()

	vec, err := vector.New(cfg.Vector)
	if err != nil {
		t.Fatalf("Failed to build vector store: %v", err)
	}
	spy := &spyVec{Store: vec}

	sessions := session.NewStore(counters, observe.Discard())
	eng, err := New(context.Background(), cfg, sessions, spy, emptyEmbedder{}, provider.NewStub(), observe.Discard(), nil)
	if err != nil {
		t.Fatalf("Failed to build engine: %v", err)
	}
	defer eng.Close()

	req := &chat.Request{Prompt: "hello"}
	if err := eng.OnRequest(context.Background(), "s1", req, nil); err != nil {
		t.Fatalf("OnRequest must not fail on empty embeddings: %v", err)
	}
	if spy.searches != 0 {
		t.Errorf("Expected no search call for an empty embedding, got %d", spy.searches)
	}
	if req.Prompt != "hello" {
		t.Errorf("Expected prompt untouched, got %q", req.Prompt)
	}
	if count := sessions.GetCount("s1"); count != 1 {
		t.Errorf("Expected turn still counted, got %d", count)
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	r := newTestRig(t, func(cfg *config.Config) {
		cfg.Summary.CheckIntervalSeconds = 3600
	})
	sched := NewScheduler(r.engine)
	if err := sched.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sched.Stop()

	// A disabled time threshold means nothing is ever scheduled; Stop is
	// still safe to call.
	r2 := newTestRig(t, func(cfg *config.Config) {
		cfg.Summary.TimeThresholdSeconds = 0
	})
	s2 := NewScheduler(r2.engine)
	if err := s2.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s2.Stop()
}

func TestStopWaitIsBounded(t *testing.T) {
	if waitWithGrace(make(chan struct{}), 10*time.Millisecond) {
		t.Errorf("Expected timeout on a channel that never closes")
	}

	done := make(chan struct{})
	close(done)
	if !waitWithGrace(done, 10*time.Millisecond) {
		t.Errorf("Expected immediate return on a closed channel")
	}
}

func TestDimensionMismatchIsFatal(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Vector = config.Vector{Backend: "sqlite", Path: dir}
	cfg.Embedding = config.Embedding{Service: "mock", Dim: 8}

	counters, err := store.NewSQLiteStore(filepath.Join(dir, "counters.db"))
	if err != nil {
		t.Fatalf("Failed to open counter store: %v", err)
	}
	defer counters.Close()

	vec, err := vector.New(cfg.Vector)
	if err != nil {
		t.Fatalf("Failed to build vector store: %v", err)
	}

	_, err = New(context.Background(), cfg, session.NewStore(counters, observe.Discard()),
		vec, embedding.NewMock(4), provider.NewStub(), observe.Discard(), nil)
	if err == nil {
		t.Errorf("Expected dimension mismatch to fail engine construction")
	}
}
