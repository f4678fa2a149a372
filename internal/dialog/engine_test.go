package dialog

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/deskhelp/deskbot/internal/logging"
	"github.com/deskhelp/deskbot/internal/persist"
)

func TestMain(m *testing.M) {
	logging.Disable()
	os.Exit(m.Run())
}

type step struct {
	text string
	err  error
}

// fakeResponder replays a script of answers and records which method was
// called with which previous answer. An empty script answers with a default.
type fakeResponder struct {
	script   []step
	calls    []string
	prevSeen []string
	followUp string
}

func (f *fakeResponder) take(method, prev string) (string, error) {
	f.calls = append(f.calls, method)
	f.prevSeen = append(f.prevSeen, prev)
	if len(f.script) == 0 {
		return "ответ", nil
	}
	s := f.script[0]
	f.script = f.script[1:]
	return s.text, s.err
}

func (f *fakeResponder) ShortAnswer(_ context.Context, _ string) (string, error) {
	return f.take("short", "")
}

func (f *fakeResponder) AlternativeStrategy(_ context.Context, _, prev string) (string, error) {
	return f.take("alt", prev)
}

func (f *fakeResponder) FollowUpQuestion(_ context.Context, _, prev string) (string, error) {
	f.calls = append(f.calls, "follow")
	f.prevSeen = append(f.prevSeen, prev)
	if f.followUp == "" {
		return "Какая у вас модель устройства?", nil
	}
	return f.followUp, nil
}

type captureChannel struct{ ch chan string }

func newCaptureChannel() *captureChannel {
	return &captureChannel{ch: make(chan string, 4)}
}

func (c *captureChannel) Notify(text string) { c.ch <- text }

func (c *captureChannel) wait(t *testing.T) string {
	t.Helper()
	select {
	case text := <-c.ch:
		return text
	case <-time.After(time.Second):
		t.Fatal("no notification arrived")
		return ""
	}
}

func newTestEngine(r *fakeResponder) (*Engine, *Store, *persist.Queue) {
	st := NewStore()
	q := persist.NewQueue()
	return NewEngine(st, r, q, nil), st, q
}

func TestGreetingShowsTopMenu(t *testing.T) {
	e, st, _ := newTestEngine(&fakeResponder{})

	got := e.HandleInbound("u1", "Привет", "Иван")
	if got != msgTopMenu {
		t.Errorf("reply = %q, want top menu", got)
	}
	s, ok := st.Get("u1")
	if !ok {
		t.Fatal("no session created")
	}
	if s.State != StateAwaitingChoice {
		t.Errorf("state = %v, want awaiting_choice", s.State)
	}
	if s.DisplayName != "Иван" {
		t.Errorf("display name = %q", s.DisplayName)
	}
}

func TestNoiseCreatesNoSession(t *testing.T) {
	e, st, _ := newTestEngine(&fakeResponder{})

	got := e.HandleInbound("u1", "👍👍👍", "")
	if got != msgClarify {
		t.Errorf("reply = %q, want clarify prompt", got)
	}
	if st.Len() != 0 {
		t.Errorf("noise created a session")
	}
}

func TestChoiceRouting(t *testing.T) {
	cases := []struct {
		choice string
		state  State
		reply  string
	}{
		{"1", StateConsultation, msgConsultPrompt},
		{"2", StateRepair, msgRepairPrompt},
		{"3", StateSoftware, msgSoftwarePrompt},
		{"4", StateContactEngineer, msgEngineerPrompt},
	}
	for _, tc := range cases {
		e, st, _ := newTestEngine(&fakeResponder{})
		e.HandleInbound("u1", "Здравствуйте", "")
		got := e.HandleInbound("u1", tc.choice, "")
		if got != tc.reply {
			t.Errorf("choice %s: reply = %q, want %q", tc.choice, got, tc.reply)
		}
		s, _ := st.Get("u1")
		if s.State != tc.state {
			t.Errorf("choice %s: state = %v, want %v", tc.choice, s.State, tc.state)
		}
	}
}

func TestInvalidChoiceReprompts(t *testing.T) {
	e, st, _ := newTestEngine(&fakeResponder{})
	e.HandleInbound("u1", "Здравствуйте", "")

	got := e.HandleInbound("u1", "восемь", "")
	if got != msgChooseBranch {
		t.Errorf("reply = %q, want choose-branch prompt", got)
	}
	s, _ := st.Get("u1")
	if s.State != StateAwaitingChoice {
		t.Errorf("state changed on invalid choice: %v", s.State)
	}
}

func TestQuestionAtStartAnswersAndOpensMenu(t *testing.T) {
	r := &fakeResponder{script: []step{{text: "Проверьте кабель."}}}
	e, st, _ := newTestEngine(r)

	got := e.HandleInbound("u1", "Почему принтер не печатает?", "")
	if got != "Проверьте кабель."+msgConsultMenu {
		t.Errorf("reply = %q", got)
	}
	s, _ := st.Get("u1")
	if s.State != StateConsultationMenu {
		t.Errorf("state = %v, want consultation_menu", s.State)
	}
	if s.LastAnswer != "Проверьте кабель." {
		t.Errorf("last answer = %q", s.LastAnswer)
	}
	if len(r.calls) != 1 || r.calls[0] != "short" {
		t.Errorf("calls = %v, want one short answer", r.calls)
	}
}

func TestRepeatedQuestionUsesAlternativeStrategy(t *testing.T) {
	r := &fakeResponder{script: []step{{text: "Проверьте кабель."}, {text: "Переустановите драйвер."}}}
	e, st, _ := newTestEngine(r)

	q := "Почему принтер не печатает?"
	e.HandleInbound("u1", q, "")
	got := e.HandleInbound("u1", q, "")

	if !strings.HasPrefix(got, "Переустановите драйвер.") {
		t.Errorf("reply = %q", got)
	}
	if len(r.calls) != 2 || r.calls[1] != "alt" {
		t.Fatalf("calls = %v, want short then alt", r.calls)
	}
	if r.prevSeen[1] != "Проверьте кабель." {
		t.Errorf("alternative got previous answer %q", r.prevSeen[1])
	}
	s, _ := st.Get("u1")
	if s.RepeatCount != 1 {
		t.Errorf("repeat count = %d, want 1", s.RepeatCount)
	}
}

func TestSecondRepeatAddsFollowUpQuestion(t *testing.T) {
	r := &fakeResponder{script: []step{
		{text: "Проверьте кабель."},
		{text: "Переустановите драйвер."},
		{text: "Попробуйте другой порт."},
	}}
	e, _, _ := newTestEngine(r)

	q := "Почему принтер не печатает?"
	e.HandleInbound("u1", q, "")
	e.HandleInbound("u1", q, "")
	got := e.HandleInbound("u1", q, "")

	if !strings.Contains(got, "Попробуйте другой порт.") {
		t.Errorf("reply = %q", got)
	}
	if !strings.Contains(got, "Какая у вас модель устройства?") {
		t.Errorf("reply missing follow-up question: %q", got)
	}
	want := []string{"short", "alt", "alt", "follow"}
	if len(r.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", r.calls, want)
	}
	for i := range want {
		if r.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, r.calls[i], want[i])
		}
	}
}

func TestRepeatInsideConsultationState(t *testing.T) {
	r := &fakeResponder{script: []step{
		{text: "Проверьте кабель."},
		{text: "Переустановите драйвер."},
	}}
	e, _, _ := newTestEngine(r)

	q := "Почему принтер не печатает?"
	e.HandleInbound("u1", q, "")
	e.HandleInbound("u1", "2", "") // back to consultation
	e.HandleInbound("u1", q, "")

	if len(r.calls) != 2 || r.calls[1] != "alt" {
		t.Errorf("calls = %v, repeat in consultation not routed to alternative", r.calls)
	}
}

// Normalization makes punctuation and case variants count as repeats.
func TestRepeatDetectionIgnoresPunctuation(t *testing.T) {
	r := &fakeResponder{}
	e, _, _ := newTestEngine(r)

	e.HandleInbound("u1", "Почему принтер не печатает?", "")
	e.HandleInbound("u1", "ПОЧЕМУ, принтер не печатает???", "")

	if len(r.calls) != 2 || r.calls[1] != "alt" {
		t.Errorf("calls = %v, variant not detected as repeat", r.calls)
	}
}

func TestDoneProducesOneRowAndEvicts(t *testing.T) {
	r := &fakeResponder{script: []step{{text: "Проверьте кабель."}}}
	e, st, q := newTestEngine(r)

	e.HandleInbound("u1", "Почему принтер не печатает?", "Иван")
	got := e.HandleInbound("u1", "1", "Иван")

	if got != msgClosing {
		t.Errorf("reply = %q, want closing", got)
	}
	if st.Len() != 0 {
		t.Errorf("session not evicted")
	}
	rows := q.Swap()
	if len(rows) != 1 {
		t.Fatalf("%d rows enqueued, want 1", len(rows))
	}
	row := rows[0]
	if row.UserID != "u1" || row.DisplayName != "Иван" || row.SourceTag != sourceTagWebhook {
		t.Errorf("row = %+v", row)
	}
	for _, want := range []string{
		"Пользователь: Почему принтер не печатает?",
		"Бот: Проверьте кабель.",
		"Пользователь: " + turnDone,
		"Бот: " + msgClosing,
	} {
		if !strings.Contains(row.Transcript, want) {
			t.Errorf("transcript missing %q:\n%s", want, row.Transcript)
		}
	}
}

func TestContinueReturnsToConsultation(t *testing.T) {
	e, st, q := newTestEngine(&fakeResponder{})

	e.HandleInbound("u1", "Почему принтер не печатает?", "")
	got := e.HandleInbound("u1", "2", "")

	if got != msgMoreDetails {
		t.Errorf("reply = %q", got)
	}
	s, _ := st.Get("u1")
	if s.State != StateConsultation {
		t.Errorf("state = %v, want consultation", s.State)
	}
	if q.Len() != 0 {
		t.Errorf("continue enqueued a row")
	}
}

func TestEscalateFromMenuThenContactClosesSession(t *testing.T) {
	r := &fakeResponder{}
	e, st, q := newTestEngine(r)
	ch := newCaptureChannel()
	e.notifier = ch

	e.HandleInbound("u1", "Почему принтер не печатает?", "")
	got := e.HandleInbound("u1", "3", "")
	if got != msgEngineerPrompt {
		t.Fatalf("reply = %q, want engineer prompt", got)
	}

	got = e.HandleInbound("u1", "Телефон 555-0101, после 15:00", "")
	if got != msgEngineerAck {
		t.Errorf("reply = %q, want engineer ack", got)
	}
	if st.Len() != 0 {
		t.Errorf("session not evicted after escalation")
	}
	if rows := q.Swap(); len(rows) != 1 {
		t.Errorf("%d rows enqueued, want 1", len(rows))
	}
	note := ch.wait(t)
	if !strings.Contains(note, "555-0101") {
		t.Errorf("notification = %q", note)
	}
}

func TestRepairBranchEndToEnd(t *testing.T) {
	e, st, q := newTestEngine(&fakeResponder{})

	e.HandleInbound("u1", "Добрый день", "")
	e.HandleInbound("u1", "2", "")
	got := e.HandleInbound("u1", "МФУ зажёвывает бумагу", "")

	if got != msgRepairAck {
		t.Errorf("reply = %q, want repair ack", got)
	}
	if st.Len() != 0 {
		t.Errorf("session not evicted")
	}
	rows := q.Swap()
	if len(rows) != 1 {
		t.Fatalf("%d rows enqueued, want 1", len(rows))
	}
	if !strings.Contains(rows[0].Transcript, "МФУ зажёвывает бумагу") {
		t.Errorf("transcript missing problem description:\n%s", rows[0].Transcript)
	}
}

func TestResponderFailureAtStartKeepsSessionRetryable(t *testing.T) {
	r := &fakeResponder{script: []step{
		{err: errors.New("upstream 500")},
		{text: "Проверьте кабель."},
	}}
	e, st, _ := newTestEngine(r)

	got := e.HandleInbound("u1", "Почему принтер не печатает?", "")
	if got != msgApology {
		t.Fatalf("reply = %q, want apology", got)
	}
	s, _ := st.Get("u1")
	if s.State != StateStart {
		t.Fatalf("state = %v, want start", s.State)
	}

	// The retry goes through the normal path.
	got = e.HandleInbound("u1", "Почему принтер не печатает?", "")
	if !strings.HasPrefix(got, "Проверьте кабель.") {
		t.Errorf("retry reply = %q", got)
	}
	s, _ = st.Get("u1")
	if s.State != StateConsultationMenu {
		t.Errorf("retry state = %v", s.State)
	}
}

func TestResponderFailureInMenuKeepsState(t *testing.T) {
	r := &fakeResponder{script: []step{
		{text: "Проверьте кабель."},
		{err: errors.New("timeout")},
	}}
	e, st, _ := newTestEngine(r)

	e.HandleInbound("u1", "Почему принтер не печатает?", "")
	got := e.HandleInbound("u1", "А почему сканер не работает?", "")

	if got != msgApology {
		t.Errorf("reply = %q, want apology", got)
	}
	s, _ := st.Get("u1")
	if s.State != StateConsultationMenu {
		t.Errorf("state = %v, want consultation_menu", s.State)
	}
}

// A failed call must not advance repeat detection; the next identical
// question counts from the committed state.
func TestFailedCallDoesNotAdvanceRepeatCount(t *testing.T) {
	r := &fakeResponder{script: []step{
		{text: "Проверьте кабель."},
		{err: errors.New("timeout")},
		{text: "Переустановите драйвер."},
	}}
	e, st, _ := newTestEngine(r)

	q := "Почему принтер не печатает?"
	e.HandleInbound("u1", q, "")
	e.HandleInbound("u1", q, "") // fails
	e.HandleInbound("u1", q, "")

	s, _ := st.Get("u1")
	if s.RepeatCount != 1 {
		t.Errorf("repeat count = %d, want 1", s.RepeatCount)
	}
	// Both repeat attempts went to the alternative strategy.
	want := []string{"short", "alt", "alt"}
	for i := range want {
		if r.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", r.calls, want)
		}
	}
}

func TestLongAnswerTruncated(t *testing.T) {
	long := strings.Repeat("о", 900)
	r := &fakeResponder{script: []step{{text: long}}}
	e, st, _ := newTestEngine(r)

	got := e.HandleInbound("u1", "Почему принтер не печатает?", "")
	answer := strings.TrimSuffix(got, msgConsultMenu)
	if runes := len([]rune(answer)); runes != answerBudget+1 {
		t.Errorf("answer is %d runes, want %d plus marker", runes, answerBudget+1)
	}
	if !strings.HasSuffix(answer, "…") {
		t.Errorf("truncated answer has no marker: %q", answer[len(answer)-12:])
	}
	s, _ := st.Get("u1")
	if s.LastAnswer != answer {
		t.Errorf("session kept untruncated answer")
	}
}

func TestUsersAreIndependent(t *testing.T) {
	e, st, _ := newTestEngine(&fakeResponder{})

	e.HandleInbound("u1", "Привет", "")
	e.HandleInbound("u2", "Почему принтер не печатает?", "")

	s1, _ := st.Get("u1")
	s2, _ := st.Get("u2")
	if s1.State != StateAwaitingChoice {
		t.Errorf("u1 state = %v", s1.State)
	}
	if s2.State != StateConsultationMenu {
		t.Errorf("u2 state = %v", s2.State)
	}
}

func TestSweeperPersistsIdleSessionOnce(t *testing.T) {
	e, st, q := newTestEngine(&fakeResponder{})
	sw := NewSweeper(e, 30*time.Minute)

	e.HandleInbound("u1", "Почему принтер не печатает?", "")
	s, _ := st.Get("u1")
	s.UpdatedAt = time.Now().Add(-time.Hour)

	sw.Sweep()

	if st.Len() != 0 {
		t.Fatalf("idle session not evicted")
	}
	rows := q.Swap()
	if len(rows) != 1 {
		t.Fatalf("%d rows enqueued, want 1", len(rows))
	}
	if rows[0].SourceTag != sourceTagTimeout {
		t.Errorf("source tag = %q, want timeout", rows[0].SourceTag)
	}

	// A handler racing the sweeper must not produce a second row.
	e.finalize(s)
	if q.Len() != 0 {
		t.Errorf("finalize after sweep enqueued a duplicate row")
	}
}

func TestSweeperSkipsFreshSessions(t *testing.T) {
	e, st, q := newTestEngine(&fakeResponder{})
	sw := NewSweeper(e, 30*time.Minute)

	e.HandleInbound("u1", "Привет", "")
	sw.Sweep()

	if st.Len() != 1 {
		t.Errorf("fresh session evicted")
	}
	if q.Len() != 0 {
		t.Errorf("fresh session persisted")
	}
}

// blockingResponder parks inside ShortAnswer until released, keeping a
// handler in flight while other goroutines run.
type blockingResponder struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingResponder) ShortAnswer(context.Context, string) (string, error) {
	close(b.started)
	<-b.release
	return "ответ", nil
}

func (b *blockingResponder) AlternativeStrategy(context.Context, string, string) (string, error) {
	return "ответ", nil
}

func (b *blockingResponder) FollowUpQuestion(context.Context, string, string) (string, error) {
	return "вопрос", nil
}

// The sweep must serialize with in-flight handlers on the per-user lock
// instead of reading session fields mid-mutation. Run with the race
// detector enabled.
func TestSweepSerializesWithInFlightHandler(t *testing.T) {
	r := &blockingResponder{started: make(chan struct{}), release: make(chan struct{})}
	st := NewStore()
	q := persist.NewQueue()
	e := NewEngine(st, r, q, nil)
	sw := NewSweeper(e, 30*time.Minute)

	done := make(chan string, 1)
	go func() { done <- e.HandleInbound("u1", "Почему принтер не печатает?", "") }()
	<-r.started

	swept := make(chan struct{})
	go func() { sw.Sweep(); close(swept) }()

	time.Sleep(10 * time.Millisecond)
	close(r.release)
	reply := <-done
	<-swept

	if !strings.HasPrefix(reply, "ответ") {
		t.Errorf("reply = %q", reply)
	}
	s, ok := st.Get("u1")
	if !ok || s.State != StateConsultationMenu {
		t.Errorf("session disturbed by concurrent sweep: %+v", s)
	}
	if q.Len() != 0 {
		t.Errorf("active session persisted by sweep")
	}
}

// Terminal transitions must not drop the per-user lock entry: a handler
// already blocked on it and a later message would otherwise run on
// different mutexes against the same session.
func TestUserLockOutlivesSession(t *testing.T) {
	e, st, _ := newTestEngine(&fakeResponder{})

	e.HandleInbound("u1", "Почему принтер не печатает?", "")
	before, ok := e.userLocks.Load("u1")
	if !ok {
		t.Fatal("no lock entry after first message")
	}

	e.HandleInbound("u1", "1", "")
	if st.Len() != 0 {
		t.Fatal("session not evicted")
	}
	after, ok := e.userLocks.Load("u1")
	if !ok {
		t.Fatal("lock entry removed on session end")
	}
	if after != before {
		t.Error("lock entry replaced across session end")
	}
}

// A retry after an apology must not leave the failed attempt's user line in
// the transcript.
func TestRetryAfterApologyKeepsTranscriptClean(t *testing.T) {
	q1 := "Почему принтер не печатает?"
	q2 := "А как подключить сканер?"
	r := &fakeResponder{script: []step{
		{err: errors.New("upstream 500")},
		{text: "Проверьте кабель."},
		{err: errors.New("timeout")},
		{text: "Через меню настроек."},
	}}
	e, _, q := newTestEngine(r)

	e.HandleInbound("u1", q1, "") // apology, state Start
	e.HandleInbound("u1", q1, "") // answered
	e.HandleInbound("u1", q2, "") // apology, stays in menu
	e.HandleInbound("u1", q2, "") // answered
	e.HandleInbound("u1", "1", "")

	rows := q.Swap()
	if len(rows) != 1 {
		t.Fatalf("%d rows enqueued, want 1", len(rows))
	}
	for _, question := range []string{q1, q2} {
		if got := strings.Count(rows[0].Transcript, question); got != 1 {
			t.Errorf("question %q appears %d times in transcript, want 1:\n%s",
				question, got, rows[0].Transcript)
		}
	}
}
