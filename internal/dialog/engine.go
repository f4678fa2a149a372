package dialog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/deskhelp/deskbot/internal/classify"
	"github.com/deskhelp/deskbot/internal/logging"
	"github.com/deskhelp/deskbot/internal/notify"
	"github.com/deskhelp/deskbot/internal/persist"
	"github.com/deskhelp/deskbot/internal/responder"
)

// answerBudget caps displayed short answers, in runes.
const answerBudget = 400

const (
	sourceTagWebhook = "webhook"
	sourceTagTimeout = "timeout"
)

// Engine drives the dialog state machine. HandleInbound is safe for
// concurrent use across users; messages from the same user are serialized
// on a per-user lock held across the Responder call, so one slow model call
// never blocks other users.
type Engine struct {
	store     *Store
	responder responder.Responder
	queue     *persist.Queue
	notifier  notify.Channel

	// userID -> *sync.Mutex. Entries live for the process lifetime:
	// removing one while another handler is blocked on it would let a
	// later message mint a second mutex for the same user.
	userLocks sync.Map
}

// NewEngine wires the state machine to its collaborators. notifier may be
// nil when no side channel is configured.
func NewEngine(store *Store, r responder.Responder, q *persist.Queue, n notify.Channel) *Engine {
	return &Engine{store: store, responder: r, queue: q, notifier: n}
}

// HandleInbound processes one inbound message and returns the reply text.
// It never returns an error: every capability failure is converted into a
// user-facing reply and the session is left in a consistent state.
func (e *Engine) HandleInbound(userID, rawText, displayName string) string {
	text := strings.TrimSpace(rawText)

	mu := e.lockUser(userID)
	defer mu.Unlock()

	sess, ok := e.store.Get(userID)
	if !ok {
		return e.handleStart(nil, userID, text, displayName)
	}
	sess.UpdatedAt = time.Now()

	switch sess.State {
	case StateStart:
		// Parked here after a responder failure; reclassify from scratch.
		return e.handleStart(sess, userID, text, displayName)
	case StateAwaitingChoice:
		return e.handleChoice(sess, text)
	case StateConsultation:
		return e.handleConsultation(sess, text)
	case StateConsultationMenu:
		return e.handleConsultationMenu(sess, text)
	case StateRepair:
		return e.handleOneShot(sess, text, msgRepairAck, "Заявка на ремонт")
	case StateSoftware:
		return e.handleOneShot(sess, text, msgSoftwareAck, "Заявка на ПО")
	case StateContactEngineer:
		return e.handleOneShot(sess, text, msgEngineerAck, "Запрос инженера")
	default:
		logging.Errorf("unknown session state %d for %s, resetting", sess.State, userID)
		e.finalize(sess)
		return msgFallback
	}
}

func (e *Engine) lockUser(userID string) *sync.Mutex {
	v, _ := e.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu
}

// handleStart classifies the first message. sess is nil unless a previous
// question attempt failed at the responder.
func (e *Engine) handleStart(sess *Session, userID, text, displayName string) string {
	switch classify.Classify(text) {
	case classify.Noise:
		// No session for noise.
		return msgClarify

	case classify.Question:
		if sess == nil {
			sess = e.store.Create(userID, displayName, sourceTagWebhook)
		}
		answer, err := e.responder.ShortAnswer(context.Background(), text)
		if err != nil {
			logging.Errorf("responder failed for %s: %v", userID, err)
			return msgApology // state stays Start, the retry reclassifies
		}
		answer = classify.Truncate(answer, answerBudget)
		// Turns are recorded only for answered questions, so a retry after
		// an apology does not duplicate the user line.
		sess.appendTurn(SpeakerUser, text)
		sess.appendTurn(SpeakerBot, answer)
		sess.LastFingerprint = classify.Normalize(text)
		sess.RepeatCount = 0
		sess.LastAnswer = answer
		sess.State = StateConsultationMenu
		return answer + msgConsultMenu

	default: // greeting
		if sess == nil {
			sess = e.store.Create(userID, displayName, sourceTagWebhook)
		}
		sess.appendTurn(SpeakerUser, text)
		sess.State = StateAwaitingChoice
		return msgTopMenu
	}
}

func (e *Engine) handleChoice(sess *Session, text string) string {
	sess.appendTurn(SpeakerUser, text)
	switch text {
	case choiceConsultation:
		sess.State = StateConsultation
		return msgConsultPrompt
	case choiceRepair:
		sess.State = StateRepair
		return msgRepairPrompt
	case choiceSoftware:
		sess.State = StateSoftware
		return msgSoftwarePrompt
	case choiceEngineer:
		sess.State = StateContactEngineer
		return msgEngineerPrompt
	default:
		// Invalid choice: re-prompt, state unchanged.
		return msgChooseBranch
	}
}

func (e *Engine) handleConsultation(sess *Session, text string) string {
	answer, err := e.answerQuestion(sess, text, false)
	if err != nil {
		logging.Errorf("responder failed for %s: %v", sess.UserID, err)
		return msgApology // state stays Consultation
	}
	sess.appendTurn(SpeakerUser, text)
	sess.appendTurn(SpeakerBot, answer)
	sess.State = StateConsultationMenu
	return answer + msgConsultMenu
}

func (e *Engine) handleConsultationMenu(sess *Session, text string) string {
	switch text {
	case menuDone:
		sess.appendTurn(SpeakerUser, turnDone)
		sess.appendTurn(SpeakerBot, msgClosing)
		e.finalize(sess)
		return msgClosing

	case menuContinue:
		sess.appendTurn(SpeakerUser, turnContinue)
		sess.State = StateConsultation
		return msgMoreDetails

	case menuEscalate:
		sess.appendTurn(SpeakerUser, text)
		sess.State = StateContactEngineer
		return msgEngineerPrompt

	default:
		// Anything else is a new or repeated question; stay in the menu.
		answer, err := e.answerQuestion(sess, text, true)
		if err != nil {
			logging.Errorf("responder failed for %s: %v", sess.UserID, err)
			return msgApology
		}
		sess.appendTurn(SpeakerUser, text)
		sess.appendTurn(SpeakerBot, answer)
		return answer + msgConsultMenu
	}
}

// answerQuestion runs repeat detection and picks the responder variant:
// a true repeat (repeatCount >= 1) switches to the alternative strategy,
// and from the second repeat onward a clarifying follow-up question is
// appended when withFollowUp is set. Repeat state is committed only after
// the responder succeeds, so a failed call does not skew the next attempt.
func (e *Engine) answerQuestion(sess *Session, text string, withFollowUp bool) (string, error) {
	fp := classify.Normalize(text)
	repeats := 0
	if fp != "" && fp == sess.LastFingerprint {
		repeats = sess.RepeatCount + 1
	}

	ctx := context.Background()
	var answer string
	var err error
	if repeats >= 1 {
		answer, err = e.responder.AlternativeStrategy(ctx, text, sess.LastAnswer)
	} else {
		answer, err = e.responder.ShortAnswer(ctx, text)
	}
	if err != nil {
		return "", err
	}
	answer = classify.Truncate(answer, answerBudget)

	if withFollowUp && repeats >= 2 {
		if q, ferr := e.responder.FollowUpQuestion(ctx, text, sess.LastAnswer); ferr == nil {
			answer += "\n\n" + strings.TrimSpace(q)
		} else {
			logging.Warnf("follow-up question failed for %s: %v", sess.UserID, ferr)
		}
	}

	sess.LastFingerprint = fp
	sess.RepeatCount = repeats
	sess.LastAnswer = answer
	return answer, nil
}

// handleOneShot closes out the single-message branches (repair, software,
// engineer contact): acknowledge, notify the side channel, persist, evict.
func (e *Engine) handleOneShot(sess *Session, text, ack, label string) string {
	sess.appendTurn(SpeakerUser, text)
	sess.appendTurn(SpeakerBot, ack)
	if e.notifier != nil {
		// Best effort, never blocks the reply.
		go e.notifier.Notify(fmt.Sprintf("%s от %s: %s", label, sess.UserID, text))
	}
	e.finalize(sess)
	return ack
}

// finalize is the single terminal path: exactly one persistence row per
// session, then eviction. The pointer-checked Remove keeps this exactly-once
// even if the idle sweeper evicted the session mid-flight.
func (e *Engine) finalize(sess *Session) {
	if e.store.Remove(sess.UserID, sess) {
		e.queue.Push(persist.Row{
			Timestamp:   time.Now(),
			UserID:      sess.UserID,
			DisplayName: sess.DisplayName,
			SourceTag:   sess.SourceTag,
			Transcript:  sess.Transcript(),
		})
	}
}

// EvictIdle removes every session idle longer than maxIdle and enqueues any
// non-empty transcript with the timeout source tag. Each candidate is
// inspected under its per-user lock, so the sweep and an in-flight handler
// never touch the same session concurrently.
func (e *Engine) EvictIdle(maxIdle time.Duration) int {
	evicted := 0
	for _, userID := range e.store.UserIDs() {
		mu := e.lockUser(userID)
		now := time.Now()
		if s, ok := e.store.Get(userID); ok && now.Sub(s.UpdatedAt) > maxIdle && e.store.Remove(userID, s) {
			if len(s.Turns) > 0 {
				e.queue.Push(persist.Row{
					Timestamp:   now,
					UserID:      s.UserID,
					DisplayName: s.DisplayName,
					SourceTag:   sourceTagTimeout,
					Transcript:  s.Transcript(),
				})
			}
			evicted++
		}
		mu.Unlock()
	}
	return evicted
}
