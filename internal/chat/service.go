package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// FallbackReply is sent down the channel when generation or persistence
// fails. The channel itself stays open; errors never propagate past the
// service boundary.
const FallbackReply = "Sorry, I could not process that message right now. Please try again."

// Service coordinates context injection, persistence, history bounding and
// the generation call for one user message at a time.
type Service struct {
	log        Log
	gen        Generator
	memory     *Memory
	maxHistory int
	genTimeout time.Duration
}

// NewService creates the conversation orchestrator.
func NewService(msgLog Log, gen Generator, memory *Memory, maxHistory int, genTimeout time.Duration) *Service {
	return &Service{
		log:        msgLog,
		gen:        gen,
		memory:     memory,
		maxHistory: maxHistory,
		genTimeout: genTimeout,
	}
}

// HandleMessage answers one user message for the given session.
//
// The durable writes (user turn, single-oldest eviction, assistant turn) run
// in one transaction; the in-memory cache is mutated only after that
// transaction commits, so a rollback never leaves cache and log divergent.
// On any collaborator or persistence failure the reply is FallbackReply and
// the returned error carries the failure kind.
func (s *Service) HandleMessage(ctx context.Context, sessionID, userText string, fundContext map[string]any) (string, error) {
	if sessionID == "" {
		return "", &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if userText == "" {
		return "", &ValidationError{Field: "text", Reason: "must not be empty"}
	}

	unlock := s.memory.Lock(sessionID)
	defer unlock()

	prompt := s.memory.GetOrCreate(sessionID)

	// A session can be missing from the cache while the log still holds its
	// history (process restart, idle eviction). Rebuild the entry from the
	// log before building the prompt; durable rows also mean the session has
	// already started, so context injection stays once-per-session.
	if len(prompt) == 0 && !s.memory.Started(sessionID) {
		durable, err := s.log.Recent(sessionID, s.maxHistory)
		if err != nil {
			return FallbackReply, &PersistenceError{Op: "restore history", Err: err}
		}
		if len(durable) > 0 {
			for _, m := range durable {
				s.memory.Append(sessionID, Turn{SessionID: m.SessionID, Role: m.Role, Content: m.Content, Order: m.ID})
			}
			s.memory.MarkStarted(sessionID)
			prompt = s.memory.GetOrCreate(sessionID)
		}
	}

	// Inject fund context once per session, as a synthetic first turn. It is
	// memory-only: the log stores only what the user and model actually said.
	var ctxTurn *Turn
	if fundContext != nil && !s.memory.Started(sessionID) {
		data, err := json.Marshal(fundContext)
		if err != nil {
			return "", &ValidationError{Field: "context", Reason: err.Error()}
		}
		ctxTurn = &Turn{
			SessionID: sessionID,
			Role:      RoleContext,
			Content:   "CONTEXT DATA: " + string(data),
		}
		prompt = append([]Turn{*ctxTurn}, prompt...)
	}

	tx, err := s.log.Begin(ctx)
	if err != nil {
		return FallbackReply, &PersistenceError{Op: "begin", Err: err}
	}
	// No-op once the transaction has committed.
	defer tx.Rollback()

	userOrder, err := tx.Append(sessionID, RoleUser, userText)
	if err != nil {
		return FallbackReply, &PersistenceError{Op: "append user turn", Err: err}
	}

	// Sliding window: evict the single oldest turn once the session reaches
	// capacity. One eviction per accepted message, checked only here.
	count, err := tx.Count(sessionID)
	if err != nil {
		return FallbackReply, &PersistenceError{Op: "count turns", Err: err}
	}
	if count >= s.maxHistory {
		oldest, err := tx.Oldest(sessionID)
		if err != nil {
			return FallbackReply, &PersistenceError{Op: "find oldest turn", Err: err}
		}
		if oldest != nil {
			if err := tx.Delete(oldest.ID); err != nil {
				return FallbackReply, &PersistenceError{Op: "evict oldest turn", Err: err}
			}
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()
	reply, err := s.gen.Generate(genCtx, prompt, userText)
	if err != nil {
		log.Printf("[chat] generation failed for session %s: %v", sessionID, err)
		return FallbackReply, translateGenerateErr(err)
	}

	assistantOrder, err := tx.Append(sessionID, RoleAssistant, reply)
	if err != nil {
		return FallbackReply, &PersistenceError{Op: "append assistant turn", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return FallbackReply, &PersistenceError{Op: "commit", Err: err}
	}

	// Mirror the committed turns into the cache and bound its length.
	if ctxTurn != nil {
		s.memory.Append(sessionID, *ctxTurn)
	}
	s.memory.Append(sessionID, Turn{SessionID: sessionID, Role: RoleUser, Content: userText, Order: userOrder})
	s.memory.Append(sessionID, Turn{SessionID: sessionID, Role: RoleAssistant, Content: reply, Order: assistantOrder})
	s.memory.MarkStarted(sessionID)
	s.memory.TrimFront(sessionID, s.maxHistory)

	return reply, nil
}

func translateGenerateErr(err error) error {
	var collab *CollaboratorError
	if errors.As(err, &collab) {
		return err
	}
	if errors.Is(err, ErrCollaboratorUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
}
