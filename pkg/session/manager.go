package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/stingersec/stinger/internal/observability"
	"github.com/stingersec/stinger/pkg/agent"
	"github.com/stingersec/stinger/pkg/events"
	"github.com/stingersec/stinger/pkg/history"
	"github.com/stingersec/stinger/pkg/queue"
	"github.com/stingersec/stinger/pkg/run"
)

// Recorder persists conversational content for cross-session recall.
// Satisfied by memory.Store.
type Recorder interface {
	Save(ctx context.Context, sessionID, content string) error
}

// Manager owns the live sessions and their prompt lanes. Each session's
// turns run on its own lane, one at a time; lanes of different sessions run
// concurrently.
type Manager struct {
	agents     *agent.Registry
	controller *run.Controller
	lanes      *queue.Queue
	store      *Store
	memory     Recorder
	emitter    *events.Emitter

	mu       sync.RWMutex
	sessions map[string]*run.Session
}

// NewManager creates a manager. store and memory may be nil when
// persistence or recall is not wanted.
func NewManager(agents *agent.Registry, controller *run.Controller, lanes *queue.Queue, store *Store, memory Recorder, emitter *events.Emitter) *Manager {
	observability.EnsureRegistered()
	return &Manager{
		agents:     agents,
		controller: controller,
		lanes:      lanes,
		store:      store,
		memory:     memory,
		emitter:    emitter,
		sessions:   make(map[string]*run.Session),
	}
}

// Create starts a new session on the given agent.
func (m *Manager) Create(agentID string, cfg run.Config) (*run.Session, error) {
	if !m.agents.Exists(agentID) {
		return nil, fmt.Errorf("agent not found: %s", agentID)
	}

	sess := run.NewSession(agentID, cfg)

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	count := len(m.sessions)
	m.mu.Unlock()

	observability.SetActiveSessions(count)
	m.emitter.Emit(events.Event{
		Type:      events.TypeSessionCreated,
		SessionID: sess.ID,
		AgentID:   agentID,
	})

	log.Info().
		Str("session_id", sess.ID).
		Str("agent_id", agentID).
		Msg("Session created")

	return sess, nil
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*run.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sess, nil
}

// List returns the ids of all live sessions.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close cancels a session, drops its queued prompts, and forgets it. The
// archived transcript, if a store is configured, stays on disk.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}

	sess.Cancel()
	m.lanes.Remove(id)

	observability.SetActiveSessions(count)
	m.emitter.Emit(events.Event{
		Type:      events.TypeSessionClosed,
		SessionID: id,
	})

	log.Info().Str("session_id", id).Msg("Session closed")
	return nil
}

// Submit queues a prompt on the session's lane and blocks until its turn
// has run. In FIFO mode prompts submitted while the session is busy run
// strictly in submission order; in replace mode they evict anything still
// waiting, so only the newest prompt runs.
func (m *Manager) Submit(ctx context.Context, id, prompt string) (run.TurnOutcome, error) {
	sess, err := m.Get(id)
	if err != nil {
		return run.TurnOutcome{}, err
	}

	if sess.Config.QueueMode == run.QueueReplace {
		if dropped := m.lanes.Reset(id); dropped > 0 {
			log.Debug().
				Str("session_id", id).
				Int("dropped", dropped).
				Msg("Superseded queued prompts")
		}
	}

	value, err := m.lanes.Enqueue(ctx, id, func(taskCtx context.Context) (interface{}, error) {
		outcome := m.controller.RunTurn(taskCtx, sess, prompt)
		m.archive(sess, outcome)
		return outcome, nil
	})
	if err != nil {
		return run.TurnOutcome{}, err
	}

	return value.(run.TurnOutcome), nil
}

// Broadcast submits the same prompt to many sessions at once. Each session
// runs it as an ordinary turn, concurrently with and independently of the
// others. A session that rejected the prompt reports an ERROR outcome
// carrying the rejection.
func (m *Manager) Broadcast(ctx context.Context, prompt string, ids []string) map[string]run.TurnOutcome {
	results := make(map[string]run.TurnOutcome, len(ids))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := m.Submit(ctx, id, prompt)
			if err != nil {
				outcome = run.TurnOutcome{State: run.StateError, Err: err}
			}
			mu.Lock()
			results[id] = outcome
			mu.Unlock()
		}()
	}
	wg.Wait()

	return results
}

// archive appends the turn's committed messages to the store and records
// the conversational content for cross-session recall.
func (m *Manager) archive(sess *run.Session, outcome run.TurnOutcome) {
	if len(outcome.Messages) == 0 {
		return
	}
	if m.store != nil {
		if err := m.store.Append(sess.ID, outcome.Messages); err != nil {
			log.Warn().Str("session_id", sess.ID).Err(err).Msg("Failed to archive turn")
		}
	}
	m.remember(sess.ID, outcome.Messages)
}

// remember stores the turn's user and assistant content as one excerpt.
// Tool chatter is skipped, and failures only warn; recall is an
// enhancement, never a turn blocker.
func (m *Manager) remember(sessionID string, msgs []history.Message) {
	if m.memory == nil {
		return
	}

	var b strings.Builder
	for _, msg := range msgs {
		if msg.Role == history.RoleTool || msg.Content == "" {
			continue
		}
		sender := msg.Sender
		if sender == "" {
			sender = string(msg.Role)
		}
		b.WriteString(sender)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return
	}

	if err := m.memory.Save(context.Background(), sessionID, b.String()); err != nil {
		log.Warn().Str("session_id", sessionID).Err(err).Msg("Failed to store memory excerpt")
	}
}
