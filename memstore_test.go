package coach

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errInjected = errors.New("injected store failure")

// memStore is an in-memory Store shared by the package tests. It mirrors the
// postgres semantics (seq assignment, soft delete, lease expiry) and
// honors ctx cancellation on every call so detached-append behavior is
// observable.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	messages map[string][]Message
	leases   map[string]memLease
	logs     map[string]*RequestLog

	failDeleteAfter bool
	failUpdate      bool
	failList        bool
}

type memLease struct {
	owner     string
	expiresAt time.Time
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
		leases:   make(map[string]memLease),
		logs:     make(map[string]*RequestLog),
	}
}

func (s *memStore) CreateSchema(ctx context.Context) error { return ctx.Err() }
func (s *memStore) DropSchema(ctx context.Context) error   { return ctx.Err() }

func (s *memStore) CreateSession(ctx context.Context, ownerID, title string, rules Rules) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	session := &Session{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     title,
		Rules:     rules,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[session.ID] = session
	copied := *session
	return &copied, nil
}

func (s *memStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.DeletedAt != nil {
		return nil, ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *memStore) ListSessions(ctx context.Context, ownerID string, limit, offset int) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []Session
	for _, session := range s.sessions {
		if session.OwnerID == ownerID && session.DeletedAt == nil {
			sessions = append(sessions, *session)
		}
	}
	return sessions, nil
}

func (s *memStore) RenameSession(ctx context.Context, sessionID, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.DeletedAt != nil {
		return ErrSessionNotFound
	}
	session.Title = title
	session.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.DeletedAt != nil {
		return ErrSessionNotFound
	}
	now := time.Now()
	session.DeletedAt = &now
	return nil
}

func (s *memStore) PurgeSessions(ctx context.Context, retention time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	purged := 0
	for id, session := range s.sessions {
		if session.DeletedAt != nil && session.DeletedAt.Before(cutoff) {
			delete(s.sessions, id)
			delete(s.messages, id)
			purged++
		}
	}
	return purged, nil
}

func (s *memStore) AppendMessage(ctx context.Context, sessionID, role, content string, metadata map[string]string, usage *Usage) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.DeletedAt != nil {
		return nil, ErrSessionNotFound
	}

	maxSeq := 0
	for _, m := range s.messages[sessionID] {
		if m.Seq > maxSeq {
			maxSeq = m.Seq
		}
	}

	msg := Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Seq:       maxSeq + 1,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		Usage:     usage,
		CreatedAt: time.Now(),
	}
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	session.MessageCount = len(s.messages[sessionID])
	session.UpdatedAt = msg.CreatedAt

	copied := msg
	return &copied, nil
}

func (s *memStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failList {
		return nil, errInjected
	}

	msgs := make([]Message, len(s.messages[sessionID]))
	copy(msgs, s.messages[sessionID])
	return msgs, nil
}

func (s *memStore) DeleteMessagesAfter(ctx context.Context, sessionID string, afterSeq int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failDeleteAfter {
		return 0, errInjected
	}

	session, ok := s.sessions[sessionID]
	if !ok || session.DeletedAt != nil {
		return 0, ErrSessionNotFound
	}

	var kept []Message
	deleted := 0
	for _, m := range s.messages[sessionID] {
		if m.Seq > afterSeq {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.messages[sessionID] = kept
	session.MessageCount = len(kept)
	return deleted, nil
}

func (s *memStore) UpdateMessageContent(ctx context.Context, sessionID, messageID, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failUpdate {
		return errInjected
	}

	msgs := s.messages[sessionID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].Content = content
			return nil
		}
	}
	return ErrMessageNotFound
}

func (s *memStore) AcquireEditLease(ctx context.Context, sessionID, owner string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if lease, ok := s.leases[sessionID]; ok {
		if lease.owner != owner && time.Now().Before(lease.expiresAt) {
			return ErrLeaseHeld
		}
	}
	s.leases[sessionID] = memLease{owner: owner, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *memStore) ReleaseEditLease(ctx context.Context, sessionID, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if lease, ok := s.leases[sessionID]; ok && lease.owner == owner {
		delete(s.leases, sessionID)
	}
	return nil
}

func (s *memStore) AddRequestLog(ctx context.Context, log RequestLog) (*RequestLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log.ID = uuid.New().String()
	log.CreatedAt = time.Now()
	log.UpdatedAt = log.CreatedAt
	stored := log
	s.logs[log.ID] = &stored
	copied := log
	return &copied, nil
}

func (s *memStore) UpdateRequestLog(ctx context.Context, id, response, status, failReason, errorMsg string, retryCount int, usage *Usage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[id]
	if !ok {
		return errInjected
	}
	log.Response = response
	log.FinalStatus = status
	log.FailReason = failReason
	log.ErrorMessage = errorMsg
	log.RetryCount = retryCount
	log.Usage = usage
	log.UpdatedAt = time.Now()
	return nil
}

var _ Store = (*memStore)(nil)

// fakeProvider is a scripted Provider. entered receives a value when Send
// starts, release blocks Send until closed; both are optional. onSend runs
// before returning, with the call's context.
type fakeProvider struct {
	mu          sync.Mutex
	calls       int
	reply       string
	err         error
	entered     chan struct{}
	release     chan struct{}
	onSend      func(ctx context.Context)
	lastPrompt  string
	lastHistory []Message
}

func (p *fakeProvider) Send(ctx context.Context, rules Rules, history []Message, prompt string) (*Result, error) {
	p.mu.Lock()
	p.calls++
	p.lastPrompt = prompt
	p.lastHistory = make([]Message, len(history))
	copy(p.lastHistory, history)
	entered, release, onSend := p.entered, p.release, p.onSend
	reply, err := p.reply, p.err
	p.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if onSend != nil {
		onSend(ctx)
	}
	if err != nil {
		return nil, err
	}
	if reply == "" {
		reply = "keep going, you have got this"
	}
	return &Result{
		Content: reply,
		Usage:   Usage{PromptTokens: 7, ResponseTokens: 11, TotalTokens: 18},
	}, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

var _ Provider = (*fakeProvider)(nil)
