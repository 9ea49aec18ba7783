package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"team-arena/internal/obslog"
	"team-arena/internal/session"
	"team-arena/internal/store"
)

// DeletionCallback fires when a session the local user is playing disappears
// from the store; the caller returns the UI to a neutral state.
type DeletionCallback func(v session.Variant, sess *session.Session)

// Syncer mirrors the local user's sessions into three buckets per variant:
// pending invitations addressed to the user, active sessions (in progress,
// plus the user's own outgoing pending challenges) and terminal history.
//
// A single goroutine owns the bucket state. Feed events re-fetch the affected
// record by id before merging; a changed store client id means events may have
// been missed, so the whole state is re-fetched instead of trusting the
// incremental stream.
type Syncer struct {
	store        store.Store
	userID       string
	pollInterval time.Duration

	mu      sync.RWMutex
	buckets map[session.Variant]*variantBuckets

	onDeletion DeletionCallback

	events       chan store.Event
	resyncNeeded chan struct{}
	unsubs       []func()
	lastClientID string

	cancel context.CancelFunc
	done   chan struct{}
}

type variantBuckets struct {
	pending map[string]*session.Session
	active  map[string]*session.Session
	history map[string]*session.Session
}

func newVariantBuckets() *variantBuckets {
	return &variantBuckets{
		pending: make(map[string]*session.Session),
		active:  make(map[string]*session.Session),
		history: make(map[string]*session.Session),
	}
}

func New(st store.Store, userID string, pollInterval time.Duration) *Syncer {
	if pollInterval <= 0 {
		pollInterval = 2500 * time.Millisecond
	}
	s := &Syncer{
		store:        st,
		userID:       userID,
		pollInterval: pollInterval,
		buckets:      make(map[session.Variant]*variantBuckets),
		events:       make(chan store.Event, 256),
		resyncNeeded: make(chan struct{}, 1),
	}
	for _, v := range session.Variants {
		s.buckets[v] = newVariantBuckets()
	}
	return s
}

// OnRemoteDeletion registers the exit-to-neutral callback. Set before Start.
func (s *Syncer) OnRemoteDeletion(cb DeletionCallback) {
	s.onDeletion = cb
}

// Start fetches the baseline, subscribes to every session collection and
// launches the run loop.
func (s *Syncer) Start(ctx context.Context) error {
	if err := s.Resync(ctx); err != nil {
		return err
	}
	for _, v := range session.Variants {
		unsub, err := s.store.Subscribe(v.Collection(), s.enqueue)
		if err != nil {
			return err
		}
		s.unsubs = append(s.unsubs, unsub)
	}
	s.lastClientID = s.store.ClientID()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx)
	return nil
}

// Stop halts the run loop and unsubscribes from the feed.
func (s *Syncer) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
}

// enqueue hands a feed event to the run loop. It must not block; a full queue
// marks the state for a full re-fetch instead.
func (s *Syncer) enqueue(ev store.Event) {
	select {
	case s.events <- ev:
	default:
		s.markResync()
	}
}

func (s *Syncer) markResync() {
	select {
	case s.resyncNeeded <- struct{}{}:
	default:
	}
}

func (s *Syncer) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		case <-s.resyncNeeded:
			if err := s.Resync(ctx); err != nil {
				obslog.L().Warn("sync_resync_error", zap.Error(err))
				s.markResync()
			}
		case <-ticker.C:
			s.checkClientID(ctx)
		}
	}
}

// checkClientID watches the feed identity. A change, including the identity
// vanishing and coming back, means the transport reconnected and incremental
// events cannot be trusted.
func (s *Syncer) checkClientID(ctx context.Context) {
	cur := s.store.ClientID()
	if cur == s.lastClientID {
		return
	}
	prev := s.lastClientID
	s.lastClientID = cur
	if cur == "" {
		// transport is down; resync once it is back
		return
	}
	obslog.L().Info("sync_reconnect_detected",
		zap.String("previous_client_id", prev),
		zap.String("client_id", cur))
	if err := s.Resync(ctx); err != nil {
		obslog.L().Warn("sync_resync_error", zap.Error(err))
		s.markResync()
	}
}

// Resync replaces every bucket from a full list fetch.
func (s *Syncer) Resync(ctx context.Context) error {
	fresh := make(map[session.Variant]*variantBuckets)
	for _, v := range session.Variants {
		vb := newVariantBuckets()
		recs, err := s.store.List(ctx, v.Collection(), store.Query{
			Filter: participantFilter(v, s.userID),
			Sort:   "-created",
		})
		if err != nil {
			return err
		}
		for _, rec := range recs {
			sess, derr := session.FromRecord(v, rec)
			if derr != nil {
				obslog.L().Warn("sync_decode_error", zap.String("collection", v.Collection()), zap.Error(derr))
				continue
			}
			vb.place(sess, s.userID)
		}
		fresh[v] = vb
	}

	s.mu.Lock()
	s.buckets = fresh
	s.mu.Unlock()
	obslog.L().Debug("sync_baseline_loaded", zap.String("user_id", s.userID))
	return nil
}

// handleEvent re-fetches the touched record and merges it. The event payload
// itself is only trusted for the record id and the collection.
func (s *Syncer) handleEvent(ctx context.Context, ev store.Event) {
	v, ok := session.VariantForCollection(ev.Collection)
	if !ok {
		return
	}
	id := ev.Record.ID()
	if id == "" {
		return
	}

	if ev.Action == store.ActionDelete {
		s.drop(v, id)
		return
	}

	rec, err := s.store.GetOne(ctx, ev.Collection, id)
	if errors.Is(err, store.ErrNotFound) {
		s.drop(v, id)
		return
	}
	if err != nil {
		obslog.L().Warn("sync_refetch_error", zap.String("collection", ev.Collection), zap.String("id", id), zap.Error(err))
		s.markResync()
		return
	}

	sess, err := session.FromRecord(v, rec)
	if err != nil {
		obslog.L().Warn("sync_decode_error", zap.String("collection", ev.Collection), zap.Error(err))
		return
	}

	s.mu.Lock()
	vb := s.buckets[v]
	vb.remove(id)
	vb.place(sess, s.userID)
	s.mu.Unlock()
}

// drop removes a deleted session everywhere and fires the deletion callback
// when the user was actively playing it.
func (s *Syncer) drop(v session.Variant, id string) {
	s.mu.Lock()
	vb := s.buckets[v]
	active, wasActive := vb.active[id]
	vb.remove(id)
	s.mu.Unlock()

	if wasActive && s.onDeletion != nil {
		obslog.L().Warn("sync_active_session_deleted",
			zap.String("collection", v.Collection()),
			zap.String("session_id", id))
		s.onDeletion(v, active)
	}
}

// place slots a session into the right bucket; non-participants are ignored.
func (vb *variantBuckets) place(sess *session.Session, userID string) {
	if !sess.IsParticipant(userID) {
		return
	}
	switch {
	case sess.Status.Terminal():
		vb.history[sess.ID] = sess
	case sess.Status == session.StatusPending && sess.Opponent == userID:
		vb.pending[sess.ID] = sess
	default:
		// in-progress sessions and the user's own outgoing pending challenges
		vb.active[sess.ID] = sess
	}
}

func (vb *variantBuckets) remove(id string) {
	delete(vb.pending, id)
	delete(vb.active, id)
	delete(vb.history, id)
}

// Pending returns invitations addressed to the user, newest first.
func (s *Syncer) Pending(v session.Variant) []*session.Session {
	return s.snapshot(v, func(vb *variantBuckets) map[string]*session.Session { return vb.pending })
}

// Active returns sessions the user is playing, newest first.
func (s *Syncer) Active(v session.Variant) []*session.Session {
	return s.snapshot(v, func(vb *variantBuckets) map[string]*session.Session { return vb.active })
}

// History returns the user's terminal sessions, newest first.
func (s *Syncer) History(v session.Variant) []*session.Session {
	return s.snapshot(v, func(vb *variantBuckets) map[string]*session.Session { return vb.history })
}

func (s *Syncer) snapshot(v session.Variant, pick func(*variantBuckets) map[string]*session.Session) []*session.Session {
	s.mu.RLock()
	vb, ok := s.buckets[v]
	if !ok {
		s.mu.RUnlock()
		return nil
	}
	bucket := pick(vb)
	out := make([]*session.Session, 0, len(bucket))
	for _, sess := range bucket {
		cp := *sess
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out
}

// participantFilter matches sessions where userID plays either seat, using the
// variant's field names.
func participantFilter(v session.Variant, userID string) store.Filter {
	switch v {
	case session.VariantDuel:
		return store.Or(store.Eq("challenger", userID), store.Eq("opponent", userID))
	case session.VariantChess:
		return store.Or(store.Eq("player_white", userID), store.Eq("player_black", userID))
	case session.VariantTicTacToe:
		return store.Or(store.Eq("player_x", userID), store.Eq("player_o", userID))
	}
	return nil
}
