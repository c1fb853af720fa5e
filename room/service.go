/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Seednode/partyroom/games/liar"
	"github.com/Seednode/partyroom/games/party"
)

const (
	defaultPollInterval = 3 * time.Second
	appendAttempts      = 3
)

var tracer = otel.Tracer("github.com/Seednode/partyroom/room")

// Options configures a Service. Only Store is required.
type Options struct {
	Store        Store
	Broker       *Broker
	Words        liar.WordBank
	Logger       *zap.Logger
	PollInterval time.Duration

	// Now and Seed default to the wall clock and crypto/rand.
	Now  func() time.Time
	Seed func() (int64, error)
}

// Command is a request to append one event on behalf of ActorID.
type Command struct {
	Kind    Kind
	ActorID string
	Payload any
}

// Service appends commands to room logs and serves the folded documents.
type Service struct {
	store    Store
	broker   *Broker
	reducer  Reducer
	logger   *zap.Logger
	poll     time.Duration
	now      func() time.Time
	seed     func() (int64, error)
	roomLock sync.Map
}

func NewService(opts Options) *Service {
	s := &Service{
		store:   opts.Store,
		broker:  opts.Broker,
		reducer: Reducer{Words: opts.Words},
		logger:  opts.Logger,
		poll:    opts.PollInterval,
		now:     opts.Now,
		seed:    opts.Seed,
	}
	if s.store == nil {
		s.store = NewMemoryStore()
	}
	if s.broker == nil {
		s.broker = NewBroker()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.poll <= 0 {
		s.poll = defaultPollInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.seed == nil {
		s.seed = party.NewSeed
	}
	return s
}

func (s *Service) lock(roomID string) func() {
	v, _ := s.roomLock.LoadOrStore(roomID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Create opens a new room run by hostID. An empty hostID leaves the room
// without a host until its first member joins.
func (s *Service) Create(ctx context.Context, roomID string, game Game, hostID string, maxPlayers int) (Document, error) {
	if hostID == "" {
		hostID = SystemActor
	}
	return s.Submit(ctx, roomID, Command{
		Kind:    KindCreated,
		ActorID: hostID,
		Payload: CreatedPayload{Game: game, MaxPlayers: maxPlayers},
	})
}

// Load folds the room's latest snapshot and any events after it.
func (s *Service) Load(ctx context.Context, roomID string) (Document, error) {
	ctx, span := tracer.Start(ctx, "room.Load", trace.WithAttributes(attribute.String("room.id", roomID)))
	defer span.End()

	d, err := s.load(ctx, roomID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return d, err
}

func (s *Service) load(ctx context.Context, roomID string) (Document, error) {
	d, err := s.store.Snapshot(ctx, roomID)
	switch {
	case errors.Is(err, ErrNotFound):
		d = Document{}
	case err != nil:
		return Document{}, err
	}

	events, err := s.store.Events(ctx, roomID, d.Seq)
	if err != nil {
		return Document{}, fmt.Errorf("read room %s: %w", roomID, err)
	}

	d, err = s.reducer.Replay(d, events)
	if err != nil {
		return Document{}, fmt.Errorf("replay room %s: %w", roomID, err)
	}
	if d.Seq == 0 {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, roomID)
	}

	return d, nil
}

// Submit folds cmd onto the room's current document and appends it to the
// log. A command whose preconditions do not hold is rejected and nothing is
// appended; the returned document is then the unchanged current one.
func (s *Service) Submit(ctx context.Context, roomID string, cmd Command) (Document, error) {
	ctx, span := tracer.Start(ctx, "room.Submit", trace.WithAttributes(
		attribute.String("room.id", roomID),
		attribute.String("room.event", string(cmd.Kind)),
	))
	defer span.End()

	unlock := s.lock(roomID)
	defer unlock()

	if cmd.Kind == KindStarted && cmd.Payload == nil {
		seed, err := s.seed()
		if err != nil {
			return Document{}, err
		}
		cmd.Payload = StartedPayload{Seed: seed}
	}

	var (
		d   Document
		err error
	)
	for range appendAttempts {
		d, err = s.submit(ctx, roomID, cmd)
		if !errors.Is(err, ErrConflict) {
			break
		}
		s.logger.Debug("append conflict, retrying",
			zap.String("room_id", roomID),
			zap.String("kind", string(cmd.Kind)),
		)
	}

	switch {
	case err == nil:
		span.SetAttributes(attribute.Int64("room.seq", int64(d.Seq)))
	case party.IsIllegal(err):
		span.AddEvent("rejected", trace.WithAttributes(attribute.String("reason", err.Error())))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return d, err
}

func (s *Service) submit(ctx context.Context, roomID string, cmd Command) (Document, error) {
	var current Document
	if cmd.Kind != KindCreated {
		var err error
		current, err = s.load(ctx, roomID)
		if err != nil {
			return Document{}, err
		}
	}

	e, err := NewEvent(roomID, current.Seq+1, cmd.Kind, cmd.ActorID, cmd.Payload, s.now())
	if err != nil {
		return current, err
	}

	next, err := s.reducer.Apply(current, e)
	if err != nil {
		return current, err
	}

	if err := s.store.Append(ctx, roomID, current.Seq, e); err != nil {
		if cmd.Kind == KindCreated && errors.Is(err, ErrConflict) {
			return current, fmt.Errorf("%w: room %s already exists", party.ErrIllegalTransition, roomID)
		}
		return current, err
	}

	if err := s.store.SaveSnapshot(ctx, next); err != nil {
		s.logger.Warn("save snapshot",
			zap.String("room_id", roomID),
			zap.Uint64("seq", next.Seq),
			zap.Error(err),
		)
	}

	s.logger.Debug("event appended",
		zap.String("room_id", roomID),
		zap.Uint64("seq", e.Seq),
		zap.String("kind", string(e.Kind)),
		zap.String("actor_id", e.ActorID),
		zap.String("trace_id", trace.SpanFromContext(ctx).SpanContext().TraceID().String()),
	)

	s.broker.Publish(roomID, next.Seq)

	return next, nil
}

// Subscribe delivers every new version of the room until ctx is done: pushed
// by this service's own appends, and polled from the store to pick up
// anything another process appended.
func (s *Service) Subscribe(ctx context.Context, roomID string) <-chan Document {
	push, cancel := s.broker.Subscribe(roomID)
	ticker := time.NewTicker(s.poll)

	go func() {
		<-ctx.Done()
		ticker.Stop()
		cancel()
	}()

	return Watch(ctx, func(ctx context.Context) (Document, error) {
		return s.Load(ctx, roomID)
	}, push, ticker.C)
}

// Delete discards a finished or abandoned room.
func (s *Service) Delete(ctx context.Context, roomID string) error {
	unlock := s.lock(roomID)
	defer unlock()

	if err := s.store.Delete(ctx, roomID); err != nil {
		return err
	}
	s.roomLock.Delete(roomID)

	return nil
}
