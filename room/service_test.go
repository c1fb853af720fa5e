/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Seednode/partyroom/games/liar"
	"github.com/Seednode/partyroom/games/party"
)

func newTestService(store Store) *Service {
	return NewService(Options{
		Store:        store,
		PollInterval: 10 * time.Millisecond,
		Seed:         func() (int64, error) { return 17, nil },
	})
}

func startedRoom(t *testing.T, svc *Service, game Game) Document {
	t.Helper()
	ctx := context.Background()

	if _, err := svc.Create(ctx, "r1", game, "host", 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := svc.Submit(ctx, "r1", Command{Kind: KindJoined, ActorID: id, Payload: JoinedPayload{Name: "P" + id}}); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
		if _, err := svc.Submit(ctx, "r1", Command{Kind: KindReady, ActorID: id, Payload: ReadyPayload{Ready: true}}); err != nil {
			t.Fatalf("ready %s: %v", id, err)
		}
	}

	d, err := svc.Submit(ctx, "r1", Command{Kind: KindStarted, ActorID: "host"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return d
}

func TestServiceCreateAndLoad(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	if _, err := svc.Load(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load missing err = %v", err)
	}

	d, err := svc.Create(ctx, "r1", Mafia, "host", 6)
	if err != nil {
		t.Fatal(err)
	}
	if d.Seq != 1 || d.MaxPlayers != 6 || d.HostID != "host" {
		t.Fatalf("doc = %+v", d)
	}

	if _, err := svc.Create(ctx, "r1", Liar, "other", 0); !party.IsIllegal(err) {
		t.Fatalf("duplicate create err = %v", err)
	}

	loaded, err := svc.Load(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Game != Mafia || loaded.Seq != 1 {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestServiceStartUsesSeed(t *testing.T) {
	d := startedRoom(t, newTestService(nil), Liar)
	if d.Status != Playing || d.Liar == nil {
		t.Fatalf("doc = %+v", d)
	}

	want, err := liar.New(d.Members, nil, party.NewRand(17))
	if err != nil {
		t.Fatal(err)
	}
	if d.Liar.ImpostorID != want.ImpostorID || d.Liar.SecretWord != want.SecretWord {
		t.Fatalf("dealt %s/%s, want %s/%s", d.Liar.ImpostorID, d.Liar.SecretWord, want.ImpostorID, want.SecretWord)
	}
}

func TestServiceRejectedCommandAppendsNothing(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store)
	d := startedRoom(t, svc, Liar)
	ctx := context.Background()

	got, err := svc.Submit(ctx, "r1", Command{Kind: KindHint, ActorID: "b", Payload: TextPayload{Text: "early"}})
	if !party.IsIllegal(err) {
		t.Fatalf("out-of-turn hint err = %v", err)
	}
	if got.Seq != d.Seq {
		t.Fatalf("seq = %d, want %d", got.Seq, d.Seq)
	}

	events, err := store.Events(ctx, "r1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if uint64(len(events)) != d.Seq {
		t.Fatalf("log has %d events, want %d", len(events), d.Seq)
	}
}

// flakyStore fails the first append with a conflict, as if another process
// had appended in between.
type flakyStore struct {
	*MemoryStore
	conflicts atomic.Int32
}

func (f *flakyStore) Append(ctx context.Context, roomID string, expected uint64, events ...Event) error {
	if f.conflicts.Add(-1) >= 0 {
		return ErrConflict
	}
	return f.MemoryStore.Append(ctx, roomID, expected, events...)
}

func TestServiceRetriesConflicts(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "r1", Liar, "host", 0); err != nil {
		t.Fatal(err)
	}

	store.conflicts.Store(2)
	d, err := svc.Submit(ctx, "r1", Command{Kind: KindJoined, ActorID: "a", Payload: JoinedPayload{Name: "Ann"}})
	if err != nil {
		t.Fatalf("submit after conflicts: %v", err)
	}
	if d.Seq != 2 {
		t.Fatalf("seq = %d", d.Seq)
	}

	store.conflicts.Store(appendAttempts)
	if _, err := svc.Submit(ctx, "r1", Command{Kind: KindJoined, ActorID: "b", Payload: JoinedPayload{Name: "Bo"}}); !errors.Is(err, ErrConflict) {
		t.Fatalf("persistent conflict err = %v", err)
	}
}

func TestServiceLoadFoldsTailAfterSnapshot(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "r1", Liar, "host", 0); err != nil {
		t.Fatal(err)
	}

	// Another writer appended without refreshing the snapshot.
	e, _ := NewEvent("r1", 2, KindJoined, "a", JoinedPayload{Name: "Ann"}, epoch)
	if err := store.Append(ctx, "r1", 1, e); err != nil {
		t.Fatal(err)
	}

	d, err := svc.Load(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Seq != 2 || !d.Members.Contains("a") {
		t.Fatalf("doc = %+v", d)
	}
}

func TestServiceSubscribe(t *testing.T) {
	svc := newTestService(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := svc.Create(ctx, "r1", Liar, "host", 0); err != nil {
		t.Fatal(err)
	}

	updates := svc.Subscribe(ctx, "r1")
	first := receive(t, updates)
	if first.Seq != 1 {
		t.Fatalf("first seq = %d", first.Seq)
	}

	if _, err := svc.Submit(ctx, "r1", Command{Kind: KindJoined, ActorID: "a", Payload: JoinedPayload{Name: "Ann"}}); err != nil {
		t.Fatal(err)
	}
	if got := receive(t, updates); got.Seq != 2 {
		t.Fatalf("second seq = %d", got.Seq)
	}

	cancel()
	for range updates {
	}
}

func TestServiceDelete(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "r1", Liar, "host", 0); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Load(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load after delete err = %v", err)
	}
}

func receive(t *testing.T, ch <-chan Document) Document {
	t.Helper()
	select {
	case d, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for document")
	}
	return Document{}
}
