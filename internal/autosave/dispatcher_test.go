package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujianku/sesi-backend/internal/config"
)

func newBareDispatcher() *Dispatcher {
	// Redis-free dispatcher: these tests exercise only the in-flight
	// save tracking, which never touches the client.
	return NewDispatcher(nil, zerolog.Nop())
}

func TestAwaitLastSaveWithNoSaveReturnsImmediately(t *testing.T) {
	d := newBareDispatcher()
	if err := d.AwaitLastSave(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAwaitLastSaveBlocksUntilSettled(t *testing.T) {
	d := newBareDispatcher()
	fin := d.beginSave(1)

	finished := make(chan error, 1)
	go func() {
		finished <- d.AwaitLastSave(context.Background(), 1)
	}()

	select {
	case <-finished:
		t.Fatal("finish proceeded while a save was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	fin.settle(nil)

	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("await did not unblock after the save settled")
	}
}

func TestAwaitLastSaveFailureAlsoUnblocks(t *testing.T) {
	d := newBareDispatcher()
	fin := d.beginSave(1)

	saveErr := errors.New("persist rejected")
	fin.settle(saveErr)

	if err := d.AwaitLastSave(context.Background(), 1); !errors.Is(err, saveErr) {
		t.Fatalf("got %v, want the save error", err)
	}
}

func TestAwaitLastSaveTracksLastWriterOnly(t *testing.T) {
	d := newBareDispatcher()

	first := d.beginSave(1)
	second := d.beginSave(1)

	// Settling only the most recent save must unblock the await even
	// though the older one never settles.
	second.settle(nil)

	done := make(chan error, 1)
	go func() { done <- d.AwaitLastSave(context.Background(), 1) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("await blocked on a superseded save")
	}

	first.settle(nil) // tidy up
}

func TestAwaitLastSaveIsPerSession(t *testing.T) {
	d := newBareDispatcher()
	fin := d.beginSave(1)
	defer fin.settle(nil)

	// Session 2 has nothing in flight.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.AwaitLastSave(ctx, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAwaitLastSaveHonorsContext(t *testing.T) {
	d := newBareDispatcher()
	fin := d.beginSave(1)
	defer fin.settle(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := d.AwaitLastSave(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context deadline", err)
	}
}

// fakeRedis serves the dispatcher's hash and queue commands from
// in-process maps by short-circuiting the client's process hook, so no
// server is involved. Commands outside that surface fail loudly.
type fakeRedis struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	queues  map[string][]string
	hsetErr error
}

func newFakeRedis() (*redis.Client, *fakeRedis) {
	f := &fakeRedis{
		hashes: make(map[string]map[string]string),
		queues: make(map[string][]string),
	}
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	client.AddHook(f)
	return client, f
}

func (f *fakeRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (f *fakeRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (f *fakeRedis) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		f.mu.Lock()
		defer f.mu.Unlock()

		args := cmd.Args()
		switch cmd.Name() {
		case "hget":
			key, field := args[1].(string), args[2].(string)
			val, ok := f.hashes[key][field]
			if !ok {
				return redis.Nil
			}
			cmd.(*redis.StringCmd).SetVal(val)

		case "hset":
			if f.hsetErr != nil {
				return f.hsetErr
			}
			key := args[1].(string)
			if f.hashes[key] == nil {
				f.hashes[key] = make(map[string]string)
			}
			f.hashes[key][args[2].(string)] = argString(args[3])
			cmd.(*redis.IntCmd).SetVal(1)

		case "hdel":
			key := args[1].(string)
			delete(f.hashes[key], args[2].(string))
			cmd.(*redis.IntCmd).SetVal(1)

		case "hgetall":
			key := args[1].(string)
			out := make(map[string]string, len(f.hashes[key]))
			for field, val := range f.hashes[key] {
				out[field] = val
			}
			cmd.(*redis.MapStringStringCmd).SetVal(out)

		case "rpush":
			key := args[1].(string)
			f.queues[key] = append(f.queues[key], argString(args[2]))
			cmd.(*redis.IntCmd).SetVal(int64(len(f.queues[key])))

		default:
			return fmt.Errorf("fake redis: unhandled command %q", cmd.Name())
		}
		return nil
	}
}

func (f *fakeRedis) setHSetErr(err error) {
	f.mu.Lock()
	f.hsetErr = err
	f.mu.Unlock()
}

func (f *fakeRedis) queueLen(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queues[key])
}

func argString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func TestSavePatchesSnapshotAfterEnqueue(t *testing.T) {
	client, f := newFakeRedis()
	d := NewDispatcher(client, zerolog.Nop())
	ctx := context.Background()

	if err := d.Save(ctx, 7, 3, "a"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	snap, err := d.Snapshot(ctx, 7)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	state, ok := snap[3]
	if !ok || state.Answer == nil || *state.Answer != "a" {
		t.Fatalf("snapshot entry = %+v, want answer \"a\"", state)
	}
	if got := f.queueLen(config.WorkerKey.PersistAnswersQueue); got != 1 {
		t.Fatalf("queued jobs = %d, want 1", got)
	}
}

func TestFailedPatchDropsStaleSnapshotEntry(t *testing.T) {
	client, f := newFakeRedis()
	d := NewDispatcher(client, zerolog.Nop())
	ctx := context.Background()

	if err := d.Save(ctx, 7, 3, "a"); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	// The second save enqueues its durable job but the snapshot patch
	// fails. The old entry must not survive: a later load would overlay
	// it on top of the newer durable row.
	f.setHSetErr(errors.New("connection reset by peer"))
	if err := d.Save(ctx, 7, 3, "b"); err != nil {
		t.Fatalf("save must report success once the job is queued: %v", err)
	}
	f.setHSetErr(nil)

	snap, err := d.Snapshot(ctx, 7)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if _, ok := snap[3]; ok {
		t.Fatal("stale snapshot entry survived the failed patch")
	}
	if got := f.queueLen(config.WorkerKey.PersistAnswersQueue); got != 2 {
		t.Fatalf("queued jobs = %d, want 2", got)
	}
}

func TestForgetDropsTracking(t *testing.T) {
	d := newBareDispatcher()
	d.beginSave(1)
	d.Forget(1)

	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		err = d.AwaitLastSave(context.Background(), 1)
	}()
	wg.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
