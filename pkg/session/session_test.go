package session

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/theme"
	"github.com/matzehuels/heapview/pkg/timeline"
	"github.com/matzehuels/heapview/pkg/viewer"
)

func snap(x int) string {
	return `{"frames":[{"name":"main","locals":[["x",["LONG",` + strconv.Itoa(x) + `]]]}],"heap":[]}`
}

func newSession(t *testing.T, ttl time.Duration) *Session {
	t.Helper()
	tl, err := timeline.Parse([]byte(snap(1)+"\n"+snap(2)+"\n"), "rec")
	if err != nil {
		t.Fatal(err)
	}
	panel := viewer.New(viewer.Options{Scene: theme.Default().SceneOptions()})
	sess, err := New(tl, panel, Options{TTL: ttl})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(sess.Close)
	return sess
}

func TestSessionGoto(t *testing.T) {
	sess := newSession(t, 0)
	ctx := context.Background()

	var step, changed int
	err := sess.Do(ctx, "step", func(st *State) error {
		if err := st.Goto(1); err != nil {
			return err
		}
		step, changed = st.Step, st.Stats.Changed()
		return nil
	})
	if err != nil || step != 1 || changed != 1 {
		t.Errorf("Goto(1): step %d changed %d err %v", step, changed, err)
	}

	err = sess.Do(ctx, "step", func(st *State) error { return st.Goto(5) })
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Goto(5) = %v, want NOT_FOUND", err)
	}
}

func TestSessionSerializesOperations(t *testing.T) {
	sess := newSession(t, 0)

	counter := 0
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sess.Do(context.Background(), "inc", func(*State) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestSessionContextCancel(t *testing.T) {
	sess := newSession(t, 0)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = sess.Do(context.Background(), "block", func(*State) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sess.Do(ctx, "late", func(*State) error { return nil }); err != context.Canceled {
		t.Errorf("Do with cancelled ctx = %v", err)
	}
	close(release)
}

func TestSessionClose(t *testing.T) {
	sess := newSession(t, 0)
	sess.Close()
	sess.Close()

	err := sess.Do(context.Background(), "noop", func(*State) error { return nil })
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Do after Close = %v, want NOT_FOUND", err)
	}
}

func TestNewEmptyRecording(t *testing.T) {
	tl, _ := timeline.Parse(nil, "empty")
	panel := viewer.New(viewer.Options{Scene: theme.Default().SceneOptions()})
	if _, err := New(tl, panel, Options{}); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	sess := newSession(t, 0)
	if err := store.Set(ctx, sess); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, sess.ID)
	if err != nil || got != sess {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got, _ := store.Get(ctx, "nope"); got != nil {
		t.Error("unknown id should return nil")
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d after Delete", store.Len())
	}
	if err := sess.Do(ctx, "noop", func(*State) error { return nil }); err == nil {
		t.Error("deleted session should be closed")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	a := newSession(t, time.Millisecond)
	b := newSession(t, time.Millisecond)
	keep := newSession(t, time.Hour)
	for _, s := range []*Session{a, b, keep} {
		_ = store.Set(ctx, s)
	}
	time.Sleep(10 * time.Millisecond)

	if got, _ := store.Get(ctx, a.ID); got != nil {
		t.Error("expired session returned by Get")
	}
	if err := store.Cleanup(ctx); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d after Cleanup, want 1", store.Len())
	}
	if got, _ := store.Get(ctx, keep.ID); got != keep {
		t.Error("live session dropped")
	}
}
