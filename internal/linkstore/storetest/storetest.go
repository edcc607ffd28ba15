// Package storetest is a conformance suite for linkstore.Store implementations.
// Every backend runs it against a fresh store per subtest.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/linkstore"
	"github.com/sundayezeilo/shortlink/sluggen"
)

// Factory returns an empty store configured with opts. It is called once per subtest.
type Factory func(t *testing.T, opts ...linkstore.Option) linkstore.Store

// Epoch is the starting time of every suite clock. It has no sub-microsecond
// part so backends storing microsecond timestamps round-trip it exactly.
var Epoch = time.Date(2030, time.January, 1, 10, 0, 0, 0, time.UTC)

// Workers is the number of concurrent callers used by the concurrency checks.
const Workers = 50

/***************
 * Clock
 ***************/

// Clock is a settable linkstore.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock { return &Clock{now: now} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

/***************
 * Generator
 ***************/

// ScriptedGenerator replays a fixed list of codes and then falls back to random ones.
type ScriptedGenerator struct {
	mu    sync.Mutex
	codes []string
	calls int
	next  sluggen.Generator
}

func NewScriptedGenerator(codes ...string) *ScriptedGenerator {
	return &ScriptedGenerator{codes: codes, next: sluggen.NewBase62()}
}

func (g *ScriptedGenerator) Generate(length int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.codes) > 0 {
		code := g.codes[0]
		g.codes = g.codes[1:]
		return code, nil
	}
	return g.next.Generate(length)
}

// Calls returns how many codes were requested.
func (g *ScriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

/***************
 * Suite
 ***************/

// Run executes the conformance suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("Create", func(t *testing.T) { testCreate(t, newStore) })
	t.Run("ResolveAndTrack", func(t *testing.T) { testResolve(t, newStore) })
	t.Run("Invalidate", func(t *testing.T) { testInvalidate(t, newStore) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newStore) })
	t.Run("Scenarios", func(t *testing.T) { testScenarios(t, newStore) })
	t.Run("Concurrency", func(t *testing.T) { testConcurrency(t, newStore) })
}

func testCreate(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("assigns sequential ids and initial state", func(t *testing.T) {
		clock := NewClock(Epoch)
		store := newStore(t, linkstore.WithClock(clock))

		for want := int64(1); want <= 3; want++ {
			createdAt := clock.Now()
			link, err := store.Create(ctx, linkstore.CreateParams{TargetURL: fmt.Sprintf("https://example.com/%d", want)})
			if err != nil {
				t.Fatalf("Create() unexpected error: %v", err)
			}
			if link.ID != want {
				t.Errorf("ID = %d, want %d", link.ID, want)
			}
			if link.Clicks != 0 {
				t.Errorf("Clicks = %d, want 0", link.Clicks)
			}
			if !link.Valid {
				t.Error("Valid = false, want true")
			}
			if !link.CreatedAt.Equal(createdAt) {
				t.Errorf("CreatedAt = %v, want %v", link.CreatedAt, createdAt)
			}
			if link.ExpiresAt != nil {
				t.Errorf("ExpiresAt = %v, want nil", link.ExpiresAt)
			}
			if link.HasSecret() {
				t.Error("HasSecret() = true, want false")
			}
			assertCode(t, link.ShortCode, linkstore.DefaultCodeLength)
			clock.Advance(time.Second)
		}
	})

	t.Run("keeps secret and expiration", func(t *testing.T) {
		store := newStore(t, linkstore.WithClock(NewClock(Epoch)))
		expiresAt := Epoch.Add(24 * time.Hour)

		link, err := store.Create(ctx, linkstore.CreateParams{
			TargetURL: "https://example.com/all-features",
			Secret:    "superSecure",
			ExpiresAt: &expiresAt,
		})
		if err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}
		if link.Secret != "superSecure" {
			t.Errorf("Secret = %q, want %q", link.Secret, "superSecure")
		}
		if link.ExpiresAt == nil || !link.ExpiresAt.Equal(expiresAt) {
			t.Errorf("ExpiresAt = %v, want %v", link.ExpiresAt, expiresAt)
		}
		if link.TargetURL != "https://example.com/all-features" {
			t.Errorf("TargetURL = %q", link.TargetURL)
		}
	})

	t.Run("honors code length", func(t *testing.T) {
		store := newStore(t, linkstore.WithCodeLength(10))

		link, err := store.Create(ctx, linkstore.CreateParams{TargetURL: "https://example.com"})
		if err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}
		assertCode(t, link.ShortCode, 10)
	})

	t.Run("regenerates on code collision", func(t *testing.T) {
		gen := NewScriptedGenerator("AAAAAA", "AAAAAA", "AAAAAA", "BBBBBB")
		store := newStore(t, linkstore.WithGenerator(gen))

		first, err := store.Create(ctx, linkstore.CreateParams{TargetURL: "https://example.com/1"})
		if err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}
		second, err := store.Create(ctx, linkstore.CreateParams{TargetURL: "https://example.com/2"})
		if err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}

		if first.ShortCode != "AAAAAA" {
			t.Errorf("first ShortCode = %q, want %q", first.ShortCode, "AAAAAA")
		}
		if second.ShortCode != "BBBBBB" {
			t.Errorf("second ShortCode = %q, want %q", second.ShortCode, "BBBBBB")
		}
		if gen.Calls() != 4 {
			t.Errorf("generator called %d times, want 4", gen.Calls())
		}
		if second.ID <= first.ID {
			t.Errorf("second ID %d not greater than first ID %d", second.ID, first.ID)
		}

		target, err := store.ResolveAndTrack(ctx, "BBBBBB", "")
		if err != nil {
			t.Fatalf("ResolveAndTrack() unexpected error: %v", err)
		}
		if target != "https://example.com/2" {
			t.Errorf("target = %q, want %q", target, "https://example.com/2")
		}
	})

	t.Run("rejects empty target", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Create(ctx, linkstore.CreateParams{})
		assertFailure(t, err, errx.Invalid, linkstore.ErrEmptyTarget)
	})
}

func testResolve(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("returns target and counts the click", func(t *testing.T) {
		store := newStore(t)
		link := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com"})

		for i := 1; i <= 3; i++ {
			target, err := store.ResolveAndTrack(ctx, link.ShortCode, "")
			if err != nil {
				t.Fatalf("ResolveAndTrack() unexpected error: %v", err)
			}
			if target != "https://example.com" {
				t.Errorf("target = %q, want %q", target, "https://example.com")
			}
		}
		assertClicks(t, store, link.ID, 3)
	})

	t.Run("unknown code is NotFound", func(t *testing.T) {
		store := newStore(t)

		_, err := store.ResolveAndTrack(ctx, "nope42", "")
		assertFailure(t, err, errx.NotFound, linkstore.ErrNotFound)
		if !strings.Contains(err.Error(), `"nope42"`) {
			t.Errorf("error %q does not name the short code", err)
		}
	})

	t.Run("secret gates access", func(t *testing.T) {
		store := newStore(t)
		link := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com/private", Secret: "1234"})

		_, err := store.ResolveAndTrack(ctx, link.ShortCode, "")
		assertFailure(t, err, errx.Unauthorized, linkstore.ErrSecretMismatch)

		_, err = store.ResolveAndTrack(ctx, link.ShortCode, "12345")
		assertFailure(t, err, errx.Unauthorized, linkstore.ErrSecretMismatch)

		assertClicks(t, store, link.ID, 0)

		target, err := store.ResolveAndTrack(ctx, link.ShortCode, "1234")
		if err != nil {
			t.Fatalf("ResolveAndTrack() with correct secret unexpected error: %v", err)
		}
		if target != "https://example.com/private" {
			t.Errorf("target = %q", target)
		}
		assertClicks(t, store, link.ID, 1)
	})

	t.Run("expiration boundary is strict", func(t *testing.T) {
		clock := NewClock(Epoch)
		store := newStore(t, linkstore.WithClock(clock))
		expiresAt := Epoch.Add(time.Hour)
		link := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com/soon", ExpiresAt: &expiresAt})

		clock.Set(expiresAt.Add(-time.Second))
		if _, err := store.ResolveAndTrack(ctx, link.ShortCode, ""); err != nil {
			t.Fatalf("ResolveAndTrack() before expiration unexpected error: %v", err)
		}

		clock.Set(expiresAt)
		if _, err := store.ResolveAndTrack(ctx, link.ShortCode, ""); err != nil {
			t.Fatalf("ResolveAndTrack() at expiration unexpected error: %v", err)
		}

		clock.Set(expiresAt.Add(time.Second))
		_, err := store.ResolveAndTrack(ctx, link.ShortCode, "")
		assertFailure(t, err, errx.Gone, linkstore.ErrExpired)

		assertClicks(t, store, link.ID, 2)
	})

	t.Run("availability is reported before the secret", func(t *testing.T) {
		clock := NewClock(Epoch)
		store := newStore(t, linkstore.WithClock(clock))
		past := Epoch.Add(-time.Second)

		expired := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com/a", Secret: "s", ExpiresAt: &past})
		_, err := store.ResolveAndTrack(ctx, expired.ShortCode, "")
		assertFailure(t, err, errx.Gone, linkstore.ErrExpired)

		both := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com/b", Secret: "s", ExpiresAt: &past})
		if _, err := store.Invalidate(ctx, both.ShortCode); err != nil {
			t.Fatalf("Invalidate() unexpected error: %v", err)
		}
		_, err = store.ResolveAndTrack(ctx, both.ShortCode, "wrong")
		assertFailure(t, err, errx.Gone, linkstore.ErrInvalidated)
	})
}

func testInvalidate(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("is exactly once", func(t *testing.T) {
		store := newStore(t)
		link := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com"})

		got, err := store.Invalidate(ctx, link.ShortCode)
		if err != nil {
			t.Fatalf("Invalidate() unexpected error: %v", err)
		}
		if got.Valid {
			t.Error("Valid = true after Invalidate, want false")
		}
		if got.ID != link.ID || got.ShortCode != link.ShortCode {
			t.Errorf("Invalidate() returned link %d/%q, want %d/%q", got.ID, got.ShortCode, link.ID, link.ShortCode)
		}

		for range 2 {
			_, err = store.Invalidate(ctx, link.ShortCode)
			assertFailure(t, err, errx.AlreadyInvalid, linkstore.ErrAlreadyInvalid)
		}
	})

	t.Run("unknown code is NotFound", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Invalidate(ctx, "ghost1")
		assertFailure(t, err, errx.NotFound, linkstore.ErrNotFound)
	})

	t.Run("keeps clicks and record", func(t *testing.T) {
		store := newStore(t)
		link := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com"})
		if _, err := store.ResolveAndTrack(ctx, link.ShortCode, ""); err != nil {
			t.Fatalf("ResolveAndTrack() unexpected error: %v", err)
		}
		if _, err := store.Invalidate(ctx, link.ShortCode); err != nil {
			t.Fatalf("Invalidate() unexpected error: %v", err)
		}

		stats, err := store.Stats(ctx, link.ID)
		if err != nil {
			t.Fatalf("Stats() unexpected error: %v", err)
		}
		if stats.Valid || stats.Clicks != 1 {
			t.Errorf("Stats() = valid %v clicks %d, want false/1", stats.Valid, stats.Clicks)
		}
	})
}

func testStats(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("unknown id is NotFound", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Stats(ctx, 999)
		assertFailure(t, err, errx.NotFound, linkstore.ErrNotFound)
		if !strings.Contains(err.Error(), "999") {
			t.Errorf("error %q does not name the id", err)
		}
	})

	t.Run("projects the link without its secret", func(t *testing.T) {
		clock := NewClock(Epoch)
		store := newStore(t, linkstore.WithClock(clock))
		expiresAt := Epoch.Add(time.Minute)
		link := mustCreate(t, store, linkstore.CreateParams{
			TargetURL: "https://example.com/stats",
			Secret:    "hunter2",
			ExpiresAt: &expiresAt,
		})

		stats, err := store.Stats(ctx, link.ID)
		if err != nil {
			t.Fatalf("Stats() unexpected error: %v", err)
		}
		if stats.ID != link.ID || stats.ShortCode != link.ShortCode || stats.TargetURL != link.TargetURL {
			t.Errorf("Stats() identity = %d/%q/%q, want %d/%q/%q",
				stats.ID, stats.ShortCode, stats.TargetURL, link.ID, link.ShortCode, link.TargetURL)
		}
		if !stats.HasSecret {
			t.Error("HasSecret = false, want true")
		}
		if !stats.CreatedAt.Equal(Epoch) {
			t.Errorf("CreatedAt = %v, want %v", stats.CreatedAt, Epoch)
		}
		if stats.ExpiresAt == nil || !stats.ExpiresAt.Equal(expiresAt) {
			t.Errorf("ExpiresAt = %v, want %v", stats.ExpiresAt, expiresAt)
		}
		if stats.Expired {
			t.Error("Expired = true before expiration")
		}
		if strings.Contains(fmt.Sprintf("%+v", stats), "hunter2") {
			t.Error("Stats() leaks the secret value")
		}

		clock.Advance(2 * time.Minute)
		stats, err = store.Stats(ctx, link.ID)
		if err != nil {
			t.Fatalf("Stats() unexpected error: %v", err)
		}
		if !stats.Expired {
			t.Error("Expired = false after expiration")
		}
	})

	t.Run("unprotected link without expiration", func(t *testing.T) {
		store := newStore(t)
		link := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com/open"})

		stats, err := store.Stats(ctx, link.ID)
		if err != nil {
			t.Fatalf("Stats() unexpected error: %v", err)
		}
		if stats.HasSecret || stats.ExpiresAt != nil || stats.Expired || !stats.Valid {
			t.Errorf("Stats() = %+v, want unprotected, non-expiring, valid", stats)
		}
	})
}

func testScenarios(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create, resolve, stats", func(t *testing.T) {
		store := newStore(t)

		link := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com"})
		if link.ID != 1 || link.Clicks != 0 || !link.Valid {
			t.Fatalf("Create() = %+v, want id 1, clicks 0, valid", link)
		}

		target, err := store.ResolveAndTrack(ctx, link.ShortCode, "")
		if err != nil {
			t.Fatalf("ResolveAndTrack() unexpected error: %v", err)
		}
		if target != "https://example.com" {
			t.Errorf("target = %q, want %q", target, "https://example.com")
		}
		assertClicks(t, store, 1, 1)
	})

	t.Run("secret protected", func(t *testing.T) {
		store := newStore(t)
		link := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com", Secret: "1234"})

		_, err := store.ResolveAndTrack(ctx, link.ShortCode, "")
		assertFailure(t, err, errx.Unauthorized, linkstore.ErrSecretMismatch)

		if _, err := store.ResolveAndTrack(ctx, link.ShortCode, "1234"); err != nil {
			t.Fatalf("ResolveAndTrack() unexpected error: %v", err)
		}
	})

	t.Run("already expired", func(t *testing.T) {
		clock := NewClock(Epoch)
		store := newStore(t, linkstore.WithClock(clock))
		past := Epoch.Add(-time.Second)
		link := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com", ExpiresAt: &past})

		_, err := store.ResolveAndTrack(ctx, link.ShortCode, "")
		assertFailure(t, err, errx.Gone, linkstore.ErrExpired)
	})

	t.Run("invalidate twice then resolve", func(t *testing.T) {
		store := newStore(t)
		link := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com"})

		if _, err := store.Invalidate(ctx, link.ShortCode); err != nil {
			t.Fatalf("Invalidate() unexpected error: %v", err)
		}
		_, err := store.Invalidate(ctx, link.ShortCode)
		assertFailure(t, err, errx.AlreadyInvalid, linkstore.ErrAlreadyInvalid)

		_, err = store.ResolveAndTrack(ctx, link.ShortCode, "")
		assertFailure(t, err, errx.Gone, linkstore.ErrInvalidated)
	})

	t.Run("stats of unknown id", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Stats(ctx, 42)
		assertFailure(t, err, errx.NotFound, linkstore.ErrNotFound)
	})
}

func testConcurrency(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("concurrent creates get unique codes and ids", func(t *testing.T) {
		store := newStore(t)

		links := make([]linkstore.Link, Workers)
		var g errgroup.Group
		for i := range Workers {
			g.Go(func() error {
				link, err := store.Create(ctx, linkstore.CreateParams{TargetURL: fmt.Sprintf("https://example.com/%d", i)})
				links[i] = link
				return err
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}

		codes := make(map[string]bool, Workers)
		ids := make(map[int64]bool, Workers)
		for _, link := range links {
			if codes[link.ShortCode] {
				t.Errorf("duplicate short code %q", link.ShortCode)
			}
			if ids[link.ID] {
				t.Errorf("duplicate id %d", link.ID)
			}
			codes[link.ShortCode] = true
			ids[link.ID] = true
		}
	})

	t.Run("concurrent creates never share a colliding code", func(t *testing.T) {
		scripted := make([]string, 0, Workers*2)
		for range Workers * 2 {
			scripted = append(scripted, "SAME01")
		}
		store := newStore(t, linkstore.WithGenerator(NewScriptedGenerator(scripted...)))

		links := make([]linkstore.Link, Workers)
		var g errgroup.Group
		for i := range Workers {
			g.Go(func() error {
				link, err := store.Create(ctx, linkstore.CreateParams{TargetURL: "https://example.com"})
				links[i] = link
				return err
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}

		seen := make(map[string]bool, Workers)
		same := 0
		for _, link := range links {
			if seen[link.ShortCode] {
				t.Errorf("duplicate short code %q", link.ShortCode)
			}
			seen[link.ShortCode] = true
			if link.ShortCode == "SAME01" {
				same++
			}
		}
		if same != 1 {
			t.Errorf("%d links got the contended code, want exactly 1", same)
		}
	})

	t.Run("concurrent resolves are all counted", func(t *testing.T) {
		store := newStore(t)
		link := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com/hot"})

		var g errgroup.Group
		for range Workers {
			g.Go(func() error {
				_, err := store.ResolveAndTrack(ctx, link.ShortCode, "")
				return err
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("ResolveAndTrack() unexpected error: %v", err)
		}
		assertClicks(t, store, link.ID, Workers)
	})

	t.Run("concurrent invalidations succeed once", func(t *testing.T) {
		store := newStore(t)
		link := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com"})

		var successes, already atomic.Int64
		var g errgroup.Group
		for range Workers {
			g.Go(func() error {
				_, err := store.Invalidate(ctx, link.ShortCode)
				switch {
				case err == nil:
					successes.Add(1)
				case errx.Is(err, errx.AlreadyInvalid):
					already.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("Invalidate() unexpected error: %v", err)
		}
		if successes.Load() != 1 {
			t.Errorf("%d invalidations succeeded, want 1", successes.Load())
		}
		if already.Load() != Workers-1 {
			t.Errorf("%d invalidations failed AlreadyInvalid, want %d", already.Load(), Workers-1)
		}
	})

	t.Run("resolves racing an invalidation count only successes", func(t *testing.T) {
		store := newStore(t)
		link := mustCreate(t, store, linkstore.CreateParams{TargetURL: "https://example.com"})

		var resolved atomic.Int64
		var g errgroup.Group
		for i := range Workers {
			if i == Workers/2 {
				g.Go(func() error {
					_, err := store.Invalidate(ctx, link.ShortCode)
					return err
				})
			}
			g.Go(func() error {
				_, err := store.ResolveAndTrack(ctx, link.ShortCode, "")
				switch {
				case err == nil:
					resolved.Add(1)
				case errors.Is(err, linkstore.ErrInvalidated):
				default:
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertClicks(t, store, link.ID, resolved.Load())
	})
}

/***************
 * Helpers
 ***************/

func mustCreate(t *testing.T, store linkstore.Store, p linkstore.CreateParams) linkstore.Link {
	t.Helper()
	link, err := store.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	return link
}

func assertClicks(t *testing.T, store linkstore.Store, id, want int64) {
	t.Helper()
	stats, err := store.Stats(context.Background(), id)
	if err != nil {
		t.Fatalf("Stats(%d) unexpected error: %v", id, err)
	}
	if stats.Clicks != want {
		t.Errorf("Clicks = %d, want %d", stats.Clicks, want)
	}
}

func assertFailure(t *testing.T, err error, kind errx.Kind, sentinel error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if got := errx.KindOf(err); got != kind {
		t.Errorf("error kind = %v, want %v (%v)", got, kind, err)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("error %q does not wrap %q", err, sentinel)
	}
}

func assertCode(t *testing.T, code string, length int) {
	t.Helper()
	if len(code) != length {
		t.Errorf("short code %q has length %d, want %d", code, len(code), length)
	}
	for _, c := range code {
		if !strings.ContainsRune(sluggen.Alphabet, c) {
			t.Errorf("short code %q contains %q outside the alphabet", code, c)
		}
	}
}
