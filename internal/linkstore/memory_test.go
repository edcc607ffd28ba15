package linkstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/linkstore"
	"github.com/sundayezeilo/shortlink/internal/linkstore/storetest"
	"github.com/sundayezeilo/shortlink/sluggen"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T, opts ...linkstore.Option) linkstore.Store {
		return linkstore.NewMemory(opts...)
	})
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := linkstore.NewMemory(linkstore.WithClock(storetest.NewClock(storetest.Epoch)))
	expiresAt := storetest.Epoch.Add(time.Hour)

	link, err := store.Create(ctx, linkstore.CreateParams{TargetURL: "https://example.com", ExpiresAt: &expiresAt})
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	// Mutating the caller's input and the returned record must not reach the store.
	expiresAt = expiresAt.Add(-2 * time.Hour)
	*link.ExpiresAt = link.ExpiresAt.Add(-2 * time.Hour)
	link.Clicks = 100
	link.Valid = false

	stats, err := store.Stats(ctx, link.ID)
	if err != nil {
		t.Fatalf("Stats() unexpected error: %v", err)
	}
	if want := storetest.Epoch.Add(time.Hour); !stats.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", stats.ExpiresAt, want)
	}
	if stats.Clicks != 0 || !stats.Valid {
		t.Errorf("Stats() = clicks %d valid %v, want 0/true", stats.Clicks, stats.Valid)
	}

	if _, err := store.ResolveAndTrack(ctx, link.ShortCode, ""); err != nil {
		t.Errorf("ResolveAndTrack() unexpected error: %v", err)
	}
}

func TestMemory_Len(t *testing.T) {
	ctx := context.Background()
	store := linkstore.NewMemory()

	if store.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", store.Len())
	}
	link, err := store.Create(ctx, linkstore.CreateParams{TargetURL: "https://example.com"})
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	if _, err := store.Invalidate(ctx, link.ShortCode); err != nil {
		t.Fatalf("Invalidate() unexpected error: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d after invalidation, want 1", store.Len())
	}
}

func TestMemory_GeneratorFailure(t *testing.T) {
	boom := errors.New("entropy exhausted")
	store := linkstore.NewMemory(linkstore.WithGenerator(sluggen.GeneratorFunc(func(int) (string, error) {
		return "", boom
	})))

	_, err := store.Create(context.Background(), linkstore.CreateParams{TargetURL: "https://example.com"})
	if !errors.Is(err, boom) {
		t.Fatalf("Create() error = %v, want %v", err, boom)
	}
	if errx.KindOf(err) != errx.Internal {
		t.Errorf("error kind = %v, want %v", errx.KindOf(err), errx.Internal)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after failed create, want 0", store.Len())
	}
}

func TestNewOptions(t *testing.T) {
	tests := []struct {
		name       string
		opts       []linkstore.Option
		wantLength int
	}{
		{"defaults", nil, linkstore.DefaultCodeLength},
		{"custom length", []linkstore.Option{linkstore.WithCodeLength(8)}, 8},
		{"minimum length", []linkstore.Option{linkstore.WithCodeLength(linkstore.MinCodeLength)}, linkstore.MinCodeLength},
		{"below minimum falls back", []linkstore.Option{linkstore.WithCodeLength(2)}, linkstore.DefaultCodeLength},
		{"above maximum falls back", []linkstore.Option{linkstore.WithCodeLength(100)}, linkstore.DefaultCodeLength},
		{"nil clock and generator are ignored", []linkstore.Option{linkstore.WithClock(nil), linkstore.WithGenerator(nil)}, linkstore.DefaultCodeLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := linkstore.NewOptions(tt.opts...)
			if o.CodeLength != tt.wantLength {
				t.Errorf("CodeLength = %d, want %d", o.CodeLength, tt.wantLength)
			}
			if o.Clock == nil || o.Generator == nil {
				t.Fatal("NewOptions() left Clock or Generator nil")
			}
			code, err := o.NewCode()
			if err != nil {
				t.Fatalf("NewCode() unexpected error: %v", err)
			}
			if len(code) != tt.wantLength {
				t.Errorf("NewCode() length = %d, want %d", len(code), tt.wantLength)
			}
		})
	}
}
