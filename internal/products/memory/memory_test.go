package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"profitdash/internal/core"
	"profitdash/internal/products"
)

func snapshot(user, upload string, n int) core.Snapshot {
	s := core.Snapshot{UserID: user, UploadID: upload, FileName: upload + ".csv", UploadedAt: time.Now()}
	for i := 0; i < n; i++ {
		s.Products = append(s.Products, core.Product{ID: fmt.Sprintf("%s-%d", upload, i), Name: upload})
	}
	return s
}

func TestStore_ReplaceAndSnapshot(t *testing.T) {
	ctx := context.Background()
	st := New()

	if err := st.Replace(ctx, snapshot("u1", "first", 3)); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := st.Replace(ctx, snapshot("u1", "second", 1)); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	got, err := st.Snapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got.UploadID != "second" || len(got.Products) != 1 {
		t.Errorf("Snapshot() = %s with %d products, want second with 1", got.UploadID, len(got.Products))
	}
}

func TestStore_SnapshotUnknownUser(t *testing.T) {
	got, err := New().Snapshot(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if !got.Empty() || got.UserID != "nobody" {
		t.Errorf("Snapshot() = %+v, want empty", got)
	}
}

func TestStore_UsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	st := New()
	_ = st.Replace(ctx, snapshot("u1", "a", 2))
	_ = st.Replace(ctx, snapshot("u2", "b", 5))

	got, _ := st.Snapshot(ctx, "u1")
	if len(got.Products) != 2 {
		t.Errorf("u1 has %d products, want 2", len(got.Products))
	}
	if st.Users() != 2 {
		t.Errorf("Users() = %d, want 2", st.Users())
	}
}

func TestStore_ReturnedSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	st := New()
	in := snapshot("u1", "a", 1)
	_ = st.Replace(ctx, in)

	in.Products[0].Name = "mutated by caller"
	got, _ := st.Snapshot(ctx, "u1")
	got.Products[0].Name = "mutated by reader"

	again, _ := st.Snapshot(ctx, "u1")
	if again.Products[0].Name != "a" {
		t.Errorf("stored product changed to %q", again.Products[0].Name)
	}
}

func TestStore_Get(t *testing.T) {
	ctx := context.Background()
	st := New()
	_ = st.Replace(ctx, snapshot("u1", "a", 2))

	p, err := st.Get(ctx, "u1", "a-1")
	if err != nil || p.ID != "a-1" {
		t.Errorf("Get() = %+v, %v", p, err)
	}
	if _, err := st.Get(ctx, "u1", "missing"); !errors.Is(err, products.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := st.Get(ctx, "u2", "a-1"); !errors.Is(err, products.ErrNotFound) {
		t.Errorf("Get(other user) error = %v, want ErrNotFound", err)
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	st := New()
	_ = st.Replace(ctx, snapshot("u1", "a", 2))

	if err := st.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	got, _ := st.Snapshot(ctx, "u1")
	if !got.Empty() {
		t.Errorf("Snapshot() after Clear has %d products", len(got.Products))
	}
}

func TestStore_ReplaceRejectsInvalid(t *testing.T) {
	if err := New().Replace(context.Background(), core.Snapshot{UploadID: "x"}); !errors.Is(err, core.ErrEmptyUserID) {
		t.Errorf("Replace() error = %v, want ErrEmptyUserID", err)
	}
}

func TestStore_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	ctx := context.Background()
	st := New()
	_ = st.Replace(ctx, snapshot("u1", "a", 10))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, _ := st.Snapshot(ctx, "u1")
				for _, p := range snap.Products {
					if p.Name != snap.UploadID {
						t.Errorf("mixed snapshot: product %s in upload %s", p.Name, snap.UploadID)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		upload := "a"
		if i%2 == 0 {
			upload = "b"
		}
		_ = st.Replace(ctx, snapshot("u1", upload, 10))
	}
	close(stop)
	wg.Wait()
}
