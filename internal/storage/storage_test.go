package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/platereader/internal/models"
)

func TestSessionStore(t *testing.T) {
	store := New(10)
	now := time.Now()

	store.Set("old", &models.PlateSession{ID: "old", CreatedAt: now.Add(-time.Minute)})
	store.Set("new", &models.PlateSession{ID: "new", CreatedAt: now})

	if _, ok := store.Get("missing"); ok {
		t.Error("Expected missing session to be absent")
	}
	session, ok := store.Get("old")
	if !ok || session.ID != "old" {
		t.Fatalf("Expected to find session old, got %+v", session)
	}

	list := store.List()
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
		t.Errorf("Expected newest first, got %v", ids(list))
	}

	store.Delete("new")
	if len(store.List()) != 1 {
		t.Error("Expected one session after delete")
	}
}

func TestSessionStoreEvictsOldest(t *testing.T) {
	const limit = 3
	store := New(limit)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// inserted out of order so eviction has to use CreatedAt, not insertion order
	offsets := []int{2, 0, 1, 4, 3}
	for _, off := range offsets {
		id := fmt.Sprintf("s%d", off)
		store.Set(id, &models.PlateSession{ID: id, CreatedAt: base.Add(time.Duration(off) * time.Minute)})
		if store.Len() > limit {
			t.Fatalf("Store grew to %d after setting %s, limit %d", store.Len(), id, limit)
		}
	}

	if store.Len() != limit {
		t.Fatalf("Expected %d sessions, got %d", limit, store.Len())
	}
	got := ids(store.List())
	want := []string{"s4", "s3", "s2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v to remain, got %v", want, got)
		}
	}

	// the session just stored survives even when it is the oldest
	store.Set("stale", &models.PlateSession{ID: "stale", CreatedAt: base.Add(-time.Hour)})
	if _, ok := store.Get("stale"); !ok {
		t.Error("Expected the newly stored session to be kept")
	}
	if store.Len() != limit {
		t.Errorf("Expected %d sessions, got %d", limit, store.Len())
	}
}

func TestSessionStoreDefaultLimit(t *testing.T) {
	store := New(0)
	for i := 0; i < DefaultMaxSessions+5; i++ {
		id := fmt.Sprintf("s%02d", i)
		store.Set(id, &models.PlateSession{ID: id, CreatedAt: time.Unix(int64(i), 0)})
	}
	if store.Len() != DefaultMaxSessions {
		t.Errorf("Expected %d sessions, got %d", DefaultMaxSessions, store.Len())
	}
}

func ids(sessions []*models.PlateSession) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ID)
	}
	return out
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"car.jpg", "car.jpg"},
		{"my car (1).png", "my_car_1_.png"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\plate.jpeg`, "plate.jpeg"},
		{".hidden.png", "hidden.png"},
		{"", "image"},
		{"/", "image"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestUploadsSaveUnique(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	uploads := NewUploads(dir)

	first, err := uploads.Save("car.jpg", []byte("one"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	second, err := uploads.Save("car.jpg", []byte("two"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if first == second {
		t.Fatal("Expected distinct stored names for identical uploads")
	}
	if !strings.HasSuffix(first, "_car.jpg") {
		t.Errorf("Expected original name suffix, got %s", first)
	}

	data, err := os.ReadFile(uploads.Path(first))
	if err != nil || string(data) != "one" {
		t.Errorf("Unexpected stored contents %q (err %v)", data, err)
	}
	if uploads.Path("../../"+second) != filepath.Join(dir, second) {
		t.Errorf("Path did not strip directories: %s", uploads.Path("../../"+second))
	}
}
