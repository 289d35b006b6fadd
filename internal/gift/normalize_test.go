// internal/gift/normalize_test.go
package gift

import (
	"testing"
	"time"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
)

func TestDeriveAssetID(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		wantID string
		wantOK bool
	}{
		{
			name:   "plain id with extension",
			url:    "https://cdn.example.com/image/upload/MemoryHaze/usr-00001/abc/photo_1.jpg",
			wantID: "MemoryHaze/usr-00001/abc/photo_1",
			wantOK: true,
		},
		{
			name:   "version segment stripped",
			url:    "https://cdn.example.com/image/upload/v1712345678/MemoryHaze/usr-00001/abc/photo_2.png",
			wantID: "MemoryHaze/usr-00001/abc/photo_2",
			wantOK: true,
		},
		{
			name:   "query string stripped",
			url:    "https://cdn.example.com/image/upload/MemoryHaze/usr-00001/abc/photo_3.jpg?sig=deadbeef",
			wantID: "MemoryHaze/usr-00001/abc/photo_3",
			wantOK: true,
		},
		{
			name:   "extension only stripped from last segment",
			url:    "https://cdn.example.com/image/upload/folder.v2/photo",
			wantID: "folder.v2/photo",
			wantOK: true,
		},
		{
			name:   "no extension",
			url:    "https://cdn.example.com/image/upload/MemoryHaze/usr-00001/abc/audio",
			wantID: "MemoryHaze/usr-00001/abc/audio",
			wantOK: true,
		},
		{
			name:   "missing marker",
			url:    "https://cdn.example.com/image/MemoryHaze/photo_1.jpg",
			wantOK: false,
		},
		{
			name:   "empty after marker",
			url:    "https://cdn.example.com/image/upload/",
			wantOK: false,
		},
		{
			name:   "empty input",
			url:    "",
			wantOK: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := DeriveAssetID(tc.url)
			if ok != tc.wantOK {
				t.Fatalf("DeriveAssetID(%q) ok = %v, want %v", tc.url, ok, tc.wantOK)
			}
			if ok && id != tc.wantID {
				t.Errorf("DeriveAssetID(%q) = %q, want %q", tc.url, id, tc.wantID)
			}
		})
	}
}

func TestDeriveAssetIDDeterministic(t *testing.T) {
	url := "https://cdn.example.com/image/upload/v123/MemoryHaze/usr-00002/g1/photo_1.jpg"
	first, ok1 := DeriveAssetID(url)
	second, ok2 := DeriveAssetID(url)
	if !ok1 || !ok2 || first != second {
		t.Errorf("derivation not deterministic: %q/%v vs %q/%v", first, ok1, second, ok2)
	}
}

func TestFolderPrefix(t *testing.T) {
	tests := []struct {
		id         string
		wantPrefix string
		wantOK     bool
	}{
		{"MemoryHaze/usr-00001/g1/photo_1", "MemoryHaze/usr-00001/g1", true},
		{"MemoryHaze/usr-00001/photo_1", "MemoryHaze/usr-00001", true},
		{"usr-00001/photo_1", "", false},
		{"photo_1", "", false},
		{"", "", false},
	}

	for _, tc := range tests {
		prefix, ok := FolderPrefix(tc.id)
		if ok != tc.wantOK || prefix != tc.wantPrefix {
			t.Errorf("FolderPrefix(%q) = %q/%v, want %q/%v", tc.id, prefix, ok, tc.wantPrefix, tc.wantOK)
		}
	}
}

func TestNormalizeDerivesTemplateAndAlias(t *testing.T) {
	g := Normalize(model.Gift{Occasion: model.OccasionBirthday})
	if g.TemplateID != model.TemplateBirthday {
		t.Errorf("templateId = %q, want %q", g.TemplateID, model.TemplateBirthday)
	}
	if g.Memory != model.OccasionBirthday {
		t.Errorf("memory alias = %q, want %q", g.Memory, model.OccasionBirthday)
	}

	// An already-set template is never overwritten.
	g2 := Normalize(model.Gift{Occasion: model.OccasionBirthday, TemplateID: model.TemplateMinimalist})
	if g2.TemplateID != model.TemplateMinimalist {
		t.Errorf("templateId overwritten: got %q", g2.TemplateID)
	}
}

func TestNormalizeUnsetsInvalidEnums(t *testing.T) {
	g := Normalize(model.Gift{Occasion: "christmas", Plan: "forever"})
	if g.Occasion != "" {
		t.Errorf("invalid occasion not unset: %q", g.Occasion)
	}
	if g.Plan != "" {
		t.Errorf("invalid plan not unset: %q", g.Plan)
	}
}

func TestNormalizeComputesExpiryOnce(t *testing.T) {
	completed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := model.Gift{
		Status:      model.StatusCompleted,
		CompletedAt: &completed,
		Plan:        model.PlanMomentum,
	}

	g = Normalize(g)
	if g.ExpiresAt == nil {
		t.Fatal("expiresAt not computed")
	}
	want := completed.Add(7 * 24 * time.Hour)
	if !g.ExpiresAt.Equal(want) {
		t.Errorf("expiresAt = %v, want %v", g.ExpiresAt, want)
	}
	if g.AssignedAt == nil || !g.AssignedAt.Equal(completed) {
		t.Errorf("assignedAt = %v, want %v", g.AssignedAt, completed)
	}

	// A second pass must not move the window.
	later := g
	later.CompletedAt = func() *time.Time { t := completed.Add(48 * time.Hour); return &t }()
	later = Normalize(later)
	if !later.ExpiresAt.Equal(want) {
		t.Errorf("expiresAt recomputed: %v, want %v", later.ExpiresAt, want)
	}
}

func TestNormalizeDerivesPhotoAssetIDsAndDropsFailures(t *testing.T) {
	g := model.Gift{
		Photos: []string{
			"https://cdn.example.com/image/upload/MemoryHaze/usr-00001/g1/photo_1.jpg",
			"https://cdn.example.com/no-marker/photo_2.jpg",
			"https://cdn.example.com/image/upload/v99/MemoryHaze/usr-00001/g1/photo_3.png",
		},
	}

	g = Normalize(g)
	if len(g.Photos) != 2 || len(g.PhotoAssetIDs) != 2 {
		t.Fatalf("got %d photos / %d ids, want 2/2", len(g.Photos), len(g.PhotoAssetIDs))
	}
	if g.PhotoAssetIDs[0] != "MemoryHaze/usr-00001/g1/photo_1" ||
		g.PhotoAssetIDs[1] != "MemoryHaze/usr-00001/g1/photo_3" {
		t.Errorf("unexpected asset ids: %v", g.PhotoAssetIDs)
	}

	// Idempotent: existing ids are left alone.
	again := Normalize(g)
	if len(again.PhotoAssetIDs) != 2 || again.PhotoAssetIDs[0] != g.PhotoAssetIDs[0] {
		t.Errorf("second pass changed ids: %v", again.PhotoAssetIDs)
	}
}

func TestNormalizeDerivesAudioAssetID(t *testing.T) {
	g := Normalize(model.Gift{
		Audio: "https://cdn.example.com/video/upload/MemoryHaze/usr-00001/g1/song.mp3",
	})
	if g.AudioAssetID != "MemoryHaze/usr-00001/g1/song" {
		t.Errorf("audio asset id = %q", g.AudioAssetID)
	}
}
