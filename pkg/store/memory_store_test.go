package store_test

import (
	"testing"
	"time"

	"github.com/NicolasHaas/soundboard/pkg/model"
	"github.com/NicolasHaas/soundboard/pkg/store"
)

func TestStoreBasicFlow(t *testing.T) {
	withStores(t, func(t *testing.T, st store.DataStore) {
		snd := model.Sound{Name: "air horn", FilePath: "clips/air horn.mp3", Volume: 0.8}
		if err := st.CreateSound(&snd); err != nil {
			t.Fatalf("CreateSound: unexpected error: %v", err)
		}
		if snd.ID == "" {
			t.Fatalf("CreateSound: expected non-empty ID")
		}

		fetched, err := st.GetSound(snd.ID)
		if err != nil {
			t.Fatalf("GetSound: unexpected error: %v", err)
		}
		if fetched == nil || fetched.ID != snd.ID {
			t.Fatalf("GetSound: expected sound with ID %s", snd.ID)
		}

		if err := st.UpdateSoundHotkey(snd.ID, "CTRL+F1"); err != nil {
			t.Fatalf("UpdateSoundHotkey: unexpected error: %v", err)
		}
		bound, err := st.GetSoundByHotkey("CTRL+F1")
		if err != nil {
			t.Fatalf("GetSoundByHotkey: unexpected error: %v", err)
		}
		if bound == nil || bound.ID != snd.ID {
			t.Fatalf("GetSoundByHotkey: expected sound with ID %s", snd.ID)
		}

		if err := st.SetSetting("device.virtual", "CABLE Input"); err != nil {
			t.Fatalf("SetSetting: unexpected error: %v", err)
		}
		value, err := st.GetSetting("device.virtual")
		if err != nil {
			t.Fatalf("GetSetting: unexpected error: %v", err)
		}
		if value != "CABLE Input" {
			t.Fatalf("GetSetting: value mismatch want=%q got=%q", "CABLE Input", value)
		}
	})
}

func TestMemoryStoreClock(t *testing.T) {
	t.Parallel()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryWithClock(func() time.Time { return current })

	snd := model.Sound{Name: "air horn", FilePath: "clips/air horn.mp3", Volume: 1}
	if err := st.CreateSound(&snd); err != nil {
		t.Fatalf("CreateSound: unexpected error: %v", err)
	}
	if !snd.CreatedAt.Equal(current) || !snd.UpdatedAt.Equal(current) {
		t.Fatalf("timestamps = %v / %v, want %v", snd.CreatedAt, snd.UpdatedAt, current)
	}

	// Mutations pick up the advanced clock, creation time stays put.
	current = current.Add(time.Minute)
	if err := st.UpdateSoundVolume(snd.ID, 0.5); err != nil {
		t.Fatalf("UpdateSoundVolume: unexpected error: %v", err)
	}
	got, err := st.GetSound(snd.ID)
	if err != nil {
		t.Fatalf("GetSound: unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("GetSound: sound disappeared")
	}
	if !got.UpdatedAt.Equal(current) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, current)
	}
	if got.CreatedAt.Equal(current) {
		t.Errorf("CreatedAt advanced with the clock")
	}
}
