package store_test

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/NicolasHaas/soundboard/pkg/model"
	"github.com/NicolasHaas/soundboard/pkg/store"
)

func NewTestSqlConn(t *testing.T) (*store.Store, error) {
	t.Helper()

	// Creates a temporary on-disk database with a unique path per test
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	st, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("store_test: failed to open db: %w", err)
	}

	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			fmt.Printf("Error closing database: %v\n", err)
		}
	})

	return st, nil
}

// withStores runs the same assertions against the SQLite store and the
// in-memory store; both must behave identically.
func withStores(t *testing.T, fn func(t *testing.T, st store.DataStore)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		st, err := NewTestSqlConn(t)
		if err != nil {
			t.Fatalf("failed to open test connection: %v", err)
		}
		fn(t, st)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemory())
	})
}

func ignoreVolatileSoundFields() cmp.Option {
	return cmpopts.IgnoreFields(model.Sound{}, "ID", "CreatedAt", "UpdatedAt")
}

func TestCreateSound(t *testing.T) {
	t.Parallel()

	type tcase struct {
		sound     model.Sound
		want      model.Sound
		expectErr bool
	}

	tcases := map[string]tcase{
		"minimum_required_fields": {
			sound: model.Sound{Name: "air horn", FilePath: "clips/air horn.mp3", Volume: 0.8},
			want:  model.Sound{Name: "air horn", FilePath: "clips/air horn.mp3", Volume: 0.8},
		},
		"volume_above_range": { // Volume clamps instead of failing
			sound: model.Sound{Name: "bruh", FilePath: "clips/bruh.wav", Volume: 1.7},
			want:  model.Sound{Name: "bruh", FilePath: "clips/bruh.wav", Volume: 1},
		},
		"negative_start_position": { // Start position clamps to the file start
			sound: model.Sound{Name: "drop", FilePath: "clips/drop.ogg", Volume: 1, StartPosition: -3},
			want:  model.Sound{Name: "drop", FilePath: "clips/drop.ogg", Volume: 1},
		},
		"empty_name": {
			sound:     model.Sound{FilePath: "clips/x.mp3", Volume: 1},
			expectErr: true,
		},
		"name_too_long": { // 65 character name is too long
			sound:     model.Sound{Name: strings.Repeat("a", 65), FilePath: "clips/x.mp3", Volume: 1},
			expectErr: true,
		},
		"empty_path": {
			sound:     model.Sound{Name: "ok", Volume: 1},
			expectErr: true,
		},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			withStores(t, func(t *testing.T, st store.DataStore) {
				snd := tc.sound
				err := st.CreateSound(&snd)
				if tc.expectErr {
					if err == nil {
						t.Fatalf("expected error, got nil")
					}
					return
				}
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if _, err := uuid.Parse(snd.ID); err != nil {
					t.Errorf("assigned ID %q is not a UUID", snd.ID)
				}

				got, err := st.GetSound(snd.ID)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got == nil {
					t.Fatal("created sound not found")
				}
				if diff := cmp.Diff(&tc.want, got, ignoreVolatileSoundFields()); diff != "" {
					t.Errorf("GetSound mismatch (-want +got):\n%s", diff)
				}
			})
		})
	}
}

func TestGetSoundMissing(t *testing.T) {
	t.Parallel()

	withStores(t, func(t *testing.T, st store.DataStore) {
		got, err := st.GetSound("no-such-id")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %+v", got)
		}
	})
}

func TestGetSoundByHotkey(t *testing.T) {
	t.Parallel()

	withStores(t, func(t *testing.T, st store.DataStore) {
		bound := model.Sound{Name: "air horn", FilePath: "clips/air horn.mp3", Volume: 1, Hotkey: "CTRL+F1"}
		if err := st.CreateSound(&bound); err != nil {
			t.Fatalf("failed to seed sound: %v", err)
		}
		unbound := model.Sound{Name: "bruh", FilePath: "clips/bruh.wav", Volume: 1}
		if err := st.CreateSound(&unbound); err != nil {
			t.Fatalf("failed to seed sound: %v", err)
		}

		got, err := st.GetSoundByHotkey("CTRL+F1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil || got.ID != bound.ID {
			t.Fatalf("GetSoundByHotkey = %+v, want sound %s", got, bound.ID)
		}

		// The empty hotkey never matches, even though unbound sounds carry it.
		got, err = st.GetSoundByHotkey("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Fatalf("empty hotkey matched sound %s", got.ID)
		}

		got, err = st.GetSoundByHotkey("CTRL+F9")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Fatalf("unknown hotkey matched sound %s", got.ID)
		}
	})
}

func TestListSoundsOrdersByName(t *testing.T) {
	t.Parallel()

	withStores(t, func(t *testing.T, st store.DataStore) {
		for _, name := range []string{"charlie", "alpha", "bravo"} {
			snd := model.Sound{Name: name, FilePath: "clips/" + name + ".mp3", Volume: 1}
			if err := st.CreateSound(&snd); err != nil {
				t.Fatalf("failed to seed sound: %v", err)
			}
		}

		sounds, err := st.ListSounds()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"alpha", "bravo", "charlie"}
		var got []string
		for _, snd := range sounds {
			got = append(got, snd.Name)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("ListSounds order mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestListSoundsByCategory(t *testing.T) {
	t.Parallel()

	withStores(t, func(t *testing.T, st store.DataStore) {
		cat := model.Category{Name: "memes"}
		if err := st.CreateCategory(&cat); err != nil {
			t.Fatalf("failed to seed category: %v", err)
		}

		in1 := model.Sound{Name: "bruh", FilePath: "clips/bruh.wav", Volume: 1, CategoryID: cat.ID}
		in2 := model.Sound{Name: "air horn", FilePath: "clips/air horn.mp3", Volume: 1, CategoryID: cat.ID}
		out := model.Sound{Name: "outro", FilePath: "clips/outro.mp3", Volume: 1}
		for _, snd := range []*model.Sound{&in1, &in2, &out} {
			if err := st.CreateSound(snd); err != nil {
				t.Fatalf("failed to seed sound: %v", err)
			}
		}

		sounds, err := st.ListSoundsByCategory(cat.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []model.Sound{in2, in1}
		if diff := cmp.Diff(want, sounds, cmpopts.IgnoreFields(model.Sound{}, "CreatedAt", "UpdatedAt")); diff != "" {
			t.Errorf("ListSoundsByCategory mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestUpdateSoundFields(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T, st store.DataStore) *model.Sound {
		snd := model.Sound{Name: "air horn", FilePath: "clips/air horn.mp3", Volume: 0.5}
		if err := st.CreateSound(&snd); err != nil {
			t.Fatalf("failed to seed sound: %v", err)
		}
		return &snd
	}

	fetch := func(t *testing.T, st store.DataStore, id string) *model.Sound {
		got, err := st.GetSound(id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil {
			t.Fatalf("sound %s disappeared", id)
		}
		return got
	}

	t.Run("name", func(t *testing.T) {
		withStores(t, func(t *testing.T, st store.DataStore) {
			snd := seed(t, st)
			if err := st.UpdateSoundName(snd.ID, "fog horn"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fetch(t, st, snd.ID); got.Name != "fog horn" {
				t.Errorf("Name = %q, want %q", got.Name, "fog horn")
			}
			if err := st.UpdateSoundName(snd.ID, ""); err == nil {
				t.Error("renaming to an empty name succeeded")
			}
		})
	})

	t.Run("volume_clamps", func(t *testing.T) {
		withStores(t, func(t *testing.T, st store.DataStore) {
			snd := seed(t, st)
			if err := st.UpdateSoundVolume(snd.ID, 2.5); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fetch(t, st, snd.ID); got.Volume != 1 {
				t.Errorf("Volume = %v, want 1", got.Volume)
			}
			if err := st.UpdateSoundVolume(snd.ID, -0.5); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fetch(t, st, snd.ID); got.Volume != 0 {
				t.Errorf("Volume = %v, want 0", got.Volume)
			}
		})
	})

	t.Run("hotkey", func(t *testing.T) {
		withStores(t, func(t *testing.T, st store.DataStore) {
			snd := seed(t, st)
			if err := st.UpdateSoundHotkey(snd.ID, "CTRL+F5"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fetch(t, st, snd.ID); got.Hotkey != "CTRL+F5" {
				t.Errorf("Hotkey = %q, want %q", got.Hotkey, "CTRL+F5")
			}
			if err := st.UpdateSoundHotkey(snd.ID, ""); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fetch(t, st, snd.ID); got.Hotkey != "" {
				t.Errorf("Hotkey = %q, want cleared", got.Hotkey)
			}
		})
	})

	t.Run("start_position", func(t *testing.T) {
		withStores(t, func(t *testing.T, st store.DataStore) {
			snd := seed(t, st)
			if err := st.UpdateSoundStartPosition(snd.ID, 5.5); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fetch(t, st, snd.ID); got.StartPosition != 5.5 {
				t.Errorf("StartPosition = %v, want 5.5", got.StartPosition)
			}
			if err := st.UpdateSoundStartPosition(snd.ID, -1); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fetch(t, st, snd.ID); got.StartPosition != 0 {
				t.Errorf("StartPosition = %v, want 0", got.StartPosition)
			}
		})
	})

	t.Run("duration", func(t *testing.T) {
		withStores(t, func(t *testing.T, st store.DataStore) {
			snd := seed(t, st)
			if err := st.UpdateSoundDuration(snd.ID, 12.25); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fetch(t, st, snd.ID); got.Duration != 12.25 {
				t.Errorf("Duration = %v, want 12.25", got.Duration)
			}
		})
	})

	t.Run("category", func(t *testing.T) {
		withStores(t, func(t *testing.T, st store.DataStore) {
			snd := seed(t, st)
			cat := model.Category{Name: "memes"}
			if err := st.CreateCategory(&cat); err != nil {
				t.Fatalf("failed to seed category: %v", err)
			}
			if err := st.UpdateSoundCategory(snd.ID, cat.ID); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fetch(t, st, snd.ID); got.CategoryID != cat.ID {
				t.Errorf("CategoryID = %d, want %d", got.CategoryID, cat.ID)
			}
		})
	})

	t.Run("unknown_id_is_noop", func(t *testing.T) {
		withStores(t, func(t *testing.T, st store.DataStore) {
			if err := st.UpdateSoundVolume("no-such-id", 0.5); err != nil {
				t.Errorf("UpdateSoundVolume on unknown id = %v, want nil", err)
			}
			if err := st.UpdateSoundHotkey("no-such-id", "F1"); err != nil {
				t.Errorf("UpdateSoundHotkey on unknown id = %v, want nil", err)
			}
		})
	})
}

func TestDeleteSound(t *testing.T) {
	t.Parallel()

	withStores(t, func(t *testing.T, st store.DataStore) {
		snd := model.Sound{Name: "air horn", FilePath: "clips/air horn.mp3", Volume: 1}
		if err := st.CreateSound(&snd); err != nil {
			t.Fatalf("failed to seed sound: %v", err)
		}

		if err := st.DeleteSound(snd.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := st.GetSound(snd.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Fatalf("sound still present after delete")
		}

		// Deleting again is harmless.
		if err := st.DeleteSound(snd.ID); err != nil {
			t.Fatalf("second delete: %v", err)
		}
	})
}

func TestCategories(t *testing.T) {
	t.Parallel()

	withStores(t, func(t *testing.T, st store.DataStore) {
		first := model.Category{Name: "memes", Color: "#ff8800"}
		if err := st.CreateCategory(&first); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.ID == 0 {
			t.Fatal("CreateCategory left ID unset")
		}

		dup := model.Category{Name: "memes"}
		if err := st.CreateCategory(&dup); err == nil {
			t.Error("duplicate category name succeeded")
		}
		if err := st.CreateCategory(&model.Category{}); err == nil {
			t.Error("empty category name succeeded")
		}

		second := model.Category{Name: "alerts"}
		if err := st.CreateCategory(&second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := st.GetCategory(first.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil || got.Name != "memes" || got.Color != "#ff8800" {
			t.Errorf("GetCategory = %+v, want memes/#ff8800", got)
		}

		missing, err := st.GetCategory(9999)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if missing != nil {
			t.Errorf("expected nil for missing category, got %+v", missing)
		}

		categories, err := st.ListCategories()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var names []string
		for _, cat := range categories {
			names = append(names, cat.Name)
		}
		if diff := cmp.Diff([]string{"alerts", "memes"}, names); diff != "" {
			t.Errorf("ListCategories order mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDeleteCategoryUncategorizesSounds(t *testing.T) {
	t.Parallel()

	withStores(t, func(t *testing.T, st store.DataStore) {
		cat := model.Category{Name: "memes"}
		if err := st.CreateCategory(&cat); err != nil {
			t.Fatalf("failed to seed category: %v", err)
		}
		snd := model.Sound{Name: "bruh", FilePath: "clips/bruh.wav", Volume: 1, CategoryID: cat.ID}
		if err := st.CreateSound(&snd); err != nil {
			t.Fatalf("failed to seed sound: %v", err)
		}

		if err := st.DeleteCategory(cat.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		gone, err := st.GetCategory(cat.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gone != nil {
			t.Fatal("category still present after delete")
		}
		got, err := st.GetSound(snd.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil || got.CategoryID != 0 {
			t.Errorf("sound after category delete = %+v, want CategoryID 0", got)
		}
	})
}

func TestSettings(t *testing.T) {
	t.Parallel()

	withStores(t, func(t *testing.T, st store.DataStore) {
		got, err := st.GetSetting("device.virtual")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "" {
			t.Fatalf("missing key = %q, want empty", got)
		}

		if err := st.SetSetting("device.virtual", "CABLE Input"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := st.SetSetting("device.virtual", "BlackHole 2ch"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err = st.GetSetting("device.virtual")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "BlackHole 2ch" {
			t.Errorf("GetSetting = %q, want overwritten value", got)
		}
	})
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	snd := model.Sound{Name: "air horn", FilePath: "clips/air horn.mp3", Volume: 0.5, Hotkey: "F2"}
	if err := st.CreateSound(&snd); err != nil {
		t.Fatalf("failed to seed sound: %v", err)
	}
	if err := st.SetSetting("gain.output", "0.75"); err != nil {
		t.Fatalf("failed to seed setting: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening runs the migrations again; they must be harmless on an
	// up-to-date database.
	st2, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen db: %v", err)
	}
	t.Cleanup(func() { _ = st2.Close() })

	got, err := st2.GetSound(snd.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(&snd, got, cmpopts.IgnoreFields(model.Sound{}, "CreatedAt", "UpdatedAt")); diff != "" {
		t.Errorf("sound after reopen mismatch (-want +got):\n%s", diff)
	}
	value, err := st2.GetSetting("gain.output")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "0.75" {
		t.Errorf("setting after reopen = %q, want %q", value, "0.75")
	}
}
