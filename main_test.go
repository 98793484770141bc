package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/kaiwa/internal/config"
	"github.com/dgnsrekt/kaiwa/internal/content"
	"github.com/dgnsrekt/kaiwa/review"
)

func builtinLibrary(t *testing.T) content.Library {
	t.Helper()
	lib, err := content.Builtin()
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}
	return lib
}

func TestDescribe(t *testing.T) {
	lib := builtinLibrary(t)
	tests := []struct {
		name    string
		ref     review.Ref
		want    string
		wantErr bool
	}{
		{
			name: "turn",
			ref:  review.Ref{Type: review.TypeConversation, SceneID: "morning_greeting", TurnID: "mg1"},
			want: "Good morning. Did you sleep well?",
		},
		{
			name: "phrase",
			ref:  review.Ref{Type: review.TypePhrase, PhraseID: "o1"},
			want: "おはようございます → Good morning",
		},
		{
			name:    "missing turn",
			ref:     review.Ref{Type: review.TypeConversation, SceneID: "morning_greeting", TurnID: "nope"},
			wantErr: true,
		},
		{
			name:    "missing scene",
			ref:     review.Ref{Type: review.TypeConversation, SceneID: "nope", TurnID: "mg1"},
			wantErr: true,
		},
		{
			name:    "missing phrase",
			ref:     review.Ref{Type: review.TypePhrase, PhraseID: "nope"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := describe(lib, tt.ref)
			if tt.wantErr {
				if !errors.Is(err, content.ErrNotFound) {
					t.Errorf("describe() error = %v, want ErrNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("describe() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunReviewSession(t *testing.T) {
	ctx := context.Background()
	lib := builtinLibrary(t)
	store := review.NewMemoryStore()

	var items []review.Item
	for _, ref := range []review.Ref{
		{Type: review.TypeConversation, SceneID: "morning_greeting", TurnID: "mg1"},
		{Type: review.TypePhrase, PhraseID: "o1"},
	} {
		item, err := review.NewItem(ref, time.Now())
		if err != nil {
			t.Fatalf("NewItem() error = %v", err)
		}
		if item, _, err = store.Add(ctx, item); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		items = append(items, item)
	}

	r := review.NewReviewer(store)
	if _, err := r.Start(items); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var out bytes.Buffer
	in := strings.NewReader("maybe\ngood\nq\n")
	if err := runReviewSession(ctx, r, store, lib, in, &out); err != nil {
		t.Fatalf("runReviewSession() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"[1/2] Good morning. Did you sleep well?",
		"please answer again, hard, good or easy",
		"[2/2] おはようございます → Good morning",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "All done.") {
		t.Errorf("output = %q, want the session to stop early", got)
	}

	first, err := store.Get(ctx, items[0].ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first.RepetitionCount != 1 {
		t.Errorf("RepetitionCount = %d, want 1", first.RepetitionCount)
	}
	second, err := store.Get(ctx, items[1].ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if second.LastReviewedAt != nil {
		t.Errorf("LastReviewedAt = %v, want unrated", second.LastReviewedAt)
	}
	if _, ok := r.Current(); ok {
		t.Error("Current() ok = true after the session ended")
	}
}

func TestRunReviewSessionAllDone(t *testing.T) {
	ctx := context.Background()
	store := review.NewMemoryStore()
	item, err := review.NewItem(review.Ref{Type: review.TypePhrase, PhraseID: "o1"}, time.Now())
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}
	if item, _, err = store.Add(ctx, item); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	r := review.NewReviewer(store)
	if _, err := r.Start([]review.Item{item}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var out bytes.Buffer
	if err := runReviewSession(ctx, r, store, builtinLibrary(t), strings.NewReader("Easy\n"), &out); err != nil {
		t.Fatalf("runReviewSession() error = %v", err)
	}
	if !strings.Contains(out.String(), "All done.") {
		t.Errorf("output = %q, want All done.", out.String())
	}
}

func TestWriteLibrary(t *testing.T) {
	lib := builtinLibrary(t)

	var out bytes.Buffer
	writeLibrary(&out, lib, "")
	for _, want := range []string{"morning_greeting", "cafe_order", "office-basics"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("writeLibrary() missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	writeLibrary(&out, lib, "qqqqzzzzxxxx")
	if got := strings.TrimSpace(out.String()); got != "No matches." {
		t.Errorf("writeLibrary() = %q, want %q", got, "No matches.")
	}
}

func TestDefaultConfigMatchesDefaults(t *testing.T) {
	t.Setenv("KAIWA_PROFILE", "")
	path := filepath.Join(t.TempDir(), "kaiwa.yml")
	if err := os.WriteFile(path, []byte(defaultConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := config.Load(nil, config.Options{File: path, EnvFiles: []string{}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := config.Default(); !reflect.DeepEqual(got, want) {
		t.Errorf("Load(defaultConfig) = %+v, want %+v", got, want)
	}
}
