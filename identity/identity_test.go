package identity

import (
	"errors"
	"io"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"
)

func TestStoreResolveFallsBackToRawID(t *testing.T) {
	s := NewStore()

	got := s.Resolve("12345")
	if got.Label != "12345" {
		t.Errorf("unbound Resolve = %q, want raw id", got.Label)
	}

	s.Bind("12345", Identity{Label: "alice", VoicePreference: "shimmer"})
	got = s.Resolve("12345")
	if got.Label != "alice" || got.VoicePreference != "shimmer" {
		t.Errorf("bound Resolve = %+v", got)
	}

	s.Unbind("12345")
	if got := s.Resolve("12345"); got.Label != "12345" {
		t.Errorf("Resolve after Unbind = %q, want raw id", got.Label)
	}
}

type fakeUserFetcher struct {
	users map[string]string
	calls int
}

func (f *fakeUserFetcher) User(
	userID string,
	_ ...discordgo.RequestOption,
) (*discordgo.User, error) {
	f.calls++
	name, ok := f.users[userID]
	if !ok {
		return nil, errors.New("unknown user")
	}
	return &discordgo.User{ID: userID, Username: name}, nil
}

func TestDiscordResolverPrefersBindings(t *testing.T) {
	store := NewStore()
	store.Bind("7", Identity{Label: "the bard"})
	api := &fakeUserFetcher{users: map[string]string{"7": "bard#1234"}}

	r := NewDiscordResolver(store, api, log.New(io.Discard))
	if got := r.Resolve("7"); got.Label != "the bard" {
		t.Errorf("Resolve = %q, want binding to win", got.Label)
	}
	if api.calls != 0 {
		t.Errorf("REST lookup made despite binding, calls = %d", api.calls)
	}
}

func TestDiscordResolverCachesLookups(t *testing.T) {
	api := &fakeUserFetcher{users: map[string]string{"9": "carol"}}
	r := NewDiscordResolver(NewStore(), api, log.New(io.Discard))

	if got := r.Resolve("9"); got.Label != "carol" {
		t.Errorf("Resolve = %q, want carol", got.Label)
	}
	r.Resolve("9")
	if api.calls != 1 {
		t.Errorf("lookups = %d, want 1 (cached)", api.calls)
	}
}

func TestDiscordResolverMissFallsBack(t *testing.T) {
	api := &fakeUserFetcher{users: map[string]string{}}
	r := NewDiscordResolver(NewStore(), api, log.New(io.Discard))

	if got := r.Resolve("404"); got.Label != "404" {
		t.Errorf("Resolve on miss = %q, want raw id", got.Label)
	}
	if got := r.Resolve(""); got.Label != "unknown" {
		t.Errorf("Resolve(\"\") = %q, want unknown", got.Label)
	}
}
