package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/badhabitcaps/poker-web/domain"
)

// Board is the local view of the hand feed, newest first, plus the viewer's
// own vote per hand.
type Board struct {
	viewerID string

	mu    sync.Mutex
	hands []Hand
	voted map[string]bool
}

func NewBoard(viewerID string, initial []Hand) *Board {
	b := &Board{
		viewerID: viewerID,
		voted:    make(map[string]bool),
	}
	for _, h := range initial {
		b.hands = append(b.hands, cloneHand(h))
	}
	return b
}

// ApplyHandNew puts the hand at the top of the feed. A hand already present
// is replaced where it stands. It reports whether the hand was new.
func (b *Board) ApplyHandNew(ev HandNew) bool {
	if ev.Hand.ID == "" {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if i := b.index(ev.Hand.ID); i >= 0 {
		b.hands[i] = cloneHand(ev.Hand)
		return false
	}
	b.hands = append([]Hand{cloneHand(ev.Hand)}, b.hands...)
	return true
}

// ApplyHandUpdate merges the fields present in ev.Hand into the hand.
// Updates for hands not on the board are ignored.
func (b *Board) ApplyHandUpdate(ev HandUpdate) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.index(ev.HandID)
	if i < 0 {
		return false, nil
	}
	if len(ev.Hand) == 0 {
		return false, nil
	}

	merged := cloneHand(b.hands[i])
	if err := json.Unmarshal(ev.Hand, &merged); err != nil {
		return false, fmt.Errorf("merge hand %s: %w", ev.HandID, err)
	}
	// The update cannot move the hand to another ID.
	merged.ID = ev.HandID
	b.hands[i] = merged
	return true, nil
}

// ApplyHandsUpdate replaces the whole feed.
func (b *Board) ApplyHandsUpdate(ev HandsUpdate) {
	hands := make([]Hand, 0, len(ev.Hands))
	for _, h := range ev.Hands {
		hands = append(hands, cloneHand(h))
	}

	b.mu.Lock()
	b.hands = hands
	b.mu.Unlock()
}

// ApplyVoteUpdate sets the vote total on the hand when ev carries one and,
// when the vote is the viewer's, the viewer's own vote state.
func (b *Board) ApplyVoteUpdate(ev VoteUpdate) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.viewerID != "" && ev.UserID == b.viewerID {
		b.voted[ev.HandID] = ev.Voted
	}

	i := b.index(ev.HandID)
	if i < 0 {
		return false
	}
	if ev.Votes != nil {
		b.hands[i].Count.Votes = max(*ev.Votes, 0)
	}
	return true
}

func (b *Board) Hands() []Hand {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Hand, len(b.hands))
	for i, h := range b.hands {
		out[i] = cloneHand(h)
	}
	return out
}

func (b *Board) Hand(id string) (Hand, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.index(id)
	if i < 0 {
		return Hand{}, false
	}
	return cloneHand(b.hands[i]), true
}

// Voted reports whether the viewer has a vote on the hand.
func (b *Board) Voted(handID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voted[handID]
}

// Bind keeps the board in sync with the hand and vote topics on sub. The
// returned function removes all four subscriptions.
func (b *Board) Bind(sub Subscriber) func() {
	unsubs := []func(){
		sub.Subscribe(domain.TopicHandNew, func(payload json.RawMessage) {
			var ev HandNew
			if decode(domain.TopicHandNew, payload, &ev) {
				b.ApplyHandNew(ev)
			}
		}),
		sub.Subscribe(domain.TopicHandUpdate, func(payload json.RawMessage) {
			var ev HandUpdate
			if !decode(domain.TopicHandUpdate, payload, &ev) {
				return
			}
			if _, err := b.ApplyHandUpdate(ev); err != nil {
				slog.Warn("hand update not applied", "handId", ev.HandID, "error", err)
			}
		}),
		sub.Subscribe(domain.TopicHandsUpdate, func(payload json.RawMessage) {
			var ev HandsUpdate
			if decode(domain.TopicHandsUpdate, payload, &ev) {
				b.ApplyHandsUpdate(ev)
			}
		}),
		sub.Subscribe(domain.TopicVoteUpdate, func(payload json.RawMessage) {
			var ev VoteUpdate
			if decode(domain.TopicVoteUpdate, payload, &ev) {
				b.ApplyVoteUpdate(ev)
			}
		}),
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// index returns the position of the hand with id, or -1. Callers hold b.mu.
func (b *Board) index(id string) int {
	return slices.IndexFunc(b.hands, func(h Hand) bool { return h.ID == id })
}

func decode(topic string, payload json.RawMessage, v any) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		slog.Warn("invalid payload", "topic", topic, "error", err)
		return false
	}
	return true
}

// cloneHand copies the slices and the user's image so a later merge cannot
// write through to a caller's memory.
func cloneHand(h Hand) Hand {
	h.HeroCards = slices.Clone(h.HeroCards)
	h.Board = slices.Clone(h.Board)
	h.Tags = slices.Clone(h.Tags)
	h.User = cloneUser(h.User)
	return h
}

func cloneUser(u User) User {
	if u.Image != nil {
		img := *u.Image
		u.Image = &img
	}
	return u
}
