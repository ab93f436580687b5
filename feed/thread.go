package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/badhabitcaps/poker-web/domain"
)

// Thread is the local view of the comments on one hand, newest first with
// replies nested under their parent. Inserts are keyed by comment ID, so an
// optimistic local insert followed by the relay's echo of the same comment
// leaves a single copy.
type Thread struct {
	handID string

	mu       sync.Mutex
	comments []Comment
}

func NewThread(handID string, initial []Comment) *Thread {
	return &Thread{handID: handID, comments: cloneComments(initial)}
}

func (t *Thread) HandID() string { return t.handID }

// AddComment inserts c and reports whether it was new. A comment already
// present is updated in place instead.
func (t *Thread) AddComment(c Comment) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.replace(c) {
		return false
	}

	if c.ParentID == "" {
		t.comments = append([]Comment{cloneComment(c)}, t.comments...)
		return true
	}

	for i := range t.comments {
		if t.comments[i].ID == c.ParentID {
			t.comments[i].Replies = append(t.comments[i].Replies, cloneComment(c))
			return true
		}
	}
	slog.Debug("reply to unknown comment dropped", "handId", t.handID, "commentId", c.ID, "parentId", c.ParentID)
	return false
}

// ApplyCommentNew applies a comment:new event. Events for other hands are
// ignored.
func (t *Thread) ApplyCommentNew(ev CommentNew) bool {
	if ev.HandID != t.handID || ev.Comment.ID == "" {
		return false
	}
	return t.AddComment(ev.Comment)
}

// ApplyCommentUpdate merges the fields present in ev.Comment into the
// comment or reply with the same id. Unknown comments and other hands are
// ignored.
func (t *Thread) ApplyCommentUpdate(ev CommentUpdate) (bool, error) {
	if ev.HandID != t.handID || len(ev.Comment) == 0 {
		return false, nil
	}
	var ref struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(ev.Comment, &ref); err != nil {
		return false, fmt.Errorf("merge comment: %w", err)
	}
	if ref.ID == "" {
		return false, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	target := t.find(ref.ID)
	if target == nil {
		return false, nil
	}
	merged := cloneComment(*target)
	if err := json.Unmarshal(ev.Comment, &merged); err != nil {
		return false, fmt.Errorf("merge comment %s: %w", ref.ID, err)
	}
	// An update cannot move the comment under another parent.
	merged.ParentID = target.ParentID
	*target = merged
	return true, nil
}

// ApplyCommentDelete removes the comment or reply with ev.CommentID. A
// removed top-level comment takes its replies with it.
func (t *Thread) ApplyCommentDelete(ev CommentDelete) bool {
	if ev.HandID != t.handID || ev.CommentID == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.comments {
		if t.comments[i].ID == ev.CommentID {
			t.comments = slices.Delete(t.comments, i, i+1)
			return true
		}
		replies := t.comments[i].Replies
		if j := slices.IndexFunc(replies, func(r Comment) bool { return r.ID == ev.CommentID }); j >= 0 {
			t.comments[i].Replies = slices.Delete(replies, j, j+1)
			return true
		}
	}
	return false
}

// find returns the comment or reply with id, or nil. Callers hold t.mu.
func (t *Thread) find(id string) *Comment {
	for i := range t.comments {
		if t.comments[i].ID == id {
			return &t.comments[i]
		}
		for j := range t.comments[i].Replies {
			if t.comments[i].Replies[j].ID == id {
				return &t.comments[i].Replies[j]
			}
		}
	}
	return nil
}

// replace overwrites the comment with c's ID, keeping existing replies.
// Callers hold t.mu.
func (t *Thread) replace(c Comment) bool {
	for i := range t.comments {
		if t.comments[i].ID == c.ID {
			replies := t.comments[i].Replies
			t.comments[i] = cloneComment(c)
			t.comments[i].Replies = replies
			return true
		}
		for j := range t.comments[i].Replies {
			if t.comments[i].Replies[j].ID == c.ID {
				t.comments[i].Replies[j] = cloneComment(c)
				return true
			}
		}
	}
	return false
}

func (t *Thread) Comments() []Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneComments(t.comments)
}

// Len counts comments including replies.
func (t *Thread) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, c := range t.comments {
		n += 1 + len(c.Replies)
	}
	return n
}

// Bind keeps the thread in sync with the comment topics on sub and returns
// a function that stops it.
func (t *Thread) Bind(sub Subscriber) func() {
	unsubs := []func(){
		sub.Subscribe(domain.TopicCommentNew, func(payload json.RawMessage) {
			var ev CommentNew
			if decode(domain.TopicCommentNew, payload, &ev) {
				t.ApplyCommentNew(ev)
			}
		}),
		sub.Subscribe(domain.TopicCommentUpdate, func(payload json.RawMessage) {
			var ev CommentUpdate
			if !decode(domain.TopicCommentUpdate, payload, &ev) {
				return
			}
			if _, err := t.ApplyCommentUpdate(ev); err != nil {
				slog.Warn("comment update not applied", "handId", t.handID, "error", err)
			}
		}),
		sub.Subscribe(domain.TopicCommentDelete, func(payload json.RawMessage) {
			var ev CommentDelete
			if decode(domain.TopicCommentDelete, payload, &ev) {
				t.ApplyCommentDelete(ev)
			}
		}),
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func cloneComment(c Comment) Comment {
	c.User = cloneUser(c.User)
	c.Replies = cloneComments(c.Replies)
	return c
}

func cloneComments(in []Comment) []Comment {
	if in == nil {
		return nil
	}
	out := make([]Comment, len(in))
	for i, c := range in {
		out[i] = cloneComment(c)
	}
	return out
}
