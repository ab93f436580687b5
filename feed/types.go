package feed

import (
	"encoding/json"

	"github.com/badhabitcaps/poker-web/channel"
	"github.com/badhabitcaps/poker-web/domain"
)

type User struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Image *string `json:"image"`
}

type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt string    `json:"createdAt"`
	ParentID  string    `json:"parentId,omitempty"`
	User      User      `json:"user"`
	Replies   []Comment `json:"replies"`
}

type HandTag struct {
	Tag struct {
		Name string `json:"name"`
	} `json:"tag"`
}

type HandCounts struct {
	Comments int `json:"comments"`
	Votes    int `json:"votes"`
}

type Hand struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Stakes       string     `json:"stakes"`
	HeroCards    []string   `json:"heroCards"`
	Board        []string   `json:"board"`
	Summary      string     `json:"summary,omitempty"`
	IsQuiz       bool       `json:"isQuiz"`
	QuizQuestion string     `json:"quizQuestion,omitempty"`
	CreatedAt    string     `json:"createdAt"`
	User         User       `json:"user"`
	Tags         []HandTag  `json:"tags"`
	Count        HandCounts `json:"_count"`
}

// Payloads of the known topics.

type CommentNew struct {
	HandID  string  `json:"handId"`
	Comment Comment `json:"comment"`
}

// CommentUpdate carries the changed fields of a comment or reply. Comment
// must include the id of the comment it applies to.
type CommentUpdate struct {
	HandID  string          `json:"handId"`
	Comment json.RawMessage `json:"comment"`
}

type CommentDelete struct {
	HandID    string `json:"handId"`
	CommentID string `json:"commentId"`
}

// VoteUpdate carries the total after the toggle rather than a delta, so
// applying the same update twice leaves the count unchanged. Votes is
// optional; without it only the voter's own state changes.
type VoteUpdate struct {
	HandID string `json:"handId"`
	UserID string `json:"userId"`
	Voted  bool   `json:"voted"`
	Votes  *int   `json:"votes,omitempty"`
}

type HandNew struct {
	Hand Hand `json:"hand"`
}

// HandUpdate carries only the changed fields of the hand.
type HandUpdate struct {
	HandID string          `json:"handId"`
	Hand   json.RawMessage `json:"hand"`
}

type HandsUpdate struct {
	Hands []Hand `json:"hands"`
}

// Subscriber is the part of channel.Channel the views bind to.
type Subscriber interface {
	Subscribe(topic string, fn channel.Handler) func()
}

// Publisher is the part of channel.Channel the publish helpers use.
type Publisher interface {
	Publish(topic string, payload any) bool
}

func PublishComment(p Publisher, handID string, c Comment) bool {
	return p.Publish(domain.TopicCommentNew, CommentNew{HandID: handID, Comment: c})
}

// PublishCommentUpdate sends the changed fields of comment commentID.
func PublishCommentUpdate(p Publisher, handID, commentID string, fields any) bool {
	raw, err := json.Marshal(fields)
	if err != nil {
		return false
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return false
	}
	merged["id"], _ = json.Marshal(commentID)

	raw, err = json.Marshal(merged)
	if err != nil {
		return false
	}
	return p.Publish(domain.TopicCommentUpdate, CommentUpdate{HandID: handID, Comment: raw})
}

func PublishCommentDelete(p Publisher, handID, commentID string) bool {
	return p.Publish(domain.TopicCommentDelete, CommentDelete{HandID: handID, CommentID: commentID})
}

func PublishVote(p Publisher, v VoteUpdate) bool {
	return p.Publish(domain.TopicVoteUpdate, v)
}

func PublishHand(p Publisher, h Hand) bool {
	return p.Publish(domain.TopicHandNew, HandNew{Hand: h})
}

// PublishHandUpdate sends the changed fields of a hand.
func PublishHandUpdate(p Publisher, handID string, fields any) bool {
	raw, err := json.Marshal(fields)
	if err != nil {
		return false
	}
	return p.Publish(domain.TopicHandUpdate, HandUpdate{HandID: handID, Hand: raw})
}

func PublishHands(p Publisher, hands []Hand) bool {
	return p.Publish(domain.TopicHandsUpdate, HandsUpdate{Hands: hands})
}
