package room

import (
	"math/rand"

	"github.com/mathroom/mathroom/pkg/protocol"
)

// Question is one bank entry. Grading is exact string match on Answer.
type Question struct {
	ID     protocol.ID
	Text   string
	Answer string
}

// DefaultQuestions is the built-in arithmetic set.
func DefaultQuestions() []Question {
	return []Question{
		{ID: "0", Text: "What's 5 + 7?", Answer: "12"},
		{ID: "1", Text: "What's 25 / 5?", Answer: "5"},
		{ID: "2", Text: "What's 10 * 2?", Answer: "20"},
		{ID: "3", Text: "What's 15 - 3?", Answer: "12"},
		{ID: "4", Text: "What's 20 + 10?", Answer: "30"},
	}
}

// Bank draws random questions without repeats, recycling the whole set once
// every question has been used.
type Bank struct {
	questions []Question
	byID      map[protocol.ID]Question
	used      map[protocol.ID]bool
	rng       *rand.Rand
}

func NewBank(questions []Question, seed int64) *Bank {
	byID := make(map[protocol.ID]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return &Bank{
		questions: questions,
		byID:      byID,
		used:      make(map[protocol.ID]bool),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Draw picks a random unused question. When everything has been asked the
// used set resets and drawing starts over.
func (b *Bank) Draw() (Question, bool) {
	if len(b.questions) == 0 {
		return Question{}, false
	}
	var available []Question
	for _, q := range b.questions {
		if !b.used[q.ID] {
			available = append(available, q)
		}
	}
	if len(available) == 0 {
		b.used = make(map[protocol.ID]bool)
		available = b.questions
	}
	q := available[b.rng.Intn(len(available))]
	b.used[q.ID] = true
	return q, true
}

// AnswerFor grades by the id the client referenced, which may lag behind
// the room's current question.
func (b *Bank) AnswerFor(id protocol.ID) (string, bool) {
	q, ok := b.byID[id]
	return q.Answer, ok
}
