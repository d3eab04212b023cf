package service

// AnswerStore maps question ids to the student's current answer.
// Last write wins. It is owned by a single attempt and not safe for
// concurrent use on its own; ExamSession serialises access.
type AnswerStore struct {
	answers map[string]string
}

// NewAnswerStore returns an empty store.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{answers: make(map[string]string)}
}

// Record sets the answer for a question, replacing any previous one.
func (s *AnswerStore) Record(questionID, answer string) {
	s.answers[questionID] = answer
}

// Get returns the current answer and whether one exists.
func (s *AnswerStore) Get(questionID string) (string, bool) {
	a, ok := s.answers[questionID]
	return a, ok
}

// IsAnswered reports whether the question has an answer.
func (s *AnswerStore) IsAnswered(questionID string) bool {
	_, ok := s.answers[questionID]
	return ok
}

// Snapshot returns a copy safe to hand to other goroutines.
func (s *AnswerStore) Snapshot() map[string]string {
	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}
