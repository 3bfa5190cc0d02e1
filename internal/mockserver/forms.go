package mockserver

import "sync"

// FormState is the server-side state of one form.
type FormState struct {
	Complete bool   `json:"complete"`
	Result   string `json:"result,omitempty"`
	Version  int    `json:"version"`
}

// FormStore remembers each form's state across connections, so a rejoin sees
// the same completion the first connection did.
type FormStore struct {
	mu    sync.Mutex
	forms map[string]FormState
}

func NewFormStore() *FormStore {
	return &FormStore{forms: make(map[string]FormState)}
}

// Get returns the form's state. Unknown forms are open at version 0.
func (s *FormStore) Get(formID string) FormState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forms[formID]
}

// Complete closes the form with result.
func (s *FormStore) Complete(formID, result string) FormState {
	return s.update(formID, true, result)
}

// Reset reopens the form.
func (s *FormStore) Reset(formID string) FormState {
	return s.update(formID, false, "")
}

func (s *FormStore) update(formID string, complete bool, result string) FormState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.forms[formID]
	st.Complete = complete
	st.Result = result
	st.Version++
	s.forms[formID] = st
	return st
}
