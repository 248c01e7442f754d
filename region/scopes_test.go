package region

// scopeSlice is a ScopeList backed by a slice of names, standing in for the
// VM's scope records.
type scopeSlice struct {
	names []string
}

func (s *scopeSlice) Len() int { return len(s.names) }

func (s *scopeSlice) Truncate(n int) { s.names = s.names[:n] }

func (s *scopeSlice) push(st *State, name string) {
	s.names = append(s.names, name)
	st.CountScope()
}
