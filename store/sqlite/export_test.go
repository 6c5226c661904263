package sqlite

// ExecRaw runs a statement against the underlying database so tests can
// put rows into states the store itself never writes.
func (s *Store) ExecRaw(query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(query, args...)
	return err
}
