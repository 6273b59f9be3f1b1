package history

import "time"

// Playback returns the player state of record id.
func (s *Store) Playback(id string) (Playback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.player(id)
	if err != nil {
		return Playback{}, err
	}
	return *p, nil
}

// Play starts or resumes playback of record id. A finished clip restarts
// from the beginning.
func (s *Store) Play(id string) (Playback, error) {
	return s.updatePlayer(id, (*Playback).play)
}

// Pause pauses record id if it is playing.
func (s *Store) Pause(id string) (Playback, error) {
	return s.updatePlayer(id, (*Playback).pause)
}

// Seek moves the position of record id, clamped to the clip length.
func (s *Store) Seek(id string, pos time.Duration) (Playback, error) {
	return s.updatePlayer(id, func(p *Playback) { p.seek(pos) })
}

// Ended marks record id as finished and rewinds it.
func (s *Store) Ended(id string) (Playback, error) {
	return s.updatePlayer(id, (*Playback).ended)
}

func (s *Store) updatePlayer(id string, fn func(*Playback)) (Playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.player(id)
	if err != nil {
		return Playback{}, err
	}
	fn(p)
	return *p, nil
}

// player looks up the player for id. Callers hold s.mu.
func (s *Store) player(id string) (*Playback, error) {
	if p, ok := s.playback[id]; ok {
		return p, nil
	}
	for _, rec := range s.records {
		if rec.ID == id {
			return nil, ErrNoAudio
		}
	}
	return nil, ErrNotFound
}
