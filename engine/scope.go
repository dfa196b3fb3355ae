package engine

// Local scope: a stack of frames, one pushed per enclosing foreach.
// Lookup searches innermost first; assignment updates the frame that
// already holds the name, and new names go to the innermost frame.

import (
	"github.com/groupwarden/groupwarden/interp"
)

type scope struct {
	frames []map[string]interp.Value
}

func newScope() *scope {
	return &scope{
		frames: []map[string]interp.Value{make(map[string]interp.Value)},
	}
}

func (s *scope) push() {
	s.frames = append(s.frames, make(map[string]interp.Value))
}

func (s *scope) pop() {
	s.frames = s.frames[:len(s.frames)-1]
}

// Lookup implements interp.Env.
func (s *scope) Lookup(name string) (interp.Value, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, have := s.frames[i][name]; have {
			return v, true
		}
	}
	return interp.Null, false
}

func (s *scope) set(name string, v interp.Value) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if _, have := s.frames[i][name]; have {
			s.frames[i][name] = v
			return
		}
	}
	s.frames[len(s.frames)-1][name] = v
}

// setTop binds the name in the innermost frame regardless of outer
// frames; foreach uses it for the loop variable.
func (s *scope) setTop(name string, v interp.Value) {
	s.frames[len(s.frames)-1][name] = v
}
