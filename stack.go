package flow

// pathStack is the navigation history of one run: frames[0] is the root
// context, the last frame is the current location. The stack never shrinks
// below the root, so current() is always valid.
type pathStack struct {
	frames []any
}

func newPathStack(root any) *pathStack {
	return &pathStack{frames: []any{root}}
}

func (s *pathStack) root() any {
	return s.frames[0]
}

func (s *pathStack) current() any {
	return s.frames[len(s.frames)-1]
}

func (s *pathStack) depth() int {
	return len(s.frames)
}

func (s *pathStack) push(v any) {
	s.frames = append(s.frames, v)
}

// pop removes up to n frames but never the root. Requests beyond the
// available depth pop only what exists.
func (s *pathStack) pop(n int) {
	for ; n > 0 && len(s.frames) > 1; n-- {
		s.frames = s.frames[:len(s.frames)-1]
	}
}
