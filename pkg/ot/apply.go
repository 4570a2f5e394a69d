package ot

import "fmt"

// Apply executes op against text and returns the resulting text. Retain
// returns the text unchanged. Out-of-bounds positions are reported as errors;
// the engine validates operations at admission, so an error here indicates a
// transform produced an inconsistent operation.
func Apply(text string, op Operation) (string, error) {
	switch op.Kind {
	case KindInsert:
		if op.Position < 0 || op.Position > len(text) {
			return text, fmt.Errorf("insert position %d out of bounds (length %d)", op.Position, len(text))
		}
		return text[:op.Position] + op.Content + text[op.Position:], nil

	case KindDelete:
		if op.Position < 0 || op.End() > len(text) {
			return text, fmt.Errorf("delete range [%d,%d) out of bounds (length %d)", op.Position, op.End(), len(text))
		}
		return text[:op.Position] + text[op.End():], nil

	case KindReplace:
		if op.Position < 0 || op.End() > len(text) {
			return text, fmt.Errorf("replace range [%d,%d) out of bounds (length %d)", op.Position, op.End(), len(text))
		}
		return text[:op.Position] + op.Content + text[op.End():], nil

	case KindRetain:
		return text, nil

	default:
		return text, fmt.Errorf("%w: %q", ErrUnknownKind, op.Kind)
	}
}

// ApplyAll executes a sequence of operations in order, stopping at the first
// failure.
func ApplyAll(text string, ops []Operation) (string, error) {
	var err error
	for _, op := range ops {
		text, err = Apply(text, op)
		if err != nil {
			return text, err
		}
	}
	return text, nil
}
