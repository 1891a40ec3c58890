package extract

import (
	"bytes"
	"encoding/json"
)

// scanner is the incremental state machine behind Objects. It consumes raw
// chunk text one byte at a time and surfaces each top-level array element
// the moment its braces balance. Structural characters are all ASCII, so
// byte-wise scanning is safe for UTF-8 content inside string literals.
type scanner struct {
	cfg config

	// started flips when the opening '[' of the top-level array is seen.
	// Anything before it (prose preamble, markdown fences) is skipped.
	started bool

	// finished flips when the top-level array closes; later text is ignored.
	finished bool

	// depth counts unclosed '{' inside the current element. The element is
	// complete when depth returns to zero on a closing brace.
	depth int

	// inString and escaped make braces and quotes inside string literals
	// inert for depth tracking.
	inString bool
	escaped  bool

	// pending holds the bytes of the element currently being accumulated.
	// nil means the scanner sits between elements, so memory never exceeds
	// one pending element plus the chunk being fed.
	pending []byte

	// fired tracks which preview fields already fired for the pending
	// element.
	fired map[string]bool
}

func newScanner(cfg config) *scanner {
	return &scanner{cfg: cfg}
}

// feed consumes one chunk and returns the raw bytes of every element that
// became complete during it, in array order. Returned slices are detached
// from the scanner's buffer.
func (s *scanner) feed(chunk string) [][]byte {
	if s.finished {
		return nil
	}

	var completed [][]byte

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		if !s.started {
			if c == '[' {
				s.started = true
			}
			continue
		}

		if s.finished {
			break
		}

		// Between elements: only an opening brace or the array close matter;
		// commas and whitespace are separators.
		if s.pending == nil {
			switch c {
			case '{':
				s.pending = append(s.pending, c)
				s.depth = 1
				s.inString = false
				s.escaped = false
			case ']':
				s.finished = true
			}
			continue
		}

		s.pending = append(s.pending, c)

		if s.inString {
			switch {
			case s.escaped:
				s.escaped = false
			case c == '\\':
				s.escaped = true
			case c == '"':
				s.inString = false
			}
			continue
		}

		switch c {
		case '"':
			s.inString = true
		case '{':
			s.depth++
		case '}':
			if s.depth > 0 {
				s.depth--
			}
			// A balanced slice that is not yet valid JSON is treated as
			// still incomplete and keeps accumulating.
			if s.depth == 0 && json.Valid(s.pending) {
				completed = append(completed, s.pending)
				s.pending = nil
				s.fired = nil
			}
		}
	}

	s.firePreviews()

	return completed
}

// finish returns whatever incomplete element text remains when the chunk
// stream ends, detaching it from the scanner.
func (s *scanner) finish() []byte {
	dangling := s.pending
	s.pending = nil
	return dangling
}

// firePreviews scans the pending element for configured preview fields whose
// string value has fully arrived, invoking the callback at most once per
// field per element.
func (s *scanner) firePreviews() {
	if s.cfg.previewFn == nil || len(s.pending) == 0 {
		return
	}

	for _, field := range s.cfg.previewFields {
		if s.fired[field] {
			continue
		}
		value, ok := previewString(s.pending, field)
		if !ok {
			continue
		}
		if s.fired == nil {
			s.fired = make(map[string]bool)
		}
		s.fired[field] = true
		s.cfg.previewFn(field, value)
	}
}

// previewString looks for `"field": "value"` in the incomplete element and
// returns the decoded value once its closing quote has arrived. It is a
// lightweight textual probe, so a field name occurring inside another string
// value can produce a spurious match; callers must treat previews as
// non-authoritative.
func previewString(pending []byte, field string) (string, bool) {
	marker := []byte(`"` + field + `"`)

	idx := bytes.Index(pending, marker)
	if idx < 0 {
		return "", false
	}

	rest := pending[idx+len(marker):]
	j := skipSpace(rest, 0)
	if j >= len(rest) || rest[j] != ':' {
		return "", false
	}
	j = skipSpace(rest, j+1)
	if j >= len(rest) || rest[j] != '"' {
		return "", false
	}

	// Find the unescaped closing quote of the value.
	escaped := false
	for k := j + 1; k < len(rest); k++ {
		switch {
		case escaped:
			escaped = false
		case rest[k] == '\\':
			escaped = true
		case rest[k] == '"':
			var value string
			if err := json.Unmarshal(rest[j:k+1], &value); err != nil {
				return "", false
			}
			return value, true
		}
	}

	return "", false
}

func skipSpace(data []byte, from int) int {
	for from < len(data) {
		switch data[from] {
		case ' ', '\t', '\n', '\r':
			from++
		default:
			return from
		}
	}
	return from
}
