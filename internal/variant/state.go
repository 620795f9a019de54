package variant

import (
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxOutputLen caps stored diagnostic output, in characters.
const MaxOutputLen = 4000

// ErrorRecord captures the last failure for one format key.
type ErrorRecord struct {
	Timestamp int64  `json:"timestamp"`
	Command   string `json:"command,omitempty"`
	Output    string `json:"output"`
}

// State is the persisted transcode state of one asset.
type State struct {
	Variants     map[FormatKey]string      `json:"variants"`
	LastError    map[FormatKey]ErrorRecord `json:"last_error"`
	LastAttempt  int64                     `json:"last_attempt"`
	PendingRetry bool                      `json:"pending_retry"`

	// RetryAttempts counts consecutive scheduled retries; reset on a run
	// that leaves nothing pending.
	RetryAttempts int `json:"retry_attempts,omitempty"`

	// Primary and Original are set once a derivative replaced the source.
	Primary  FormatKey `json:"primary,omitempty"`
	Original string    `json:"original,omitempty"`
}

// NewState returns an empty state with initialized maps.
func NewState() State {
	return State{
		Variants:  make(map[FormatKey]string),
		LastError: make(map[FormatKey]ErrorRecord),
	}
}

// Clone returns a deep copy so a run never mutates its input.
func (s State) Clone() State {
	out := s
	out.Variants = make(map[FormatKey]string, len(s.Variants))
	for k, v := range s.Variants {
		out.Variants[k] = v
	}
	out.LastError = make(map[FormatKey]ErrorRecord, len(s.LastError))
	for k, v := range s.LastError {
		out.LastError[k] = v
	}
	return out
}

// SetVariant installs a variant and clears any error for the key.
func (s *State) SetVariant(key FormatKey, rel string) {
	s.ensure()
	s.Variants[key] = rel
	delete(s.LastError, key)
}

// SetError installs an error and drops any variant for the key.
func (s *State) SetError(key FormatKey, rec ErrorRecord) {
	s.ensure()
	s.LastError[key] = rec
	delete(s.Variants, key)
}

// Forget removes both variant and error bookkeeping for key.
func (s *State) Forget(key FormatKey) {
	s.ensure()
	delete(s.Variants, key)
	delete(s.LastError, key)
}

// Has reports whether a variant is recorded for key.
func (s State) Has(key FormatKey) bool {
	_, ok := s.Variants[key]
	return ok
}

// Reconcile drops variant entries whose file no longer exists and returns
// the keys it removed. exists is consulted once per entry.
func (s *State) Reconcile(root string, exists func(string) bool) []FormatKey {
	s.ensure()
	var stale []FormatKey
	for key, rel := range s.Variants {
		if !exists(AbsPath(root, rel)) {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		delete(s.Variants, key)
	}
	return stale
}

func (s *State) ensure() {
	if s.Variants == nil {
		s.Variants = make(map[FormatKey]string)
	}
	if s.LastError == nil {
		s.LastError = make(map[FormatKey]ErrorRecord)
	}
}

// NewErrorRecord builds an ErrorRecord with truncated output.
func NewErrorRecord(now time.Time, command, output string) ErrorRecord {
	return ErrorRecord{
		Timestamp: now.Unix(),
		Command:   command,
		Output:    TruncateOutput(output),
	}
}

// TruncateOutput keeps the last MaxOutputLen characters of encoder output.
// Encoders print the fatal line last, so the tail is what matters.
func TruncateOutput(out string) string {
	if utf8.RuneCountInString(out) <= MaxOutputLen {
		return out
	}
	runes := []rune(out)
	return string(runes[len(runes)-MaxOutputLen:])
}

// RelPath converts an absolute path into the slash-separated form stored in
// state, relative to the media root. Paths outside the root are stored as-is.
func RelPath(root, abs string) string {
	if root == "" {
		return filepath.ToSlash(abs)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// AbsPath resolves a stored path against the media root.
func AbsPath(root, rel string) string {
	p := filepath.FromSlash(rel)
	if filepath.IsAbs(p) || root == "" {
		return p
	}
	return filepath.Join(root, p)
}
