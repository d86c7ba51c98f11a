package jingle

import (
	"strings"
)

const crlf = "\r\n"

// Lines is an ordered block of SDP lines stored without their CRLF terminator.
type Lines []string

func insertLine(lines Lines, index int, line string) Lines {
	if len(lines) == index { // nil or empty slice or after last element
		return append(lines, line)
	}
	lines = append(lines[:index+1], lines[index:]...) // index < len(a)
	lines[index] = line
	return lines
}

func removeLine(lines Lines, index int) Lines {
	return append(lines[:index], lines[index+1:]...)
}

// Find returns the first line starting with prefix.
func (l Lines) Find(prefix string) (string, bool) {
	for _, line := range l {
		if strings.HasPrefix(line, prefix) {
			return line, true
		}
	}
	return "", false
}

// FindAll returns every line starting with prefix, in order.
func (l Lines) FindAll(prefix string) []string {
	var found []string
	for _, line := range l {
		if strings.HasPrefix(line, prefix) {
			found = append(found, line)
		}
	}
	return found
}

// Remove removes the first line starting with prefix only.
func (l *Lines) Remove(prefix string) bool {
	for i, line := range *l {
		if strings.HasPrefix(line, prefix) {
			*l = removeLine(*l, i)
			return true
		}
	}
	return false
}

// RemoveAll repeats Remove until no line starts with prefix.
func (l *Lines) RemoveAll(prefix string) int {
	n := 0
	for l.Remove(prefix) {
		n++
	}
	return n
}

// RemoveExact removes the first line equal to line.
func (l *Lines) RemoveExact(line string) bool {
	for i, candidate := range *l {
		if candidate == line {
			*l = removeLine(*l, i)
			return true
		}
	}
	return false
}

// ReplaceFirst swaps the first line equal to old for next.
func (l Lines) ReplaceFirst(old, next string) bool {
	for i, line := range l {
		if line == old {
			l[i] = next
			return true
		}
	}
	return false
}

// ReplaceAll swaps every line equal to old for next.
func (l Lines) ReplaceAll(old, next string) int {
	if old == next {
		return 0
	}
	n := 0
	for l.ReplaceFirst(old, next) {
		n++
	}
	return n
}

func (l *Lines) Append(lines ...string) {
	*l = append(*l, lines...)
}

// Insert puts line at index, shifting the rest down.
func (l *Lines) Insert(index int, line string) {
	if index < 0 {
		index = 0
	}
	if index > len(*l) {
		index = len(*l)
	}
	*l = insertLine(*l, index, line)
}

func (l Lines) Raw() string {
	var b strings.Builder
	for _, line := range l {
		b.WriteString(line)
		b.WriteString(crlf)
	}
	return b.String()
}

// MediaSection is one m= block. Index 0 is audio and 1 is video by convention.
type MediaSection struct {
	Lines
}

// MID returns the identifier from the a=mid: line, or "" when absent.
func (m *MediaSection) MID() string {
	if line, ok := m.Find("a=mid:"); ok {
		return ParseMID(line)
	}
	return ""
}

// MLine parses the first line of the section.
func (m *MediaSection) MLine() MLine {
	if len(m.Lines) == 0 {
		return MLine{}
	}
	return ParseMLine(m.Lines[0])
}

// Matches reports whether the section is addressed by name, either through its
// mid or through its media type.
func (m *MediaSection) Matches(name string) bool {
	if m.MID() == name {
		return name != ""
	}
	return len(m.Lines) > 0 && strings.HasPrefix(m.Lines[0], "m="+name+" ")
}

// InsertSources places ssrc lines right after the last ssrc attribute of the
// section, or at its end when it has none.
func (m *MediaSection) InsertSources(lines []string) {
	at := len(m.Lines)
	for i := len(m.Lines) - 1; i > 0; i-- {
		if strings.HasPrefix(m.Lines[i], "a=ssrc") {
			at = i + 1
			break
		}
	}
	for _, line := range lines {
		m.Insert(at, line)
		at++
	}
}

type SessionDescription struct {
	Session Lines
	Media   []*MediaSection
}

// ParseSDP splits text into the session block and its media sections.
// Nothing is validated; unknown or malformed lines are kept verbatim.
func ParseSDP(text string) *SessionDescription {
	desc := &SessionDescription{}
	if text == "" {
		return desc
	}
	records := strings.Split(text, crlf)
	if records[len(records)-1] == "" {
		records = records[:len(records)-1]
	}
	var current *MediaSection
	for _, line := range records {
		if strings.HasPrefix(line, "m=") {
			current = &MediaSection{Lines: Lines{line}}
			desc.Media = append(desc.Media, current)
			continue
		}
		if current == nil {
			desc.Session = append(desc.Session, line)
		} else {
			current.Lines = append(current.Lines, line)
		}
	}
	return desc
}

// Raw serializes the description. It is always derived from the current lines.
func (s *SessionDescription) Raw() string {
	var b strings.Builder
	b.WriteString(s.Session.Raw())
	for _, m := range s.Media {
		b.WriteString(m.Raw())
	}
	return b.String()
}

func (s *SessionDescription) Clone() *SessionDescription {
	c := &SessionDescription{Session: append(Lines(nil), s.Session...)}
	for _, m := range s.Media {
		c.Media = append(c.Media, &MediaSection{Lines: append(Lines(nil), m.Lines...)})
	}
	return c
}

// FindLine looks in media section idx first and in the session block second.
func (s *SessionDescription) FindLine(idx int, prefix string) (string, bool) {
	if idx >= 0 && idx < len(s.Media) {
		if line, ok := s.Media[idx].Find(prefix); ok {
			return line, true
		}
	}
	return s.Session.Find(prefix)
}

// FindLines returns the matches of media section idx, or those of the session
// block when the section has none.
func (s *SessionDescription) FindLines(idx int, prefix string) []string {
	if idx >= 0 && idx < len(s.Media) {
		if found := s.Media[idx].FindAll(prefix); len(found) > 0 {
			return found
		}
	}
	return s.Session.FindAll(prefix)
}

// IndexOf returns the index of the first section addressed by name, or -1.
func (s *SessionDescription) IndexOf(name string) int {
	for i, m := range s.Media {
		if m.Matches(name) {
			return i
		}
	}
	return -1
}

// FindAll collects matching lines across the session block and every section.
func (s *SessionDescription) FindAll(prefix string) []string {
	found := s.Session.FindAll(prefix)
	for _, m := range s.Media {
		found = append(found, m.FindAll(prefix)...)
	}
	return found
}

// MIDs lists the mid of every section that has one.
func (s *SessionDescription) MIDs() []string {
	var mids []string
	for _, m := range s.Media {
		if mid := m.MID(); mid != "" {
			mids = append(mids, mid)
		}
	}
	return mids
}
