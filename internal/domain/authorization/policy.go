package authorization

import (
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE ACCESS POLICY
// Pure track → subject category gate. A user's track ("programacao",
// "robotica", ...) decides which course subjects they may see at all; the
// per-lesson unlock (grants, completions) is a separate layer evaluated after
// this one. No persistence, deterministic, safe for unsynchronized concurrent
// use.
// ══════════════════════════════════════════════════════════════════════════════

// CatchAllCategory is where subjects land when no track's keyword list matches
// them. Catch-all subjects are accessible from any track.
const CatchAllCategory = "outros"

// trackKeywords maps a track to the subject keywords it may access. Matching
// is loose on purpose: course subjects in the catalog are free text entered
// by admins, so "curso de python" must match the "python" keyword.
var trackKeywords = map[string][]string{
	"programacao": {
		"programacao", "python", "javascript", "java", "html", "css",
		"logica", "algoritmo", "banco de dados", "sql", "git",
	},
	"robotica": {
		"robotica", "arduino", "eletronica", "sensores", "automacao", "maker",
	},
	"design": {
		"design", "ilustracao", "photoshop", "ui", "ux", "edicao",
	},
	"games": {
		"games", "jogos", "unity", "godot", "game design",
	},
}

// crossTrackKeywords match subjects that every track may access, whichever
// track list they also appear in. "web" is the canonical case: it belongs to
// the programming list but is open to all.
var crossTrackKeywords = []string{
	"web", "informatica", "computacao", "introducao",
}

// adminTracks bypass the category gate entirely.
var adminTracks = map[string]bool{
	"admin":         true,
	"administrador": true,
}

// Policy is the course access policy. The zero value uses the built-in
// category table; NewPolicy exists so tests can swap the table without
// touching the evaluator.
type Policy struct {
	tracks      map[string][]string
	crossTrack  []string
	adminTracks map[string]bool
}

// NewPolicy creates a policy with the built-in category table.
func NewPolicy() *Policy {
	return &Policy{
		tracks:      trackKeywords,
		crossTrack:  crossTrackKeywords,
		adminTracks: adminTracks,
	}
}

// NewPolicyWithTable creates a policy with a custom category table.
func NewPolicyWithTable(tracks map[string][]string, crossTrack []string) *Policy {
	return &Policy{
		tracks:      tracks,
		crossTrack:  crossTrack,
		adminTracks: adminTracks,
	}
}

// Allowed reports whether a user on the given track may access courses of the
// given subject. An empty track or subject means no restriction. Admin tracks
// always pass. A subject matching no category at all falls into the catch-all
// category, open to every track.
func (p *Policy) Allowed(userTrack, courseSubject string) bool {
	track := normalize(userTrack)
	subject := normalize(courseSubject)

	if track == "" || subject == "" {
		return true
	}
	if p.adminTracks[track] {
		return true
	}
	for _, kw := range p.crossTrack {
		if keywordMatches(subject, kw) {
			return true
		}
	}
	for _, kw := range p.keywordsFor(track) {
		if keywordMatches(subject, kw) {
			return true
		}
	}
	return p.CategoryFor(courseSubject) == CatchAllCategory
}

// CategoryFor returns the track category a subject belongs to, or the
// catch-all category when nothing matches.
func (p *Policy) CategoryFor(courseSubject string) string {
	subject := normalize(courseSubject)
	if subject == "" {
		return CatchAllCategory
	}
	for track, keywords := range p.tracks {
		for _, kw := range keywords {
			if keywordMatches(subject, kw) {
				return track
			}
		}
	}
	return CatchAllCategory
}

// keywordsFor resolves the keyword list for a track, tolerating loose track
// naming the same way subjects are tolerated ("curso de programacao" still
// resolves to the programming list).
func (p *Policy) keywordsFor(track string) []string {
	if kws, ok := p.tracks[track]; ok {
		return kws
	}
	for name, kws := range p.tracks {
		if keywordMatches(track, name) {
			return kws
		}
	}
	return nil
}

// keywordMatches applies bidirectional substring containment: the subject may
// contain the keyword or the keyword may contain the subject.
func keywordMatches(subject, keyword string) bool {
	kw := normalize(keyword)
	if subject == "" || kw == "" {
		return false
	}
	return strings.Contains(subject, kw) || strings.Contains(kw, subject)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
