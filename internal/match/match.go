// Package match decides which tracked session an incoming event belongs to.
//
// Two rules exist. RoutesToScene decides whether a zone reacts visually and
// may accept several sessions for one event. AttributesTo picks the single
// session an event is credited to in the activity feed and refuses a
// directory-only match when another session owns the event's id.
package match

import "github.com/agent-racer/hexboard/internal/client"

// RoutesToScene reports whether s's zone should react to ev: the event
// carries s's external identity, or it carries a working directory equal to
// s's. There is no uniqueness check.
func RoutesToScene(ev client.SessionEvent, s client.SessionSnapshot) bool {
	if s.ExternalID != "" && ev.SessionID == s.ExternalID {
		return true
	}
	return ev.Cwd != "" && ev.Cwd == s.Cwd
}

// AttributesTo reports whether ev belongs to target among all sessions.
//
//  1. ev.SessionID equal to target.ID matches.
//  2. A target with an external identity matches only on that identity.
//  3. Otherwise the working directories must be equal.
//  4. A directory match is refused when ev.SessionID is the external
//     identity of some other session in all.
func AttributesTo(ev client.SessionEvent, target client.SessionSnapshot, all []client.SessionSnapshot) bool {
	if ev.SessionID == target.ID {
		return true
	}
	if target.ExternalID != "" {
		return ev.SessionID == target.ExternalID
	}
	if ev.Cwd == "" || ev.Cwd != target.Cwd {
		return false
	}
	for _, other := range all {
		if other.ID == target.ID || other.ExternalID == "" {
			continue
		}
		if other.ExternalID == ev.SessionID {
			return false
		}
	}
	return true
}

// Attribute returns the first session in all that ev is attributed to.
func Attribute(ev client.SessionEvent, all []client.SessionSnapshot) (client.SessionSnapshot, bool) {
	for _, s := range all {
		if AttributesTo(ev, s, all) {
			return s, true
		}
	}
	return client.SessionSnapshot{}, false
}
