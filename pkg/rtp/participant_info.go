package rtp

import "github.com/pion/rtcp"

// ParticipantInfo is the immutable-identity metadata of a participant,
// updated piecewise from SDES chunks. Grounded on the teacher's
// RemoteSource.UpdateFromSDES (source_manager.go) generalized to cover
// every SDES item kind spec.md §4.A names, plus the PRIV catch-all the
// Java ancestor's uniform SdesChunkItems handling implies.
type ParticipantInfo struct {
	SSRC     uint32
	CNAME    string
	Name     string
	Email    string
	Phone    string
	Location string
	Tool     string
	Note     string
	// extra holds PRIV items keyed by their prefix; spec.md's record
	// doesn't name a field for these, so they are not treated as part
	// of the "changed" disjunction below.
	extra map[string]string
}

// updateFromSdesChunk applies each item present in chunk, returning true
// iff any named field's value changed. CNAME, once set to a non-empty
// value, is never cleared by a later chunk lacking it.
func (pi *ParticipantInfo) updateFromSdesChunk(items []rtcp.SourceDescriptionItem) bool {
	changed := false
	for _, item := range items {
		switch item.Type {
		case rtcp.SDESCNAME:
			if item.Text != "" && pi.CNAME != item.Text {
				pi.CNAME = item.Text
				changed = true
			}
		case rtcp.SDESName:
			if pi.Name != item.Text {
				pi.Name = item.Text
				changed = true
			}
		case rtcp.SDESEmail:
			if pi.Email != item.Text {
				pi.Email = item.Text
				changed = true
			}
		case rtcp.SDESPhone:
			if pi.Phone != item.Text {
				pi.Phone = item.Text
				changed = true
			}
		case rtcp.SDESLocation:
			if pi.Location != item.Text {
				pi.Location = item.Text
				changed = true
			}
		case rtcp.SDESTool:
			if pi.Tool != item.Text {
				pi.Tool = item.Text
				changed = true
			}
		case rtcp.SDESNote:
			if pi.Note != item.Text {
				pi.Note = item.Text
				changed = true
			}
		case rtcp.SDESPrivate:
			prefix, value := splitPrivItem(item.Text)
			if pi.extra == nil {
				pi.extra = make(map[string]string)
			}
			pi.extra[prefix] = value
		}
	}
	return changed
}

// splitPrivItem decodes an SDES PRIV item's RFC 3550 §6.5 sub-encoding:
// a one-byte prefix length, the prefix itself, then the value. A prefix
// length byte missing or claiming more bytes than text holds is treated
// as an unprefixed item rather than rejected.
func splitPrivItem(text string) (prefix, value string) {
	if text == "" {
		return "", ""
	}
	prefixLen := int(text[0])
	if 1+prefixLen > len(text) {
		return "", text
	}
	return text[1 : 1+prefixLen], text[1+prefixLen:]
}

// Extra returns the value recorded for a PRIV item with the given
// prefix (RFC 3550 §6.5), and whether one was seen.
func (pi *ParticipantInfo) Extra(prefix string) (string, bool) {
	if pi.extra == nil {
		return "", false
	}
	v, ok := pi.extra[prefix]
	return v, ok
}
