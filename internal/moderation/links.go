package moderation

import (
	"regexp"
	"strings"
)

// urlPattern is deliberately permissive. Anything that looks like a scheme,
// a www. prefix or a dotted hostname is a candidate; bare hostnames are then
// confirmed against the TLD list to keep "v1.2" and filenames out.
var urlPattern = regexp.MustCompile(`(?i)(?:https?://\S+|www\.\S+|\b[a-z0-9][a-z0-9._-]*\.([a-z]{2,12})\b(?:/\S*)?)`)

var knownTLDs = map[string]struct{}{
	"com": {}, "net": {}, "org": {}, "br": {}, "io": {}, "gg": {},
	"me": {}, "ly": {}, "tv": {}, "app": {}, "dev": {}, "xyz": {},
	"info": {}, "biz": {}, "online": {}, "site": {}, "store": {},
	"club": {}, "live": {}, "cloud": {}, "link": {}, "chat": {},
	"co": {}, "us": {}, "uk": {}, "pt": {}, "es": {}, "top": {},
	"shop": {}, "vip": {}, "fun": {}, "icu": {}, "pro": {},
}

const inviteLinkHost = "chat.whatsapp.com"

// LinkCandidates extracts every URL-looking token from text, normalized for
// comparison (scheme stripped, lowercased).
func LinkCandidates(text string) []string {
	var candidates []string
	for _, match := range urlPattern.FindAllStringSubmatch(text, -1) {
		full := strings.ToLower(match[0])
		scheme := strings.HasPrefix(full, "http://") || strings.HasPrefix(full, "https://") || strings.HasPrefix(full, "www.")
		if !scheme {
			if _, ok := knownTLDs[match[1]]; !ok {
				continue
			}
		}
		candidates = append(candidates, NormalizeLink(full))
	}
	return candidates
}

// ContainsLink reports whether text carries anything resembling a URL.
func ContainsLink(text string) bool {
	return len(LinkCandidates(text)) > 0
}

// ContainsInviteLink reports whether text carries a WhatsApp group invite
// link. Invite links are the worst offenders and get named in the removal
// notice.
func ContainsInviteLink(text string) bool {
	return strings.Contains(strings.ToLower(text), inviteLinkHost)
}

// NormalizeLink strips the scheme and trailing punctuation and lowercases,
// so a pasted link compares equal to the canonical one.
func NormalizeLink(link string) string {
	link = strings.ToLower(strings.TrimSpace(link))
	link = strings.TrimPrefix(link, "https://")
	link = strings.TrimPrefix(link, "http://")
	return strings.TrimRight(link, ".,;:!?)")
}
