package evidence

import "strings"

// MatchesKeyword reports whether the post text contains the keyword,
// case-insensitively. "$Broke" matches "I love $broke coin".
func MatchesKeyword(text, keyword string) bool {
	if keyword == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

// StatusID extracts the numeric status id from a post URL, or "" when the
// URL carries none. Trailing path segments (/photo/1) and query strings are
// ignored.
func StatusID(url string) string {
	idx := strings.Index(url, "/status/")
	if idx < 0 {
		return ""
	}
	rest := url[idx+len("/status/"):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	return rest[:end]
}

// SamePost reports whether two URLs resolve to the same post identity.
// Status ids are compared when both URLs carry one; otherwise it falls
// back to substring containment.
func SamePost(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	idA, idB := StatusID(a), StatusID(b)
	if idA != "" && idB != "" {
		return idA == idB
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// absoluteURL resolves a relative href scraped from the timeline against
// the X origin.
func absoluteURL(href string) string {
	if strings.HasPrefix(href, "/") {
		return "https://x.com" + href
	}
	return href
}
