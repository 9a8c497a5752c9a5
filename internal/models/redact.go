package models

import "strings"

// Redact returns the record as viewerID may see it. Other users' email
// addresses are masked; everything else is returned unchanged.
func Redact(r Record, viewerID string) Record {
	u, ok := r.(*User)
	if !ok || u.ID == viewerID {
		return r
	}
	masked := u.Clone()
	masked.Email = MaskEmail(u.Email)
	return masked
}

// MaskEmail keeps up to three leading characters of the local part and the
// whole domain.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return email
	}
	runes := []rune(local)
	length := len(runes)
	visible := 1
	if length > 2 {
		visible = length / 2
		if visible > 3 {
			visible = 3
		}
	}
	if visible > length {
		visible = length
	}
	return string(runes[:visible]) + strings.Repeat("*", length-visible) + "@" + domain
}
