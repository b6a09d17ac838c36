package service

import "strings"

// Directory maps institution codes to the counsellor notified of alerts.
type Directory struct {
	byInstitution map[string]string
}

// NewDirectory copies entries; keys are matched case-insensitively.
func NewDirectory(entries map[string]string) *Directory {
	d := &Directory{byInstitution: make(map[string]string, len(entries))}
	for inst, counsellor := range entries {
		d.byInstitution[strings.ToUpper(strings.TrimSpace(inst))] = strings.TrimSpace(counsellor)
	}
	return d
}

// CounsellorFor returns the counsellor for an institution, or "".
func (d *Directory) CounsellorFor(institutionCode string) string {
	if d == nil || institutionCode == "" {
		return ""
	}
	return d.byInstitution[strings.ToUpper(strings.TrimSpace(institutionCode))]
}
