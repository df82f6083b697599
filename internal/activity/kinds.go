package activity

import "github.com/biofugitive/fieldcache/pkg/schema"

// Kind names a category of user action. Callers may pass kinds outside the
// table below; they get the fallback defaults.
type Kind string

const (
	KindScanSuccess      Kind = "SCAN_SUCCESS"
	KindScanFailed       Kind = "SCAN_FAILED"
	KindMatchFound       Kind = "MATCH_FOUND"
	KindNoMatch          Kind = "NO_MATCH"
	KindDocumentViewed   Kind = "DOCUMENT_VIEWED"
	KindLogin            Kind = "LOGIN"
	KindLogout           Kind = "LOGOUT"
	KindForensicAnalysis Kind = "FORENSIC_ANALYSIS"
	KindCameraAccess     Kind = "CAMERA_ACCESS"
	KindSearchPerformed  Kind = "SEARCH_PERFORMED"
)

// FallbackMessage is used for unknown kinds without a message override.
const FallbackMessage = "Activity recorded"

// Info is the display default of a kind.
type Info struct {
	Type    string       `json:"type"`
	Message string       `json:"message"`
	Color   schema.Color `json:"color"`
}

var kindTable = map[Kind]Info{
	KindScanSuccess:      {"scan_success", "Fingerprint scanned successfully", schema.ColorSuccess},
	KindScanFailed:       {"scan_failed", "Scan failed - Please retry", schema.ColorDanger},
	KindMatchFound:       {"match_found", "Match found in database", schema.ColorSuccess},
	KindNoMatch:          {"no_match", "No match found", schema.ColorWarning},
	KindDocumentViewed:   {"document_viewed", "Person record viewed", schema.ColorPrimary},
	KindLogin:            {"login", "Logged in successfully", schema.ColorSuccess},
	KindLogout:           {"logout", "Logged out", schema.ColorWarning},
	KindForensicAnalysis: {"forensic_analysis", "Forensic analysis started", schema.ColorInfo},
	KindCameraAccess:     {"camera_access", "Camera accessed for scanning", schema.ColorPrimary},
	KindSearchPerformed:  {"search_performed", "Search performed", schema.ColorInfo},
}

// Describe returns the defaults for kind. Unknown kinds keep their name as
// the type and report ok=false.
func Describe(kind Kind) (info Info, ok bool) {
	if info, ok := kindTable[kind]; ok {
		return info, true
	}
	return Info{Type: string(kind), Message: FallbackMessage, Color: schema.ColorPrimary}, false
}

// Kinds returns the known kinds and their defaults.
func Kinds() map[Kind]Info {
	out := make(map[Kind]Info, len(kindTable))
	for k, v := range kindTable {
		out[k] = v
	}
	return out
}
