package remote

// Paths of the remote lookup API, relative to Client.BaseURL.
const (
	PathLogin = "/login"
	PathMe    = "/me"

	PathFingerprintMatch = "/fingerprint-match"
	PathFaceMatch        = "/face-match"
)
