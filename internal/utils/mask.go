package utils

// MaskSecret redacts a credential for logging, keeping a short prefix so
// two secrets can still be told apart. Empty stays empty.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
