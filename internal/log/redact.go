package log

import (
	"regexp"
	"strings"
)

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// secretNames are attribute keys that are masked outright. Most are header
// names imgfetch sends from the per-host configuration.
var secretNames = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"cookie":              {},
	"set-cookie":          {},
	"x-api-key":           {},
	"x-auth-token":        {},
	"api_key":             {},
	"apikey":              {},
	"sid":                 {},
	"userinfo":            {},
}

// secretKeywords mask any key containing them. "key" is not one of them:
// it would hit "cache_key" and friends.
var secretKeywords = []string{
	"password", "passwd", "secret", "token", "auth",
	"credential", "private", "cookie", "session",
}

// credentialValues match values that are credentials whatever their key.
// A SHA-256 fingerprint must not match any of them.
var credentialValues = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`), // JWT
	regexp.MustCompile(`(?i)^(bearer|token)\s+\S+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	regexp.MustCompile(`^(AKIA|ASIA)[0-9A-Z]{16}$`),
	regexp.MustCompile(`(?i)-----BEGIN [A-Z ]*(PRIVATE|SECRET) KEY-----`),
}

// urlPassword matches "scheme://user:password@" in proxy and image URLs.
var urlPassword = regexp.MustCompile(`([A-Za-z][A-Za-z0-9+.-]*://[^/\s:@]+):[^/\s@]+@`)

// signedParam matches query parameters of presigned or tokenized image URLs.
var signedParam = regexp.MustCompile(
	`(?i)([?&](?:token|access_token|api_key|apikey|key|sig|signature|x-amz-signature|x-amz-credential|x-amz-security-token)=)[^&#\s"]+`,
)

// RedactURLs masks URL passwords and credential-bearing query parameters
// anywhere in s. Hosts and paths are kept so logs stay useful.
func RedactURLs(s string) string {
	if !strings.Contains(s, "://") && !strings.Contains(s, "=") {
		return s
	}
	s = urlPassword.ReplaceAllString(s, "${1}:"+MaskValue+"@")
	return signedParam.ReplaceAllString(s, "${1}"+MaskValue)
}

// isSecretKey reports whether values under key are always masked.
func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	if _, ok := secretNames[key]; ok {
		return true
	}
	return containsSensitiveKeyword(key)
}

// containsSensitiveKeyword reports whether a lowercase key contains one of
// secretKeywords.
func containsSensitiveKeyword(key string) bool {
	for _, kw := range secretKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

// isSensitiveValue reports whether value looks like a credential.
func isSensitiveValue(value string) bool {
	for _, re := range credentialValues {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}
