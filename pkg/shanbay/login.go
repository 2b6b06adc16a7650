package shanbay

import (
	"net/http"
	"strings"
)

// LoginURL is where a user signs in with a browser to obtain the cookie.
const LoginURL = "https://web.shanbay.com/web/account/login/"

// AuthCookie is the cookie set only for a signed-in session.
const AuthCookie = "auth_token"

// IsLoginCookie is the credential predicate handed to the login flow: a
// captured cookie is usable once it carries the auth token. The page content
// is not inspected.
func IsLoginCookie(cookies map[string]string, _ string) bool {
	_, ok := cookies[AuthCookie]
	return ok
}

// ParseCookieHeader turns a browser "Cookie:" header value into a map.
// Malformed pairs are ignored.
func ParseCookieHeader(header string) map[string]string {
	header = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "Cookie:"))
	out := make(map[string]string)
	cookies, err := http.ParseCookie(header)
	if err != nil {
		// fall back to a lenient split so one bad pair does not drop the rest
		for _, part := range strings.Split(header, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok || name == "" {
				continue
			}
			out[name] = value
		}
		return out
	}
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out
}
