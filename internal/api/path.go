package api

import "strings"

// CanonicalPath folds case and drops one trailing slash, so "/Api/Info/" and
// "/api/info" name the same route. A second trailing slash is kept and
// therefore never matches.
func CanonicalPath(path string) string {
	path = strings.ToLower(path)
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}
