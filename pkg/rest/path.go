package rest

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPrefix is the path prefix lookups are served under.
const DefaultPrefix = "/api"

// Lookup is a request parsed into its target table and filters.
type Lookup struct {
	Database string
	Table    string
	Options  QueryOptions
}

// ParseRequest parses a lookup request. Only GET is accepted; the escaped
// form of the URL path is parsed so that an encoded slash inside a value
// never acts as a separator.
func ParseRequest(r *http.Request, prefix string) (Lookup, error) {
	if r.Method != http.MethodGet {
		return Lookup{}, fmt.Errorf("%w: method %s", ErrRouteMismatch, r.Method)
	}
	return ParsePath(prefix, r.URL.EscapedPath())
}

// ParsePath parses an escaped path of the form
//
//	<prefix>/<database>/<table>(/<field>/<is|matches>/<value>)*(/limit/<digits>)?
//
// The path is split on literal slashes first and every segment is then
// percent-decoded on its own. Database and table names are restricted to
// ASCII word characters. Any other shape is ErrRouteMismatch.
func ParsePath(prefix, escapedPath string) (Lookup, error) {
	prefix = strings.TrimSuffix(prefix, "/")
	rest, ok := strings.CutPrefix(escapedPath, prefix+"/")
	if !ok {
		return Lookup{}, mismatch("missing prefix %q", prefix)
	}

	segments := strings.Split(rest, "/")
	if len(segments) < 2 {
		return Lookup{}, mismatch("missing database or table")
	}
	if !isWord(segments[0]) || !isWord(segments[1]) {
		return Lookup{}, mismatch("invalid database or table name")
	}

	lookup := Lookup{
		Database: segments[0],
		Table:    segments[1],
		Options:  NewQueryOptions(),
	}

	for i := 2; i < len(segments); {
		remaining := len(segments) - i

		if remaining >= 3 {
			op, ok := pathOperator(segments[i+1])
			if !ok {
				return Lookup{}, mismatch("unknown operator %q", segments[i+1])
			}
			field, err := decodeSegment(segments[i])
			if err != nil {
				return Lookup{}, err
			}
			value, err := decodeSegment(segments[i+2])
			if err != nil {
				return Lookup{}, err
			}
			lookup.Options.Add(Condition{Field: field, Operator: op, Value: value})
			i += 3
			continue
		}

		if remaining == 2 && segments[i] == "limit" && isDigits(segments[i+1]) {
			n, err := strconv.Atoi(segments[i+1])
			if err != nil {
				return Lookup{}, mismatch("limit %q out of range", segments[i+1])
			}
			lookup.Options.SetLimit(n)
			break
		}

		return Lookup{}, mismatch("unexpected trailing segments %q", strings.Join(segments[i:], "/"))
	}

	return lookup, nil
}

// pathOperator maps the operator tokens of the path grammar. OpContains has
// no path token.
func pathOperator(token string) (Operator, bool) {
	switch token {
	case "is":
		return OpEquals, true
	case "matches":
		return OpMatches, true
	default:
		return 0, false
	}
}

func decodeSegment(segment string) (string, error) {
	if segment == "" {
		return "", mismatch("empty segment")
	}
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRouteMismatch, err)
	}
	return decoded, nil
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '_' && (c < '0' || c > '9') && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrRouteMismatch}, args...)...)
}
