package candidate

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

var sqlFenceRe = regexp.MustCompile("(?s)```sql\\s*\\n(.*?)\\n```")

// ParseResponse accepts either output contract variant:
// a JSON object with a rewrite_sets array, or a single fenced SQL block,
// which is normalized into one synthetic RewriteSet named "default".
func ParseResponse(raw string) (types.LLMRewriteResponse, error) {
	trimmed := strings.TrimSpace(raw)

	var asJSON types.LLMRewriteResponse
	if looksLikeJSON(trimmed) {
		if err := json.Unmarshal([]byte(stripJSONFence(trimmed)), &asJSON); err == nil && len(asJSON.RewriteSets) > 0 {
			return asJSON, nil
		}
	}

	if m := sqlFenceRe.FindStringSubmatch(raw); m != nil {
		sql := strings.TrimSpace(m[1])
		return types.LLMRewriteResponse{
			RewriteSets: []types.RewriteSet{{
				ID:        "default",
				Transform: "unspecified",
				Nodes:     map[string]string{"default": sql},
			}},
		}, nil
	}

	return types.LLMRewriteResponse{}, types.NewError(types.ErrLLMFormat, "candidate.ParseResponse",
		errNotRecognized)
}

var errNotRecognized = jsonFormatErr("response matched neither the JSON rewrite_sets contract nor a fenced SQL block")

type jsonFormatErr string

func (e jsonFormatErr) Error() string { return string(e) }

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(stripJSONFence(s), "{")
}

func stripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// PrimarySQL returns the rewrite set's top-level SQL text: the "default"
// node if present, else the lexicographically first node name, so
// candidate selection stays deterministic over map iteration.
func PrimarySQL(resp types.LLMRewriteResponse) (string, bool) {
	if len(resp.RewriteSets) == 0 {
		return "", false
	}
	rs := resp.RewriteSets[0]
	if len(rs.Nodes) == 0 {
		return "", false
	}
	if sql, ok := rs.Nodes["default"]; ok {
		return sql, true
	}
	names := make([]string, 0, len(rs.Nodes))
	for name := range rs.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return rs.Nodes[names[0]], true
}
