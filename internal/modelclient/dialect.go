package modelclient

import "strings"

// Dialect identifies which of the two wire shapes (spec.md §4.2) a model
// identifier speaks.
type Dialect int

const (
	// DialectA is the legacy Anthropic Messages API shape: a flat
	// messages array with string content and a top-level system string.
	// Reached directly against the Anthropic API.
	DialectA Dialect = iota
	// DialectB is the structured shape used by AWS Bedrock's Converse
	// API: content is a list of typed blocks and inference parameters
	// are nested under inferenceConfig.
	DialectB
)

func (d Dialect) String() string {
	if d == DialectB {
		return "dialect-b"
	}
	return "dialect-a"
}

// DetectDialect infers the wire dialect from a model identifier.
// Bedrock identifiers are either full ARNs (cross-region or custom
// inference profiles) or bare Bedrock model ids, which always carry a
// colon-delimited version suffix (e.g. "anthropic.claude-3-5-sonnet-
// 20241022-v2:0", "us.anthropic.claude-3-haiku-20240307-v1:0"). Direct
// Anthropic model ids never contain a colon ("claude-3-5-sonnet-
// 20241022"). That distinction is what the client keys dialect
// detection off of.
func DetectDialect(modelID string) Dialect {
	if strings.HasPrefix(modelID, "arn:") {
		return DialectB
	}
	if strings.Contains(modelID, ":") {
		return DialectB
	}
	return DialectA
}
