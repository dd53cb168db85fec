package text

import "strings"

// ShapeForSynthesis applies the fixed text-shaping rule imposed before every
// synthesis call to stabilize the model's prosody: the text must start with a
// space and end with ". ", is lower-cased, and has its numeric runs expanded.
// The steps run in exactly this order; the boundary punctuation is added
// before lowering so the normalizer sees the final token layout.
func ShapeForSynthesis(genText string, normalizer *NumberNormalizer) string {
	if !strings.HasPrefix(genText, " ") {
		genText = " " + genText
	}
	if !strings.HasSuffix(genText, ". ") {
		genText += ". "
	}
	genText = strings.ToLower(genText)
	return normalizer.Normalize(genText)
}
