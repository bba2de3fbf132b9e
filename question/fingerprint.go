package question

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultFingerprintDim is the vector size used when none is configured.
const DefaultFingerprintDim = 256

// Fold lower-cases s and strips diacritics: "Regulação" becomes "regulacao".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// tokens splits folded text into words of letters and digits.
func tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Fingerprint hashes the words and word bigrams of text into an
// L2-normalised vector of size dim. Questions that reuse the same wording
// across exams end up close in cosine distance. Empty text yields a zero
// vector.
func Fingerprint(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultFingerprintDim
	}
	vec := make([]float32, dim)

	words := tokens(text)
	add := func(feature string, weight float32) {
		h := fnv.New32a()
		h.Write([]byte(feature))
		sum := h.Sum32()
		idx := int(sum % uint32(dim))
		// The top bit picks the sign so collisions tend to cancel out.
		if sum&0x80000000 != 0 {
			weight = -weight
		}
		vec[idx] += weight
	}
	for i, w := range words {
		if len([]rune(w)) < 2 {
			continue
		}
		add(w, 1)
		if i+1 < len(words) {
			add(w+" "+words[i+1], 0.5)
		}
	}

	var norm2 float64
	for _, v := range vec {
		norm2 += float64(v) * float64(v)
	}
	if norm2 == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm2))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// Cosine returns the cosine similarity of two vectors of equal length.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
