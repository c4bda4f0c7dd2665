package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// DefaultHashDimensions matches the width of small sentence-embedding models.
const DefaultHashDimensions = 384

const bigramWeight = 0.5

// HashEngine embeds text by feature hashing. Each lowercased word and each
// adjacent word pair is hashed with FNV-1a into a signed bucket, and the
// result is L2-normalized. Texts sharing vocabulary score high under cosine
// similarity. It is deterministic and needs no network.
type HashEngine struct {
	dims int
}

// NewHashEngine returns a hash engine. dims <= 0 selects
// DefaultHashDimensions.
func NewHashEngine(dims int) *HashEngine {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEngine{dims: dims}
}

// Embed never fails except on a cancelled context.
func (e *HashEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashEngine) Dimensions() int { return e.dims }

func (e *HashEngine) Name() string { return "hash:" + strconv.Itoa(e.dims) }

func (e *HashEngine) vector(text string) []float32 {
	vec := make([]float64, e.dims)
	words := Tokenize(text)

	for i, w := range words {
		e.add(vec, w, 1)
		if i > 0 {
			e.add(vec, words[i-1]+" "+w, bigramWeight)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, e.dims)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (e *HashEngine) add(vec []float64, feature string, weight float64) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum32()

	idx := int(sum % uint32(e.dims))
	if sum&(1<<31) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// Tokenize splits text into lowercased runs of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
