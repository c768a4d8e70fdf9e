package reference

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/graphbank/backoffice/internal/models"
)

// Prefix precedes the 8 uppercase alphanumeric characters of every
// transaction reference.
const Prefix = "TXN-"

// DefaultMaxRetries caps the collision-check loop. Collisions on an
// 8-character candidate space are negligible in practice, but an unbounded
// loop is not an acceptable contract.
const DefaultMaxRetries = 10

// Checker answers whether a candidate reference is already taken.
// The transaction store satisfies it.
type Checker interface {
	ExistsByReference(ctx context.Context, reference string) (bool, error)
}

// Generator produces collision-checked unique transaction references.
type Generator struct {
	checker    Checker
	maxRetries int
}

func NewGenerator(checker Checker, maxRetries int) *Generator {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Generator{checker: checker, maxRetries: maxRetries}
}

// Generate returns a free reference in the form TXN-XXXXXXXX. It retries up
// to the configured cap and returns ErrReferenceExhausted beyond it.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		candidate := newCandidate()
		taken, err := g.checker.ExistsByReference(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check reference %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free reference after %d attempts: %w", g.maxRetries, models.ErrReferenceExhausted)
}

func newCandidate() string {
	return Prefix + strings.ToUpper(uuid.NewString()[:8])
}
