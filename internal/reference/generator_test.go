package reference

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphbank/backoffice/internal/models"
)

type fakeChecker struct {
	taken    map[string]bool
	alwaysOn bool
	err      error
	calls    int
}

func (f *fakeChecker) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.alwaysOn {
		return true, nil
	}
	return f.taken[reference], nil
}

var referencePattern = regexp.MustCompile(`^TXN-[A-Z0-9]{8}$`)

func TestGenerateFormat(t *testing.T) {
	g := NewGenerator(&fakeChecker{}, 0)

	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		ref, err := g.Generate(context.Background())
		require.NoError(t, err)
		assert.Regexp(t, referencePattern, ref)
		assert.False(t, seen[ref], "reference %s produced twice", ref)
		seen[ref] = true
	}
}

func TestGenerateSkipsTakenReferences(t *testing.T) {
	checker := &fakeChecker{taken: map[string]bool{}}
	g := NewGenerator(checker, 5)

	ref, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, referencePattern, ref)
	assert.Equal(t, 1, checker.calls)
}

func TestGenerateExhaustion(t *testing.T) {
	checker := &fakeChecker{alwaysOn: true}
	g := NewGenerator(checker, 3)

	_, err := g.Generate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrReferenceExhausted)
	assert.Equal(t, 3, checker.calls)
}

func TestGeneratePropagatesCheckerError(t *testing.T) {
	boom := errors.New("store down")
	g := NewGenerator(&fakeChecker{err: boom}, 5)

	_, err := g.Generate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, models.ErrReferenceExhausted)
}

func TestNewGeneratorDefaultsRetryCap(t *testing.T) {
	g := NewGenerator(&fakeChecker{alwaysOn: true}, -1)

	_, err := g.Generate(context.Background())
	require.ErrorIs(t, err, models.ErrReferenceExhausted)
	assert.Equal(t, DefaultMaxRetries, g.maxRetries)
}
