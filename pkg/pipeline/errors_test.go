package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"
)

func TestStepErrors(t *testing.T) {
	t.Parallel()

	se := &stepErrors{}
	assert.NoError(t, se.combined())

	var wg sync.WaitGroup
	for _, name := range []string{"step 1", "step 2"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			se.add(name, assert.AnError)
		}(name)
	}
	wg.Wait()

	err := se.combined()
	assert.Len(t, multierr.Errors(err), 2)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "step 1: ")
	assert.Contains(t, err.Error(), "step 2: ")
}
