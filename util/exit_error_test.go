package util

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestExitErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	ee := ExitError{Class: SetupFailure, Err: errors.Wrap(inner, "opening capture")}

	assert.True(t, errors.Is(ee, inner))
	assert.Equal(t, "opening capture: boom", ee.Error())
	assert.Equal(t, 1, ee.ExitCode())
}

func TestExitErrorClassRecoverable(t *testing.T) {
	err := error(ExitError{Class: ExhaustionFailure, Err: errors.New("out of descriptors")})

	var ee ExitError
	assert.True(t, errors.As(err, &ee))
	assert.Equal(t, ExhaustionFailure, ee.Class)
	assert.Equal(t, "resource exhaustion", ee.Class.String())
}
