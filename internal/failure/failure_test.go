package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	cause := errors.New("deadline exceeded")
	assert.Equal(t, "flows.AnalyzeProduct: generation failure: model call failed: deadline exceeded",
		Generationf("flows.AnalyzeProduct", cause, "model call failed").Error())
	assert.Equal(t, "validation failure: query must not be blank",
		Validationf("", "query must not be blank").Error())
	assert.Equal(t, "db: persistence failure: disk full",
		Persistencef("db", errors.New("disk full"), "").Error())
}

func TestKindMatching(t *testing.T) {
	cause := errors.New("NotAllowedError")
	err := fmt.Errorf("scan: %w", DeviceAccessf("scan.Enter", cause, "camera access denied"))

	assert.ErrorIs(t, err, ErrDeviceAccess)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, DeviceAccess, KindOf(err))
	assert.Equal(t, Unknown, KindOf(cause))
	assert.Equal(t, "device_access", KindOf(err).String())

	// A non-sentinel target must match exactly.
	other := Validationf("op", "x")
	assert.NotErrorIs(t, Validationf("op", "y"), other)
}
