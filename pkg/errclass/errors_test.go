package errclass_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/muxos/muxos-helper/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelperError_ErrorWithoutMessage(t *testing.T) {
	err := &errclass.HelperError{Code: "E_TEST"}
	assert.Equal(t, "E_TEST", err.Error())
}

func TestHelperError_ErrorIsMessageVerbatim(t *testing.T) {
	err := errclass.ErrUnknownUpdate.WithMessage("unknown update id")
	assert.Equal(t, "unknown update id", err.Error())
}

func TestHelperError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("install: %w", errclass.ErrTransport.WithMessagef("HTTP %d", 404))
	require.True(t, errors.Is(err, errclass.ErrTransport))
	require.False(t, errors.Is(err, errclass.ErrIntegrity))
	require.False(t, errors.Is(err, errors.New("E_TRANSPORT")))
}

func TestHelperError_WithMessageKeepsExit(t *testing.T) {
	err := errclass.ErrPrivilege.WithMessage("must run as root")
	assert.Equal(t, errclass.ErrPrivilege.Exit, err.Exit)
	assert.Equal(t, "E_PRIVILEGE", err.Code)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, errclass.ExitCode(nil))
	assert.Equal(t, 1, errclass.ExitCode(errors.New("plain")))
	assert.Equal(t, 2, errclass.ExitCode(errclass.ErrInvalidRequest.WithMessage("bad")))
	assert.Equal(t, 2, errclass.ExitCode(fmt.Errorf("wrap: %w", errclass.ErrPrivilege)))
	assert.Equal(t, 1, errclass.ExitCode(errclass.ErrScript.WithMessage("exit 3")))
}

func TestCode(t *testing.T) {
	assert.Equal(t, "", errclass.Code(errors.New("plain")))
	assert.Equal(t, "E_PARTIAL_BATCH", errclass.Code(fmt.Errorf("x: %w", errclass.ErrPartialBatch)))
}
