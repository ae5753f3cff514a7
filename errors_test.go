package streamrt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_ErrorString(t *testing.T) {
	err := newError(ErrXStreamState, "Start", "xstream is not CREATED")
	require.Equal(t, "streamrt: Start: invalid xstream state: xstream is not CREATED", err.Error())
}

func TestKindOf(t *testing.T) {
	require.Equal(t, Success, KindOf(nil))
	require.Equal(t, ErrInvalidPool, KindOf(newError(ErrInvalidPool, "MigrateTo", "nil target pool")))
	require.Equal(t, ErrorKind(-1), KindOf(errUnrelated{}))
}

type errUnrelated struct{}

func (errUnrelated) Error() string { return "not a streamrt error" }
