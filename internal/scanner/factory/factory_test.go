package factory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varalys/diego/pkg/die"
	"github.com/varalys/diego/pkg/die/dietest"
)

func TestNewLoadsDatabaseOnce(t *testing.T) {
	stub := dietest.New()
	s, err := New(Config{Database: "/opt/db", Native: stub})
	require.NoError(t, err)
	assert.Equal(t, "/opt/db", s.Database())

	calls := stub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "load database", calls[0].Op)
	assert.Equal(t, "/opt/db", calls[0].Path)
}

func TestNewWithoutDatabase(t *testing.T) {
	stub := dietest.New()
	s, err := New(Config{Native: stub})
	require.NoError(t, err)
	assert.Equal(t, "", s.Database())
	assert.Empty(t, stub.Calls())
}

func TestNewDatabaseFailure(t *testing.T) {
	stub := dietest.New()
	stub.LoadStatus = 3
	_, err := New(Config{Database: "/missing", Native: stub})
	require.Error(t, err)
	var ee *die.EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, int32(3), ee.Code)
}
