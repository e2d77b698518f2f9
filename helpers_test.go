package kiln_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kilnhq/kiln/pkg/storage"
)

func newTempStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	ts, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return ts
}
