package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// Path returns the absolute path of a file under testdata/.
func Path(name string) string {
	_, currentFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(currentFile), "testdata", name)
}

// ReadFile returns the contents of a file under testdata/ and fails the test if
// it cannot be read.
func ReadFile(t testing.TB, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(Path(name))
	require.NoError(t, err)
	return data
}
