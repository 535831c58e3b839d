// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// Golden returns the contents of testdata/<name>, failing the test if it
// cannot be read.
func Golden(t testing.TB, name string) []byte {
	t.Helper()

	_, currentFile, _, _ := runtime.Caller(0)
	data, err := os.ReadFile(filepath.Join(filepath.Dir(currentFile), "testdata", name))
	if err != nil {
		t.Fatalf("golden file %s: %v", name, err)
	}
	return data
}

// LoadJSON decodes testdata/<name> into target.
func LoadJSON(t testing.TB, name string, target any) {
	t.Helper()

	if err := json.Unmarshal(Golden(t, name), target); err != nil {
		t.Fatalf("golden file %s: %v", name, err)
	}
}
