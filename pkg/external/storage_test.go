package external

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestLocalReferenceStore_Save(t *testing.T) {
	root := t.TempDir()
	store := NewLocalReferenceStore(root)

	files := []ReferenceUpload{
		{Filename: "front.PNG", ContentType: "image/png", Data: strings.NewReader("one")},
		{Filename: "notes.txt", ContentType: "text/plain", Data: strings.NewReader("skip")},
		{Filename: "side", ContentType: "image/jpeg", Data: strings.NewReader("three")},
		{Filename: "rear.jpg", ContentType: "image/jpeg", Data: strings.NewReader("four")},
	}

	paths, err := store.Save(context.Background(), "a1", "BYD", "SEAL", files)

	assert.Equal(t, nil, err)
	assert.Equal(t, []string{
		filepath.Join(root, "reference", "a1", "BYD", "SEAL", "ref_1.png"),
		filepath.Join(root, "reference", "a1", "BYD", "SEAL", "ref_3.jpg"),
	}, paths)

	data, err := os.ReadFile(paths[1])
	assert.Equal(t, nil, err)
	assert.Equal(t, "three", string(data))
}

func TestLocalReferenceStore_SanitizesPaths(t *testing.T) {
	root := t.TempDir()
	store := NewLocalReferenceStore(root)

	paths, err := store.Save(context.Background(), "a1", "../etc", "x/y", []ReferenceUpload{
		{Filename: "a.jpg", ContentType: "image/jpeg", Data: strings.NewReader("x")},
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, true, strings.HasPrefix(paths[0], filepath.Join(root, "reference", "a1")))

	_, err = store.Save(context.Background(), "..", "b", "m", nil)
	assert.NotEqual(t, nil, err)
}

func TestLocalReferenceStore_Remove(t *testing.T) {
	root := t.TempDir()
	store := NewLocalReferenceStore(root)

	_, err := store.Save(context.Background(), "a1", "BYD", "SEAL", []ReferenceUpload{
		{Filename: "a.jpg", ContentType: "image/jpeg", Data: strings.NewReader("x")},
	})
	assert.Equal(t, nil, err)

	assert.Equal(t, nil, store.Remove("a1"))
	_, err = os.Stat(filepath.Join(root, "reference", "a1"))
	assert.Equal(t, true, os.IsNotExist(err))

	// removing twice is fine
	assert.Equal(t, nil, store.Remove("a1"))
}

func TestLocalReferenceStore_Contains(t *testing.T) {
	root := t.TempDir()
	store := NewLocalReferenceStore(root)

	assert.Equal(t, true, store.Contains(filepath.Join(root, "reference", "a1", "BYD", "SEAL", "ref_1.jpg")))
	assert.Equal(t, false, store.Contains(filepath.Join(root, "reference")))
	assert.Equal(t, false, store.Contains(filepath.Join(root, "reference", "..", "secret.jpg")))
	assert.Equal(t, false, store.Contains("/etc/passwd"))
}
