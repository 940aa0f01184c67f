package bus

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// OpenStore opens (creating if necessary) the Badger-backed store a Bus is
// built on, adapted from the teacher's badgerhold connection-opening
// sequence (internal/storage/badger/connection.go): ensure the parent
// directory exists, then open with the default options and Badger's own
// logger disabled in favor of the caller's structured logger.
func OpenStore(path string, logger arbor.ILogger) (*badgerhold.Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bus store directory: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Opening bus store")

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open bus store at %q: %w", path, err)
	}
	return store, nil
}
