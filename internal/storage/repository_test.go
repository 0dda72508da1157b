package storage_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"blackout/internal/storage"
	"blackout/internal/storage/storagetest"

	"github.com/stretchr/testify/suite"
)

func TestSQLiteRepository(t *testing.T) {
	dir := t.TempDir()
	n := 0
	suite.Run(t, &storagetest.StoreSuite{
		NewStore: func() (storage.Store, error) {
			n++
			return storage.NewSQLiteRepository(filepath.Join(dir, fmt.Sprintf("blackout-%d.db", n)))
		},
	})
}
