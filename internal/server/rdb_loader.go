package server

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"redisgo/internal/rdb"
)

// loadRDB reads the configured snapshot file, if any, and restores its
// records into the string store. Write-side snapshotting is out of
// scope; this is a read-only bootstrap step run once at startup.
func (s *Server) loadRDB() error {
	startTime := time.Now()
	path := filepath.Join(s.config.Dir, s.config.DBFilename)

	reader, err := rdb.NewReader(path)
	if err != nil {
		return fmt.Errorf("opening RDB file: %w", err)
	}
	if reader == nil {
		log.Printf("[RDB] no snapshot found at %s, starting empty", path)
		return nil
	}
	defer reader.Close()

	records, err := reader.Load()
	if err != nil {
		return fmt.Errorf("loading RDB snapshot: %w", err)
	}

	for _, rec := range records {
		s.store.Set(rec.Key, rec.Value, rec.Expiry)
	}

	log.Printf("[RDB] loaded %d keys from %s in %v", len(records), path, time.Since(startTime))
	return nil
}
