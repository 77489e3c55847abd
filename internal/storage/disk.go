package storage

import (
	"fmt"
	"os"

	"github.com/hyperjump/tutor/internal/config"
)

// KnowledgeBaseFiles lists every file a knowledge base occupies on disk: the
// database with its journal companions, the vector index and the id map.
func KnowledgeBaseFiles(st *config.StorageConfig) []string {
	return append(SQLiteFiles(st.DatabasePath), st.IndexPath, st.IDMapPath)
}

// SQLiteFiles returns the database path with its rollback journal and the WAL and
// shared-memory files older databases may still carry.
func SQLiteFiles(dbPath string) []string {
	return []string{dbPath, dbPath + "-journal", dbPath + "-wal", dbPath + "-shm"}
}

// DiskUsageBytes sums the sizes of the files at paths. Empty and missing paths
// count as zero. Remote indexes (qdrant) have no local file and are skipped that way.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if !info.Mode().IsRegular() {
			return 0, fmt.Errorf("%s is not a regular file", p)
		}
		total += info.Size()
	}
	return total, nil
}
