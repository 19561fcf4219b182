package importer

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/cyberheisen/redopsync/internal/db"
	"github.com/cyberheisen/redopsync/internal/testutil"
)

func newTestImporter(t *testing.T) (*Importer, *db.DB, int64) {
	t.Helper()

	database, err := db.Open(testutil.TempDBPath(t))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	project, err := database.CreateProject("test-project", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	imp := New(database, testutil.TempDir(t), zerolog.Nop())
	return imp, database, project.ID
}
