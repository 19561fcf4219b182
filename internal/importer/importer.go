package importer

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/cyberheisen/redopsync/internal/db"
)

// Importer runs parsed scan output through reconciliation and writes the
// result to the project store. One Importer is shared by the web handlers and
// the CLI; imports into the same project are serialized.
type Importer struct {
	db          *db.DB
	evidenceDir string
	log         zerolog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New builds an Importer writing binary evidence under evidenceDir.
func New(database *db.DB, evidenceDir string, log zerolog.Logger) *Importer {
	return &Importer{
		db:          database,
		evidenceDir: evidenceDir,
		log:         log,
		locks:       make(map[int64]*sync.Mutex),
	}
}

// projectLock returns the mutex serializing imports for one project. Imports
// into different projects run concurrently; two imports into the same project
// queue up so find-then-create reconciliation never races itself.
func (imp *Importer) projectLock(projectID int64) *sync.Mutex {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	lock, ok := imp.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		imp.locks[projectID] = lock
	}
	return lock
}

// audit records an import event. Audit failures are logged, never fatal: a
// lost event must not abort a half-finished import.
func (imp *Importer) audit(projectID int64, actionType, recordType string, recordID int64, payload map[string]any) {
	if _, err := imp.db.InsertAuditEvent(projectID, actionType, recordType, recordID, payload); err != nil {
		imp.log.Warn().Err(err).
			Str("action", actionType).
			Str("record_type", recordType).
			Msg("audit event not recorded")
		return
	}
	imp.log.Debug().
		Int64("project_id", projectID).
		Str("action", actionType).
		Str("record_type", recordType).
		Int64("record_id", recordID).
		Msg("audit event")
}
