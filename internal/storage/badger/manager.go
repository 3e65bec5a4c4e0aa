package badger

import (
	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db           *BadgerDB
	posting      interfaces.PostingStorage
	sourceRecord interfaces.SourceRecordStorage
	run          interfaces.RunStorage
	dedup        interfaces.DedupStorage
	kv           interfaces.KeyValueStorage
	logger       arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	kv := NewKVStorage(db, logger)

	manager := &Manager{
		db:           db,
		posting:      NewPostingStorage(db, logger),
		sourceRecord: NewSourceRecordStorage(db, logger),
		run:          NewRunStorage(db, kv, logger),
		dedup:        NewDedupStorage(db, logger),
		kv:           kv,
		logger:       logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// PostingStorage returns the Posting storage interface
func (m *Manager) PostingStorage() interfaces.PostingStorage {
	return m.posting
}

// SourceRecordStorage returns the SourceRecord storage interface
func (m *Manager) SourceRecordStorage() interfaces.SourceRecordStorage {
	return m.sourceRecord
}

// RunStorage returns the Run storage interface
func (m *Manager) RunStorage() interfaces.RunStorage {
	return m.run
}

// DedupStorage returns the Dedup storage interface
func (m *Manager) DedupStorage() interfaces.DedupStorage {
	return m.dedup
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
