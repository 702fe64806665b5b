package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

// ErrAlreadyRunning is returned when a run for the sync is still in flight
var ErrAlreadyRunning = errors.New("sync already running")

// Manager runs sync jobs in the background, one at a time per sync
type Manager struct {
	runner       *Runner
	ctx          context.Context
	cancelAll    context.CancelFunc
	runners      map[string]context.CancelFunc
	runnersMutex sync.RWMutex
	wg           sync.WaitGroup
}

// NewManager creates a sync manager
func NewManager(runner *Runner) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runner:    runner,
		ctx:       ctx,
		cancelAll: cancel,
		runners:   make(map[string]context.CancelFunc),
	}
}

// Trigger moves the record into syncing and starts a background run. It
// reports false when a run is already in progress.
func (m *Manager) Trigger(ctx context.Context, record *models.SharePointSync, userID, accessToken string) (bool, error) {
	if m.IsRunning(record.ID) {
		return false, nil
	}

	started, err := m.runner.Jobs.TryStartSync(ctx, record.ID)
	if err != nil {
		return false, err
	}
	if !started {
		return false, nil
	}

	err = m.StartSync(JobFromSync(record, userID, accessToken))
	if errors.Is(err, ErrAlreadyRunning) {
		// An earlier run is still winding down. It has already written its
		// final state, so put back what the record held before this call.
		if _, uerr := m.runner.Jobs.UpdateSyncIfStatus(ctx, record.ID, models.SyncStatusSyncing, priorState(record)); uerr != nil {
			log.Printf("[sync %s] Error restoring status: %v", record.ID, uerr)
		}
		return false, nil
	}
	if err != nil {
		status, msg := models.SyncStatusError, fmt.Sprintf("Failed to start sync: %v", err)
		if _, uerr := m.runner.Jobs.UpdateSyncIfStatus(ctx, record.ID, models.SyncStatusSyncing,
			models.SharePointSyncUpdate{SyncStatus: &status, SyncError: &msg}); uerr != nil {
			log.Printf("[sync %s] Error resetting status: %v", record.ID, uerr)
		}
		return false, err
	}
	return true, nil
}

// priorState is the update that undoes TryStartSync on record
func priorState(record *models.SharePointSync) models.SharePointSyncUpdate {
	status, progress, total := record.SyncStatus, record.SyncProgress, record.SyncTotal
	upd := models.SharePointSyncUpdate{
		SyncStatus:   &status,
		SyncProgress: &progress,
		SyncTotal:    &total,
	}
	if record.SyncError != nil {
		msg := *record.SyncError
		upd.SyncError = &msg
	} else {
		upd.ClearSyncError = true
	}
	return upd
}

// StartSync runs job in the background. The record must already be syncing.
func (m *Manager) StartSync(job Job) error {
	m.runnersMutex.Lock()
	defer m.runnersMutex.Unlock()

	if m.ctx.Err() != nil {
		return fmt.Errorf("sync manager is stopped")
	}
	if _, exists := m.runners[job.SyncID]; exists {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(m.ctx)
	m.runners[job.SyncID] = cancel
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer cancel()

		log.Printf("sync start: %s", job.SyncID)
		if err := m.runner.Run(runCtx, job); err != nil {
			log.Printf("sync error %s: %v", job.SyncID, err)
		}

		m.runnersMutex.Lock()
		delete(m.runners, job.SyncID)
		m.runnersMutex.Unlock()
		log.Printf("sync stop: %s", job.SyncID)
	}()

	return nil
}

// IsRunning checks if a run for syncID is in flight in this process
func (m *Manager) IsRunning(syncID string) bool {
	m.runnersMutex.RLock()
	defer m.runnersMutex.RUnlock()

	_, exists := m.runners[syncID]
	return exists
}

// StopAll cancels every running sync and waits for them to record their
// final status
func (m *Manager) StopAll() {
	m.runnersMutex.Lock()
	m.cancelAll()
	for key := range m.runners {
		log.Printf("Stopping sync for %s", key)
	}
	m.runnersMutex.Unlock()

	m.wg.Wait()
}

// Wait blocks until every background run has returned
func (m *Manager) Wait() {
	m.wg.Wait()
}

// GetRunningSyncs returns list of currently running syncs
func (m *Manager) GetRunningSyncs() []string {
	m.runnersMutex.RLock()
	defer m.runnersMutex.RUnlock()

	var syncs []string
	for key := range m.runners {
		syncs = append(syncs, key)
	}
	return syncs
}
