package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"go.uber.org/zap"
)

const defaultFlushInterval = 1 * time.Minute

// FlushService writes the three state documents to durable storage, on a
// timer and on demand. Documents whose revision has not moved since the
// last successful write are skipped.
type FlushService struct {
	store  domain.StateStore
	graph  *MemoryGraph
	goals  *GoalTracker
	proofs *ProofEngine
	logger *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu          sync.Mutex
	graphRev    uint64
	goalsRev    uint64
	proofsRev   uint64
	initialized bool
}

func NewFlushService(store domain.StateStore, graph *MemoryGraph, goals *GoalTracker, proofs *ProofEngine, logger *zap.Logger) *FlushService {
	return &FlushService{
		store:    store,
		graph:    graph,
		goals:    goals,
		proofs:   proofs,
		logger:   logger,
		interval: defaultFlushInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *FlushService) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Restore loads whatever the store holds into the components. Missing
// documents leave the component empty.
func (s *FlushService) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	graphDoc, err := s.store.LoadGraph(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load graph: %w", err)
	default:
		if err := s.graph.Load(graphDoc); err != nil {
			return fmt.Errorf("load graph: %w", err)
		}
	}

	goalDoc, err := s.store.LoadGoals(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load goals: %w", err)
	default:
		s.goals.Load(goalDoc)
	}

	proofDoc, err := s.store.LoadProofs(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load proofs: %w", err)
	default:
		s.proofs.Load(proofDoc)
	}

	s.graphRev = s.graph.Revision()
	s.goalsRev = s.goals.Revision()
	s.proofsRev = s.proofs.Revision()
	s.initialized = true
	return nil
}

// Flush writes every document that changed since the last flush. The first
// error stops the flush; documents already written stay written.
func (s *FlushService) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rev := s.graph.Revision(); !s.initialized || rev != s.graphRev {
		if err := s.store.SaveGraph(ctx, s.graph.Export()); err != nil {
			return err
		}
		s.graphRev = rev
	}
	if rev := s.goals.Revision(); !s.initialized || rev != s.goalsRev {
		if err := s.store.SaveGoals(ctx, s.goals.Export()); err != nil {
			return err
		}
		s.goalsRev = rev
	}
	if rev := s.proofs.Revision(); !s.initialized || rev != s.proofsRev {
		if err := s.store.SaveProofs(ctx, s.proofs.Export()); err != nil {
			return err
		}
		s.proofsRev = rev
	}
	s.initialized = true
	return nil
}

func (s *FlushService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("flush worker started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if err := s.Flush(ctx); err != nil {
					s.logger.Error("periodic flush failed", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := s.Flush(ctx); err != nil {
					s.logger.Error("final flush failed", zap.Error(err))
				}
				cancel()
				s.logger.Info("flush worker stopped")
				return
			}
		}
	}()
}

// Stop ends the worker after one last flush.
func (s *FlushService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
