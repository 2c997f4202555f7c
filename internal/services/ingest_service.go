package services

import (
	"log"
	"sync"

	"github.com/alitto/pond/v2"
)

// InstanceBatch is one meeting instance's worth of raw observations.
type InstanceBatch struct {
	MeetingInstanceID string        `json:"meeting_instance_id"`
	Observations      []Observation `json:"observations"`
}

// InstanceResult summarizes how a batch resolved.
type InstanceResult struct {
	MeetingInstanceID string `json:"meeting_instance_id"`
	Attached          int    `json:"attached"`
	Queued            int    `json:"queued"`
	Dismissed         int    `json:"dismissed"`
	Duplicates        int    `json:"duplicates"`
	NewIdentities     int    `json:"new_identities"`
	Errors            int    `json:"errors"`
}

// IngestService feeds observation batches through the resolver. Batches for
// different meeting instances run in parallel on a bounded worker pool;
// observations within one instance run in order, so a person joining twice
// under slightly different names resolves deterministically.
type IngestService struct {
	resolver *ResolverService
	pool     pond.Pool
}

// NewIngestService creates an ingest service with the given parallelism.
func NewIngestService(resolver *ResolverService, workers int) *IngestService {
	if workers < 1 {
		workers = 1
	}
	return &IngestService{
		resolver: resolver,
		pool:     pond.NewPool(workers),
	}
}

// IngestBatches resolves every batch and returns per-instance results in the
// input order. Individual observation failures are counted, logged and do not
// abort the batch.
func (s *IngestService) IngestBatches(batches []InstanceBatch) []InstanceResult {
	results := make([]InstanceResult, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		s.pool.Submit(func() {
			defer wg.Done()
			results[i] = s.ingestOne(batch)
		})
	}
	wg.Wait()

	return results
}

// IngestBatch resolves a single meeting instance's roster.
func (s *IngestService) IngestBatch(batch InstanceBatch) InstanceResult {
	return s.IngestBatches([]InstanceBatch{batch})[0]
}

func (s *IngestService) ingestOne(batch InstanceBatch) InstanceResult {
	result := InstanceResult{MeetingInstanceID: batch.MeetingInstanceID}

	for _, obs := range batch.Observations {
		if obs.MeetingInstanceID == "" {
			obs.MeetingInstanceID = batch.MeetingInstanceID
		}
		resolution, err := s.resolver.Resolve(obs)
		if err != nil {
			log.Printf("IngestService: failed to resolve %q in %s: %v",
				obs.RawName, obs.MeetingInstanceID, err)
			result.Errors++
			continue
		}
		switch resolution.State {
		case ResolutionAttached:
			result.Attached++
			if resolution.NewIdentity {
				result.NewIdentities++
			}
		case ResolutionQueued:
			result.Queued++
		case ResolutionDismissed:
			result.Dismissed++
		case ResolutionDuplicate:
			result.Duplicates++
		}
	}

	return result
}

// Stop drains the worker pool. Call on shutdown.
func (s *IngestService) Stop() {
	s.pool.StopAndWait()
}
