package api

import (
	"log"
	"sync"

	"github.com/spatialdata-io/server/internal/service"
)

// DatasetInfo contains information about a dataset for the API response.
type DatasetInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// DatasetRegistry holds the services of all loaded datasets. Datasets
// converted by ingest jobs are registered while the server runs.
type DatasetRegistry struct {
	mu             sync.RWMutex
	services       map[string]*service.DatasetService
	defaultDataset string
	datasetOrder   []string
	title          string
}

// NewDatasetRegistry creates a new dataset registry. order fixes the listing
// position of datasets that register later; unknown ids are appended.
func NewDatasetRegistry(defaultDataset string, order []string, title string) *DatasetRegistry {
	return &DatasetRegistry{
		services:       make(map[string]*service.DatasetService),
		defaultDataset: defaultDataset,
		datasetOrder:   append([]string(nil), order...),
		title:          title,
	}
}

// Register adds the service for a dataset, closing any service it replaces.
func (r *DatasetRegistry) Register(datasetID string, svc *service.DatasetService) {
	r.mu.Lock()
	old := r.services[datasetID]
	r.services[datasetID] = svc
	if !contains(r.datasetOrder, datasetID) {
		r.datasetOrder = append(r.datasetOrder, datasetID)
	}
	if r.defaultDataset == "" {
		r.defaultDataset = datasetID
	}
	r.mu.Unlock()

	if old != nil && old != svc {
		if err := old.Close(); err != nil {
			log.Printf("[registry] failed to close replaced dataset %s: %v", datasetID, err)
		}
	}
}

// Unregister removes and closes a dataset. It reports whether it was present.
func (r *DatasetRegistry) Unregister(datasetID string) bool {
	r.mu.Lock()
	svc, ok := r.services[datasetID]
	delete(r.services, datasetID)
	r.mu.Unlock()

	if ok {
		if err := svc.Close(); err != nil {
			log.Printf("[registry] failed to close dataset %s: %v", datasetID, err)
		}
	}
	return ok
}

// Get returns the service for a dataset, or nil if not found.
func (r *DatasetRegistry) Get(datasetID string) *service.DatasetService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services[datasetID]
}

// Default returns the service for the default dataset.
func (r *DatasetRegistry) Default() *service.DatasetService {
	return r.Get(r.DefaultDatasetID())
}

// DefaultDatasetID returns the default dataset ID.
func (r *DatasetRegistry) DefaultDatasetID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultDataset
}

// DatasetIDs returns the ids of the loaded datasets in listing order.
func (r *DatasetRegistry) DatasetIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.services))
	for _, id := range r.datasetOrder {
		if _, ok := r.services[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Title returns the server title.
func (r *DatasetRegistry) Title() string {
	if r.title == "" {
		return "spatialdata-io"
	}
	return r.title
}

// Datasets returns info about the loaded datasets in listing order.
func (r *DatasetRegistry) Datasets() []DatasetInfo {
	ids := r.DatasetIDs()
	infos := make([]DatasetInfo, 0, len(ids))
	for _, id := range ids {
		svc := r.Get(id)
		if svc == nil {
			continue
		}
		infos = append(infos, DatasetInfo{
			ID:      id,
			Name:    id,
			Summary: svc.Dataset().Summary(),
		})
	}
	return infos
}

// Close closes every registered dataset.
func (r *DatasetRegistry) Close() {
	r.mu.Lock()
	services := r.services
	r.services = make(map[string]*service.DatasetService)
	r.mu.Unlock()

	for id, svc := range services {
		if err := svc.Close(); err != nil {
			log.Printf("[registry] failed to close dataset %s: %v", id, err)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
