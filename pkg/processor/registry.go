package processor

import (
	"context"
	"sort"
	"sync"

	"github.com/cuemby/appevent/pkg/bundle"
	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/log"
	"github.com/cuemby/appevent/pkg/metrics"
	"github.com/cuemby/appevent/pkg/storage"
	"github.com/cuemby/appevent/pkg/types"
	"github.com/cuemby/appevent/pkg/validate"
	"github.com/rs/zerolog"
)

// Registry assigns ids to processor configurations and keeps them in the
// store. Processors registered under the same name with the same non-zero
// configId share one id.
type Registry struct {
	mu      sync.Mutex
	store   storage.Store
	catalog *bundle.Catalog
	records map[int64]*types.ProcessorRecord
	logger  zerolog.Logger
}

// NewRegistry loads the processors already held by store. A nil catalog
// disables configName templates and AddFromConfig.
func NewRegistry(store storage.Store, catalog *bundle.Catalog) (*Registry, error) {
	recs, err := store.ListProcessors()
	if err != nil {
		return nil, err
	}

	r := &Registry{
		store:   store,
		catalog: catalog,
		records: make(map[int64]*types.ProcessorRecord, len(recs)),
		logger:  log.WithComponent("processor"),
	}
	for _, rec := range recs {
		r.records[rec.ID] = rec
	}
	metrics.ProcessorsTotal.Set(float64(len(r.records)))
	return r, nil
}

// Add registers p and returns its id. Invalid optional fields are dropped
// and an invalid name leaves the processor inert; neither is an error.
func (r *Registry) Add(p types.Processor) (int64, error) {
	p = r.applyTemplate(p)
	return r.register(p)
}

// AddFromConfig registers the bundle configName under name. An empty
// configName selects bundle.DefaultConfigName.
func (r *Registry) AddFromConfig(ctx context.Context, name, configName string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if configName == "" {
		configName = bundle.DefaultConfigName
	}
	if !validate.ProcessorName(name) || r.catalog == nil {
		return 0, errcode.New(errcode.InvalidProcessorName)
	}

	p, err := r.catalog.Lookup(configName)
	if err != nil {
		r.logger.Warn().Err(err).Str("processor", name).Msg("Config bundle not found")
		return 0, errcode.Wrap(errcode.InvalidProcessorName, err)
	}
	p.Name = name
	return r.register(p)
}

// Remove unregisters the processor with the given id. Unknown and
// non-positive ids are ignored.
func (r *Registry) Remove(id int64) error {
	if id <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil
	}
	if err := r.store.DeleteProcessor(id); err != nil {
		return errcode.Wrap(errcode.Internal, err)
	}
	delete(r.records, id)
	metrics.ProcessorsTotal.Set(float64(len(r.records)))

	r.logger.Info().Int64("id", id).Str("processor", rec.Processor.Name).Msg("Processor removed")
	return nil
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id int64) (types.ProcessorRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return types.ProcessorRecord{}, false
	}
	return *rec, true
}

// List returns the registered processors ordered by id.
func (r *Registry) List() []types.ProcessorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.ProcessorRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered processors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *Registry) register(p types.Processor) (int64, error) {
	p, inert := normalize(p, r.logger)

	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ConfigID != 0 {
		if rec := r.findLocked(p.Name, p.ConfigID); rec != nil {
			updated := *rec
			updated.Processor = p
			updated.Inert = inert
			if err := r.store.SaveProcessor(&updated); err != nil {
				return 0, errcode.Wrap(errcode.Internal, err)
			}
			*rec = updated
			r.logger.Debug().Int64("id", rec.ID).Str("processor", p.Name).Msg("Processor refreshed")
			return rec.ID, nil
		}
	}

	id, err := r.store.NextProcessorID()
	if err != nil {
		return 0, errcode.Wrap(errcode.Internal, err)
	}
	rec := &types.ProcessorRecord{ID: id, Inert: inert, Processor: p}
	if err := r.store.SaveProcessor(rec); err != nil {
		return 0, errcode.Wrap(errcode.Internal, err)
	}
	r.records[id] = rec
	metrics.ProcessorsTotal.Set(float64(len(r.records)))

	r.logger.Info().
		Int64("id", id).
		Str("processor", p.Name).
		Int("config_id", p.ConfigID).
		Str("config_name", p.ConfigName).
		Bool("inert", inert).
		Msg("Processor added")
	return id, nil
}

func (r *Registry) findLocked(name string, configID int) *types.ProcessorRecord {
	for _, rec := range r.records {
		if rec.Processor.Name == name && rec.Processor.ConfigID == configID {
			return rec
		}
	}
	return nil
}

// applyTemplate merges the bundle named by p.ConfigName under p's own
// fields. Unknown bundle names are cleared.
func (r *Registry) applyTemplate(p types.Processor) types.Processor {
	if p.ConfigName == "" {
		return p
	}
	if r.catalog == nil || !validate.ProcessorName(p.ConfigName) {
		r.logger.Warn().Str("processor", p.Name).Str("config_name", p.ConfigName).Msg("Ignoring configName")
		p.ConfigName = ""
		return p
	}

	tmpl, err := r.catalog.Lookup(p.ConfigName)
	if err != nil {
		r.logger.Warn().Err(err).Str("processor", p.Name).Msg("Ignoring unknown configName")
		p.ConfigName = ""
		return p
	}
	return merge(tmpl, p)
}
