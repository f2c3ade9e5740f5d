package tplink

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Update is a batch ingest: collection -> id -> record.
// Plug entries hold PlugRecord values, strip entries StripRecord values.
type Update map[Collection]map[string]any

// Change describes one replaced record. The Previous fields are nil when the
// id was not in the dataset before.
type Change struct {
	Collection Collection
	ID         string

	Plug         *PlugRecord
	PreviousPlug *PlugRecord

	Strip         *StripRecord
	PreviousStrip *StripRecord
}

// PowerChanged reports whether a plug change flipped the relay state.
// The first ingest of a plug counts as a change.
func (c Change) PowerChanged() bool {
	if c.Plug == nil {
		return false
	}
	return c.PreviousPlug == nil || c.PreviousPlug.PowerState != c.Plug.PowerState
}

// Dataset is the canonical last-known state of every strip and plug.
//
// Ingest replaces records per id and leaves all other ids untouched.
// Records are never deleted. The lock covers map mutation only.
type Dataset struct {
	mu     sync.RWMutex
	strips map[string]StripRecord
	plugs  map[string]PlugRecord

	listenerMu sync.RWMutex
	onIngest   func(Change)
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		strips: make(map[string]StripRecord),
		plugs:  make(map[string]PlugRecord),
	}
}

// SetOnIngest registers a listener invoked after every replaced record.
// The listener runs on the ingesting goroutine, outside the dataset lock.
func (d *Dataset) SetOnIngest(fn func(Change)) {
	d.listenerMu.Lock()
	d.onIngest = fn
	d.listenerMu.Unlock()
}

// IngestReplace replaces the record stored under id in collection.
func (d *Dataset) IngestReplace(collection Collection, id string, record any) error {
	if err := validateRecord(collection, id, record); err != nil {
		return err
	}

	var change Change
	if collection == CollectionPlug {
		change = d.replacePlug(id, record.(PlugRecord))
	} else {
		change = d.replaceStrip(id, record.(StripRecord))
	}

	d.notify(change)
	return nil
}

// Ingest applies a batch update. The whole batch is validated before any
// record is replaced.
func (d *Dataset) Ingest(u Update) error {
	for collection, records := range u {
		for id, record := range records {
			if err := validateRecord(collection, id, record); err != nil {
				return err
			}
		}
	}

	// Strips before plugs so listeners see a strip before its outlets.
	for _, collection := range []Collection{CollectionStrip, CollectionPlug} {
		records := u[collection]
		ids := make([]string, 0, len(records))
		for id := range records {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if err := d.IngestReplace(collection, id, records[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateRecord(collection Collection, id string, record any) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	switch collection {
	case CollectionPlug:
		if _, ok := record.(PlugRecord); !ok {
			return fmt.Errorf("%w: %T in plug collection", ErrInvalidRecord, record)
		}
	case CollectionStrip:
		if _, ok := record.(StripRecord); !ok {
			return fmt.Errorf("%w: %T in strip collection", ErrInvalidRecord, record)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	return nil
}

func (d *Dataset) replacePlug(id string, rec PlugRecord) Change {
	stored := rec.Clone()

	d.mu.Lock()
	prev, had := d.plugs[id]
	d.plugs[id] = stored
	d.mu.Unlock()

	change := Change{Collection: CollectionPlug, ID: id}
	next := stored.Clone()
	change.Plug = &next
	if had {
		change.PreviousPlug = &prev
	}
	return change
}

func (d *Dataset) replaceStrip(id string, rec StripRecord) Change {
	stored := rec.Clone()

	d.mu.Lock()
	prev, had := d.strips[id]
	d.strips[id] = stored
	d.mu.Unlock()

	change := Change{Collection: CollectionStrip, ID: id}
	next := stored.Clone()
	change.Strip = &next
	if had {
		change.PreviousStrip = &prev
	}
	return change
}

func (d *Dataset) notify(c Change) {
	d.listenerMu.RLock()
	fn := d.onIngest
	d.listenerMu.RUnlock()

	if fn != nil {
		fn(c)
	}
}

// Plug returns a copy of the plug record stored under id.
func (d *Dataset) Plug(id string) (PlugRecord, bool) {
	d.mu.RLock()
	rec, ok := d.plugs[id]
	d.mu.RUnlock()

	if !ok {
		return PlugRecord{}, false
	}
	return rec.Clone(), true
}

// Strip returns a copy of the strip record stored under id.
func (d *Dataset) Strip(id string) (StripRecord, bool) {
	d.mu.RLock()
	rec, ok := d.strips[id]
	d.mu.RUnlock()

	if !ok {
		return StripRecord{}, false
	}
	return rec.Clone(), true
}

// Plugs returns copies of all plug records keyed by id.
func (d *Dataset) Plugs() map[string]PlugRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]PlugRecord, len(d.plugs))
	for id, rec := range d.plugs {
		out[id] = rec.Clone()
	}
	return out
}

// Strips returns copies of all strip records keyed by id.
func (d *Dataset) Strips() map[string]StripRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]StripRecord, len(d.strips))
	for id, rec := range d.strips {
		out[id] = rec.Clone()
	}
	return out
}

// Stale returns the sorted ids of records last updated before cutoff.
// Strip ids are prefixed "strip/", plug ids "plug/".
func (d *Dataset) Stale(cutoff time.Time) []string {
	d.mu.RLock()
	var out []string
	for id, rec := range d.strips {
		if rec.UpdatedAt.Before(cutoff) {
			out = append(out, string(CollectionStrip)+"/"+id)
		}
	}
	for id, rec := range d.plugs {
		if rec.UpdatedAt.Before(cutoff) {
			out = append(out, string(CollectionPlug)+"/"+id)
		}
	}
	d.mu.RUnlock()

	sort.Strings(out)
	return out
}
