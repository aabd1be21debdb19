// Package registry owns link creation, lookup and deletion. Slug
// uniqueness rests entirely on the store's conditional put: the alias
// record is written first, and only its owner gets to write the master
// link record.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/linkly/admin/internal"
	"github.com/linkly/admin/internal/store"
)

const defaultStoreTimeout = 3 * time.Second

type Registry struct {
	store   store.Store
	timeout time.Duration

	// consistency violations observed (orphan aliases, failed
	// compensations); exposed for operators and tests.
	violations atomic.Int64
}

func NewRegistry(s store.Store, storeTimeout time.Duration) *Registry {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Registry{store: s, timeout: storeTimeout}
}

// ConsistencyViolations reports how many invariant violations this
// registry has observed since startup.
func (r *Registry) ConsistencyViolations() int64 {
	return r.violations.Load()
}

func generateLinkID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "lk_" + hex[:8]
}

// createState tracks the two-step write on backends without
// transactions, so the inconsistency window is an explicit state
// instead of a nest of error branches.
type createState int

const (
	stateAliasWritten createState = iota
	stateMasterWritten
	stateCompensationNeeded
	stateCompensated
	stateCompensationFailed
)

func (s createState) String() string {
	switch s {
	case stateAliasWritten:
		return "alias_written"
	case stateMasterWritten:
		return "master_written"
	case stateCompensationNeeded:
		return "compensation_needed"
	case stateCompensated:
		return "compensated"
	case stateCompensationFailed:
		return "compensation_failed"
	}
	return "unknown"
}

// Create registers a new link. The alias insert is the uniqueness
// arbiter: of any number of concurrent creates racing for one slug,
// exactly one wins and the rest get ErrSlugConflict with no writes.
func (r *Registry) Create(ctx context.Context, in internal.NewLink) (*internal.LinkRecord, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	link := &internal.LinkRecord{
		LinkID:         generateLinkID(),
		Slug:           in.Slug,
		Title:          in.Title,
		DestinationURL: in.DestinationURL,
		Variants:       in.Variants,
		Enabled:        true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	aliasDoc, err := json.Marshal(internal.SlugAlias{Slug: link.Slug, LinkID: link.LinkID})
	if err != nil {
		return nil, &internal.StorageError{Op: "encode alias", Err: err}
	}
	linkDoc, err := json.Marshal(link)
	if err != nil {
		return nil, &internal.StorageError{Op: "encode link", Err: err}
	}

	log.Debug().Str("slug", link.Slug).Str("link_id", link.LinkID).Msg("creating link")

	if tx, ok := r.store.(store.Transactor); ok {
		err := r.storeCall(ctx, func(c context.Context) error {
			return tx.RunTransaction(c, []store.Op{
				{Kind: store.OpPutIfAbsent, Key: store.AliasKey(link.Slug), Doc: aliasDoc},
				{Kind: store.OpPutIfAbsent, Key: store.LinkKey(link.LinkID), Doc: linkDoc},
			})
		})
		if errors.Is(err, store.ErrKeyExists) {
			return nil, internal.ErrSlugConflict
		}
		if err != nil {
			return nil, &internal.StorageError{Op: "create link", Err: err}
		}
		log.Info().Str("slug", link.Slug).Str("link_id", link.LinkID).Msg("link created")
		return link, nil
	}

	return r.createCompensated(ctx, link, aliasDoc, linkDoc)
}

// createCompensated is the non-transactional path: alias first, master
// second, and a compensating alias delete when the master write fails.
func (r *Registry) createCompensated(ctx context.Context, link *internal.LinkRecord, aliasDoc, linkDoc []byte) (*internal.LinkRecord, error) {
	err := r.storeCall(ctx, func(c context.Context) error {
		return r.store.PutIfAbsent(c, store.AliasKey(link.Slug), aliasDoc)
	})
	if errors.Is(err, store.ErrKeyExists) {
		return nil, internal.ErrSlugConflict
	}
	if err != nil {
		return nil, &internal.StorageError{Op: "put alias", Err: err}
	}
	state := stateAliasWritten

	writeErr := r.storeCall(ctx, func(c context.Context) error {
		return r.store.PutIfAbsent(c, store.LinkKey(link.LinkID), linkDoc)
	})
	if writeErr == nil {
		state = stateMasterWritten
		log.Info().
			Str("slug", link.Slug).
			Str("link_id", link.LinkID).
			Str("state", state.String()).
			Msg("link created")
		return link, nil
	}

	state = stateCompensationNeeded

	// The compensation runs on a detached context: aborting it midway
	// would leave the orphan alias the whole point is to remove.
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if derr := r.store.Delete(compCtx, store.AliasKey(link.Slug)); derr != nil {
		state = stateCompensationFailed
		r.violations.Add(1)
		log.Error().
			Err(internal.ErrConsistency).
			Str("slug", link.Slug).
			Str("link_id", link.LinkID).
			Str("state", state.String()).
			AnErr("delete_error", derr).
			Msg("compensating alias delete failed, orphan alias left behind")
	} else {
		state = stateCompensated
		log.Warn().
			Str("slug", link.Slug).
			Str("state", state.String()).
			Msg("master write failed, alias rolled back")
	}

	return nil, &internal.StorageError{Op: "put link", Err: writeErr}
}

// Get fetches a link by its id. Exact key lookup, no scan.
func (r *Registry) Get(ctx context.Context, linkID string) (*internal.LinkRecord, error) {
	var rec store.Record
	err := r.storeCall(ctx, func(c context.Context) error {
		var err error
		rec, err = r.store.Get(c, store.LinkKey(linkID))
		return err
	})
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, internal.ErrLinkNotFound
	}
	if err != nil {
		return nil, &internal.StorageError{Op: "get link", Err: err}
	}

	var link internal.LinkRecord
	if err := json.Unmarshal(rec.Doc, &link); err != nil {
		return nil, &internal.StorageError{Op: "decode link", Err: err}
	}
	return &link, nil
}

// List returns every link record. Cost is a full prefix scan.
func (r *Registry) List(ctx context.Context) ([]*internal.LinkRecord, error) {
	var recs []store.Record
	err := r.storeCall(ctx, func(c context.Context) error {
		var err error
		recs, err = r.store.ScanPrefix(c, store.LinkPrefix)
		return err
	})
	if err != nil {
		return nil, &internal.StorageError{Op: "scan links", Err: err}
	}

	links := make([]*internal.LinkRecord, 0, len(recs))
	for _, rec := range recs {
		var link internal.LinkRecord
		if err := json.Unmarshal(rec.Doc, &link); err != nil {
			log.Warn().Str("key", rec.Key).Err(err).Msg("skipping undecodable link record")
			continue
		}
		links = append(links, &link)
	}
	return links, nil
}

// Delete removes a link and its alias. On transactional backends both
// deletes are atomic; otherwise the master goes first, so a crash in
// between leaves a detectable orphan alias rather than a reachable
// half-deleted link.
func (r *Registry) Delete(ctx context.Context, linkID string) error {
	link, err := r.Get(ctx, linkID)
	if err != nil {
		return err
	}

	if tx, ok := r.store.(store.Transactor); ok {
		err := r.storeCall(ctx, func(c context.Context) error {
			return tx.RunTransaction(c, []store.Op{
				{Kind: store.OpDelete, Key: store.LinkKey(linkID)},
				{Kind: store.OpDelete, Key: store.AliasKey(link.Slug)},
			})
		})
		if err != nil {
			return &internal.StorageError{Op: "delete link", Err: err}
		}
		log.Info().Str("link_id", linkID).Str("slug", link.Slug).Msg("link deleted")
		return nil
	}

	if err := r.storeCall(ctx, func(c context.Context) error {
		return r.store.Delete(c, store.LinkKey(linkID))
	}); err != nil {
		return &internal.StorageError{Op: "delete link", Err: err}
	}

	if err := r.storeCall(ctx, func(c context.Context) error {
		return r.store.Delete(c, store.AliasKey(link.Slug))
	}); err != nil {
		r.violations.Add(1)
		log.Error().
			Err(internal.ErrConsistency).
			Str("link_id", linkID).
			Str("slug", link.Slug).
			AnErr("delete_error", err).
			Msg("alias delete failed after master delete, orphan alias left behind")
		return &internal.StorageError{Op: "delete alias", Err: err}
	}

	log.Info().Str("link_id", linkID).Str("slug", link.Slug).Msg("link deleted")
	return nil
}

// ResolveSlug looks a link up through its alias. An alias whose master
// link is gone counts as a consistency violation and resolves to
// not-found, never to the dangling id.
func (r *Registry) ResolveSlug(ctx context.Context, slug string) (*internal.LinkRecord, error) {
	var rec store.Record
	err := r.storeCall(ctx, func(c context.Context) error {
		var err error
		rec, err = r.store.Get(c, store.AliasKey(slug))
		return err
	})
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, internal.ErrLinkNotFound
	}
	if err != nil {
		return nil, &internal.StorageError{Op: "get alias", Err: err}
	}

	var alias internal.SlugAlias
	if err := json.Unmarshal(rec.Doc, &alias); err != nil {
		return nil, &internal.StorageError{Op: "decode alias", Err: err}
	}

	link, err := r.Get(ctx, alias.LinkID)
	if errors.Is(err, internal.ErrLinkNotFound) {
		r.violations.Add(1)
		log.Error().
			Err(internal.ErrConsistency).
			Str("slug", slug).
			Str("link_id", alias.LinkID).
			Msg("alias points at a missing link")
		return nil, internal.ErrLinkNotFound
	}
	return link, err
}

// ReconcileAliases sweeps the alias keyspace and removes aliases whose
// master link no longer exists. Returns how many were removed.
func (r *Registry) ReconcileAliases(ctx context.Context) (int, error) {
	var recs []store.Record
	err := r.storeCall(ctx, func(c context.Context) error {
		var err error
		recs, err = r.store.ScanPrefix(c, store.AliasPrefix)
		return err
	})
	if err != nil {
		return 0, &internal.StorageError{Op: "scan aliases", Err: err}
	}

	removed := 0
	for _, rec := range recs {
		var alias internal.SlugAlias
		if err := json.Unmarshal(rec.Doc, &alias); err != nil {
			log.Warn().Str("key", rec.Key).Err(err).Msg("skipping undecodable alias record")
			continue
		}

		_, err := r.Get(ctx, alias.LinkID)
		if err == nil {
			continue
		}
		if !errors.Is(err, internal.ErrLinkNotFound) {
			return removed, err
		}

		if err := r.storeCall(ctx, func(c context.Context) error {
			return r.store.Delete(c, rec.Key)
		}); err != nil {
			return removed, &internal.StorageError{Op: "delete orphan alias", Err: err}
		}
		removed++
		log.Info().Str("slug", alias.Slug).Str("link_id", alias.LinkID).Msg("removed orphan alias")
	}
	return removed, nil
}

// storeCall bounds a single store operation. A timeout surfaces as a
// transient storage failure, never as not-found or conflict.
func (r *Registry) storeCall(ctx context.Context, fn func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return fn(opCtx)
}
