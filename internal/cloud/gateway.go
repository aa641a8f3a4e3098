package cloud

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"moneta/internal/core"
	"moneta/internal/log"
)

// sharedQueryTimeout bounds a collapsed query, which no single caller owns.
const sharedQueryTimeout = time.Minute

// Gateway fetches typed snapshots of remote records. Records that cannot be
// translated are skipped and logged; only a failed query is returned.
type Gateway struct {
	store  Store
	logger *log.Logger
	group  singleflight.Group
}

func NewGateway(store Store, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default(log.ComponentCloud)
	}
	return &Gateway{store: store, logger: logger}
}

// queryAll collapses concurrent queries of the same record type into one call.
// The shared call is detached from the caller that started it, so one caller
// giving up does not fail the others; each caller still waits only as long as
// its own ctx allows.
func (g *Gateway) queryAll(ctx context.Context, rt RecordType) ([]Record, error) {
	ch := g.group.DoChan(string(rt), func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedQueryTimeout)
		defer cancel()
		return g.store.QueryAll(qctx, rt)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("query %s records: %w", rt, res.Err)
		}
		return res.Val.([]Record), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("query %s records: %w", rt, NewError("query", KindNetwork, rt, "", ctx.Err()))
	}
}

func (g *Gateway) skip(ctx context.Context, rt RecordType, id string, err error) {
	g.logger.WarnContext(ctx, "Skipping remote record",
		log.NewFields().
			WithEntity(string(rt), id, "").
			WithOperation(log.OpFetch).
			WithErrorType(log.ErrorTypePartialRecord).
			WithError(err).
			ToSlice()...)
}

func (g *Gateway) FetchUsers(ctx context.Context) ([]core.RemoteUser, error) {
	recs, err := g.queryAll(ctx, RecordUser)
	if err != nil {
		return nil, err
	}
	out := make([]core.RemoteUser, 0, len(recs))
	for _, rec := range recs {
		u, err := DecodeUser(rec)
		if err != nil {
			g.skip(ctx, RecordUser, rec.ID, err)
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (g *Gateway) FetchCategories(ctx context.Context) ([]core.RemoteCategory, error) {
	recs, err := g.queryAll(ctx, RecordCategory)
	if err != nil {
		return nil, err
	}
	out := make([]core.RemoteCategory, 0, len(recs))
	for _, rec := range recs {
		c, err := DecodeCategory(rec)
		if err != nil {
			g.skip(ctx, RecordCategory, rec.ID, err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
