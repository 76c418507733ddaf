// Package pipeline runs one ETL pass: fetch, snapshot, validate, dedupe,
// build facts and upsert the curated tables.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orderlake/internal/catalog"
	"orderlake/internal/curated"
	"orderlake/internal/dimension"
	"orderlake/internal/manifest"
	"orderlake/internal/metrics"
	"orderlake/internal/model"
	"orderlake/internal/quarantine"
	"orderlake/internal/rawzone"
	"orderlake/internal/source"
	"orderlake/internal/transform"
)

// OrdersEntity names the raw snapshot and the watermark of the orders feed.
const OrdersEntity = "orders"

const tracerName = "orderlake/pipeline"

// Dimensions supplies the reference tables.
type Dimensions interface {
	LoadUsers() ([]model.DimUser, error)
	LoadProducts() (*dimension.Products, error)
}

// Runner holds the collaborators of a run. Fetcher, Raw, Dimensions and
// Store are required; the rest default to no-ops.
type Runner struct {
	Fetcher     source.Fetcher
	Raw         rawzone.Snapshotter
	Dimensions  Dimensions
	Store       *curated.Store
	Quarantine  quarantine.Writer
	Manifest    manifest.Publisher
	Catalog     catalog.Catalog
	Metrics     *metrics.Registry
	MetricsFile string
	Tracer      trace.Tracer

	now      func() time.Time
	newRunID func() string
}

type Options struct {
	// Since is an inclusive lower bound on created_at; nil fetches everything.
	Since *time.Time
	// Resume uses the catalog watermark when Since is nil.
	Resume bool
}

// Report summarizes a run.
type Report struct {
	RunID        string
	Since        *time.Time
	Fetched      int
	Rejected     int
	Duplicates   int
	Orders       int
	Facts        int
	ItemsDropped int
	Users        int
	Products     int
	Tables       []curated.UpsertResult
	Watermark    time.Time
	Skipped      bool
}

func (r *Runner) defaults() error {
	if r.Fetcher == nil || r.Raw == nil || r.Dimensions == nil || r.Store == nil {
		return fmt.Errorf("runner: fetcher, raw writer, dimensions and store are required")
	}
	if r.Quarantine == nil {
		r.Quarantine = quarantine.Discard{}
	}
	if r.Manifest == nil {
		r.Manifest = manifest.Noop{}
	}
	if r.Metrics == nil {
		r.Metrics = metrics.NewRegistry()
	}
	if r.Tracer == nil {
		r.Tracer = otel.Tracer(tracerName)
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	if r.newRunID == nil {
		r.newRunID = uuid.NewString
	}
	return nil
}

// Run executes one pass. An empty fetch is not an error; the report is
// marked Skipped.
func (r *Runner) Run(ctx context.Context, opts Options) (rep Report, err error) {
	if err := r.defaults(); err != nil {
		return Report{}, err
	}
	start := r.now()
	rep.RunID = r.newRunID()

	ctx, span := r.Tracer.Start(ctx, "etl.run", trace.WithAttributes(attribute.String("run.id", rep.RunID)))
	defer func() {
		endSpan(span, err)
		r.finish(start, err)
	}()

	since, err := r.resolveSince(opts)
	if err != nil {
		return rep, err
	}
	rep.Since = since
	if since != nil {
		log.Printf("pipeline: run %s incremental since %s", rep.RunID, since.Format(time.RFC3339))
	} else {
		log.Printf("pipeline: run %s full fetch", rep.RunID)
	}

	raws, err := r.fetch(ctx, since)
	if err != nil {
		return rep, err
	}
	rep.Fetched = len(raws)
	r.Metrics.Fetched.Add(float64(len(raws)))
	if len(raws) == 0 {
		log.Printf("pipeline: no orders to process")
		rep.Skipped = true
		return rep, nil
	}

	if err := r.stage(ctx, "etl.raw_snapshot", func(context.Context) error {
		_, err := r.Raw.Write(OrdersEntity, raws)
		return err
	}); err != nil {
		return rep, fmt.Errorf("write raw: %w", err)
	}

	var orders []model.CanonicalOrder
	var users []model.DimUser
	var products *dimension.Products
	var facts []model.FactOrder
	err = r.stage(ctx, "etl.transform", func(ctx context.Context) error {
		valid, rejections := transform.Validate(raws)
		rep.Rejected = len(rejections)
		r.quarantineRejections(ctx, rep.RunID, rejections)

		orders = transform.Dedupe(valid)
		rep.Duplicates = len(valid) - len(orders)
		rep.Orders = len(orders)
		r.Metrics.Duplicates.Add(float64(rep.Duplicates))

		var err error
		if users, err = r.Dimensions.LoadUsers(); err != nil {
			return fmt.Errorf("load users: %w", err)
		}
		if products, err = r.Dimensions.LoadProducts(); err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		rep.Users = len(users)
		rep.Products = len(products.Rows())

		var dropped []transform.DroppedItem
		facts, dropped = transform.BuildFacts(orders, products)
		rep.Facts = len(facts)
		rep.ItemsDropped = len(dropped)
		r.Metrics.FactsBuilt.Add(float64(len(facts)))
		r.Metrics.ItemsDropped.Add(float64(len(dropped)))
		r.quarantineDropped(ctx, rep.RunID, dropped)
		return nil
	})
	if err != nil {
		return rep, err
	}

	if len(orders) == 0 {
		log.Printf("pipeline: no valid orders after validation, fact_order left untouched")
	}
	res, err := upsertTable(ctx, r, rep.RunID, model.TableFactOrder, facts)
	if err != nil {
		return rep, err
	}
	rep.Tables = append(rep.Tables, res)
	if res, err = upsertTable(ctx, r, rep.RunID, model.TableDimUser, users); err != nil {
		return rep, err
	}
	rep.Tables = append(rep.Tables, res)
	if res, err = upsertTable(ctx, r, rep.RunID, model.TableDimProduct, products.Rows()); err != nil {
		return rep, err
	}
	rep.Tables = append(rep.Tables, res)

	if wm, ok := maxCreatedAt(orders); ok {
		rep.Watermark = wm
		if r.Catalog != nil {
			if _, err := r.Catalog.AdvanceWatermark(OrdersEntity, wm); err != nil {
				return rep, fmt.Errorf("advance watermark: %w", err)
			}
		}
	}
	log.Printf("pipeline: run %s done: fetched=%d rejected=%d duplicates=%d facts=%d dropped_items=%d",
		rep.RunID, rep.Fetched, rep.Rejected, rep.Duplicates, rep.Facts, rep.ItemsDropped)
	return rep, nil
}

func (r *Runner) resolveSince(opts Options) (*time.Time, error) {
	if opts.Since != nil {
		s := opts.Since.UTC()
		return &s, nil
	}
	if !opts.Resume {
		return nil, nil
	}
	if r.Catalog == nil {
		return nil, fmt.Errorf("resume: no catalog configured")
	}
	wm, ok, err := r.Catalog.Watermark(OrdersEntity)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	if !ok {
		log.Printf("pipeline: no watermark yet, resuming with a full fetch")
		return nil, nil
	}
	return &wm, nil
}

func (r *Runner) fetch(ctx context.Context, since *time.Time) ([]model.RawRecord, error) {
	var raws []model.RawRecord
	err := r.stage(ctx, "etl.fetch", func(ctx context.Context) error {
		var err error
		raws, err = r.Fetcher.Fetch(ctx, since)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}
	return raws, nil
}

func upsertTable[R curated.Row](ctx context.Context, r *Runner, runID, table string, rows []R) (curated.UpsertResult, error) {
	var res curated.UpsertResult
	err := r.stage(ctx, "etl.upsert."+table, func(ctx context.Context) error {
		var err error
		res, err = curated.Upsert(ctx, r.Store, table, rows)
		if err != nil {
			return err
		}
		for _, p := range res.Partitions {
			r.Metrics.PartitionsWritten.WithLabelValues(table, string(p.Mode)).Inc()
			r.Metrics.RowsWritten.WithLabelValues(table).Add(float64(p.Incoming))
			if err := r.commit(ctx, runID, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("upsert %s: %w", table, err)
	}
	return res, nil
}

// commit announces a written partition and records it in the catalog.
func (r *Runner) commit(ctx context.Context, runID string, p curated.PartitionResult) error {
	at := r.now()
	c := manifest.Commit{
		RunID:       runID,
		Table:       p.Table,
		Partition:   p.Partition,
		Path:        p.Path,
		Rows:        p.After,
		Mode:        string(p.Mode),
		CommittedAt: at,
	}
	if err := r.Manifest.Publish(ctx, c); err != nil {
		return fmt.Errorf("publish manifest %s: %w", c.Key(), err)
	}
	if r.Catalog == nil {
		return nil
	}
	st := catalog.PartitionStat{
		Table:     p.Table,
		Partition: p.Partition,
		Rows:      int64(p.After),
		Mode:      string(p.Mode),
		LastRunID: runID,
		UpdatedAt: at,
	}
	if err := r.Catalog.RecordPartition(st); err != nil {
		return fmt.Errorf("record partition %s: %w", c.Key(), err)
	}
	return nil
}

// Quarantine is a side channel; a failing writer is logged, not fatal.
func (r *Runner) quarantineRejections(ctx context.Context, runID string, rejections []*transform.RejectionError) {
	if len(rejections) == 0 {
		return
	}
	at := r.now()
	entries := make([]quarantine.Entry, 0, len(rejections))
	for _, rej := range rejections {
		label := rej.Label()
		r.Metrics.Rejected.WithLabelValues(label).Inc()
		e := quarantine.Entry{RunID: runID, Reason: label, OrderID: rej.OrderID, Detail: rej.Detail, At: at}
		if b, err := rej.Record.Bytes(); err == nil {
			e.Record = b
		}
		entries = append(entries, e)
	}
	r.writeQuarantine(ctx, entries)
}

func (r *Runner) quarantineDropped(ctx context.Context, runID string, dropped []transform.DroppedItem) {
	if len(dropped) == 0 {
		return
	}
	at := r.now()
	entries := make([]quarantine.Entry, 0, len(dropped))
	for _, d := range dropped {
		entries = append(entries, quarantine.Entry{
			RunID:   runID,
			Reason:  "unresolved_price",
			OrderID: d.OrderID,
			SKU:     d.SKU,
			Detail:  "no item or reference price",
			At:      at,
		})
	}
	r.writeQuarantine(ctx, entries)
}

func (r *Runner) writeQuarantine(ctx context.Context, entries []quarantine.Entry) {
	if err := r.Quarantine.Append(ctx, entries...); err != nil {
		log.Printf("pipeline: WARNING quarantine write failed for %d entries: %v", len(entries), err)
		return
	}
	r.Metrics.Quarantined.Add(float64(len(entries)))
}

func (r *Runner) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := r.Tracer.Start(ctx, name)
	err := fn(ctx)
	endSpan(span, err)
	return err
}

func (r *Runner) finish(start time.Time, err error) {
	r.Metrics.RunDurationSec.Set(r.now().Sub(start).Seconds())
	if err == nil {
		r.Metrics.LastSuccessUnix.Set(float64(r.now().Unix()))
	}
	if r.MetricsFile == "" {
		return
	}
	if werr := r.Metrics.WriteTextfile(r.MetricsFile); werr != nil {
		log.Printf("pipeline: %v", werr)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func maxCreatedAt(orders []model.CanonicalOrder) (time.Time, bool) {
	var latest time.Time
	for _, o := range orders {
		if o.CreatedAt.After(latest) {
			latest = o.CreatedAt
		}
	}
	return latest, !latest.IsZero()
}
