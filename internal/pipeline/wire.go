package pipeline

import (
	"errors"
	"fmt"
	"io"

	"orderlake/internal/catalog"
	"orderlake/internal/config"
	"orderlake/internal/curated"
	"orderlake/internal/dimension"
	"orderlake/internal/manifest"
	"orderlake/internal/metrics"
	"orderlake/internal/quarantine"
	"orderlake/internal/rawzone"
	"orderlake/internal/source"
)

// closers releases sinks in reverse order of creation.
type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds a Runner from validated settings. The returned close
// function releases the catalog and every Kafka sink.
func FromConfig(cfg config.Config, reg *metrics.Registry) (*Runner, func() error, error) {
	policy, err := curated.ParseMergePolicy(cfg.MergePolicy)
	if err != nil {
		return nil, nil, err
	}

	var fetcher source.Fetcher
	switch cfg.Source {
	case config.SourceHTTP:
		fetcher = source.NewHTTPSource(cfg.SourceURL, cfg.HTTPRetries)
	case config.SourceKafka:
		fetcher = source.NewKafkaSource(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaReadTimeout)
	default:
		fetcher = source.NewFileSource(cfg.SourcePath)
	}
	fetcher = source.NewRetrying(fetcher, source.RetryPolicy{
		Attempts:   cfg.RetryAttempts,
		Delay:      cfg.RetryDelay,
		Multiplier: cfg.RetryMultiplier,
	})

	var sinks closers
	fail := func(err error) (*Runner, func() error, error) {
		if cerr := sinks.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, nil, err
	}

	var pubs []manifest.Publisher
	if config.WantsFile(cfg.ManifestSink) {
		pubs = append(pubs, manifest.NewFilesystemManifest(cfg.CuratedDir()))
	}
	if config.WantsKafka(cfg.ManifestSink) {
		km := manifest.NewKafkaManifest(cfg.KafkaBrokers, cfg.ManifestTopic)
		sinks = append(sinks, km)
		pubs = append(pubs, km)
	}

	var qws []quarantine.Writer
	if config.WantsFile(cfg.QuarantineSink) {
		fw, err := quarantine.NewFileWriter(cfg.QuarantineDir(), "orders.jsonl")
		if err != nil {
			return fail(fmt.Errorf("quarantine: %w", err))
		}
		qws = append(qws, fw)
	}
	if config.WantsKafka(cfg.QuarantineSink) {
		kw := quarantine.NewKafkaWriter(cfg.KafkaBrokers, cfg.QuarantineTopic)
		sinks = append(sinks, kw)
		qws = append(qws, kw)
	}

	cat, err := catalog.OpenPebble(cfg.CatalogPath())
	if err != nil {
		return fail(fmt.Errorf("catalog: %w", err))
	}
	sinks = append(sinks, cat)

	r := &Runner{
		Fetcher:     fetcher,
		Raw:         rawzone.NewWriter(cfg.RawDir()),
		Dimensions:  dimension.Files{UsersPath: cfg.UsersPath, ProductsPath: cfg.ProductsPath},
		Store:       curated.New(cfg.CuratedDir(), curated.DefaultRegistry(), curated.WithMergePolicy(policy)),
		Quarantine:  quarantine.NewMultiWriter(qws...),
		Manifest:    manifest.MultiPublisher(pubs...),
		Catalog:     cat,
		Metrics:     reg,
		MetricsFile: cfg.MetricsFile,
	}
	return r, sinks.Close, nil
}
