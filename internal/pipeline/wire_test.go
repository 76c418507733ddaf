package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderlake/internal/config"
	"orderlake/internal/curated"
	"orderlake/internal/metrics"
	"orderlake/internal/model"
)

func TestFromConfig_RunsWithFileSinks(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "api_orders.json"), ordersJSON)
	write(t, filepath.Join(dir, "users.csv"), usersCSV)
	write(t, filepath.Join(dir, "products.csv"), productsCSV)

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.SourcePath = filepath.Join(dir, "api_orders.json")
	cfg.UsersPath = filepath.Join(dir, "users.csv")
	cfg.ProductsPath = filepath.Join(dir, "products.csv")
	cfg.OutputDir = filepath.Join(dir, "output")
	cfg.MergePolicy = "recency"
	cfg.MetricsFile = filepath.Join(dir, "output", "orderlake.prom")
	require.NoError(t, cfg.Validate())

	r, closeFn, err := FromConfig(cfg, metrics.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, curated.RecencyWins, r.Store.Policy())

	rep, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Facts)
	require.NoError(t, closeFn())

	for _, p := range []string{
		filepath.Join(cfg.RawDir(), "orders.json"),
		filepath.Join(cfg.QuarantineDir(), "orders.jsonl"),
		filepath.Join(cfg.CuratedDir(), model.TableFactOrder, "_manifest.latest.json"),
		cfg.MetricsFile,
	} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	// the watermark survives in the pebble catalog
	r, closeFn, err = FromConfig(cfg, metrics.NewRegistry())
	require.NoError(t, err)
	defer closeFn()
	rep, err = r.Run(context.Background(), Options{Resume: true})
	require.NoError(t, err)
	require.NotNil(t, rep.Since)
	assert.True(t, rep.Watermark.Equal(*rep.Since), "watermark %s, since %s", rep.Watermark, *rep.Since)
}

func TestFromConfig_BadMergePolicy(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.MergePolicy = "newest"
	_, _, err = FromConfig(cfg, metrics.NewRegistry())
	assert.Error(t, err)
}

type recordingCloser struct {
	name string
	log  *[]string
	err  error
}

func (c recordingCloser) Close() error {
	*c.log = append(*c.log, c.name)
	return c.err
}

func TestClosers_ClosesAllInReverse(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	cs := closers{
		recordingCloser{name: "manifest", log: &order},
		recordingCloser{name: "quarantine", log: &order, err: boom},
		recordingCloser{name: "catalog", log: &order},
	}
	err := cs.Close()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"catalog", "quarantine", "manifest"}, order)
}

func TestFromConfig_KafkaSinksClosedWithCatalog(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.OutputDir = filepath.Join(dir, "output")
	cfg.ManifestSink = config.SinkBoth
	cfg.QuarantineSink = config.SinkBoth

	r, closeFn, err := FromConfig(cfg, metrics.NewRegistry())
	require.NoError(t, err)
	require.NotNil(t, r)
	require.NoError(t, closeFn())
}

func TestFromConfig_CatalogFailureReleasesSinks(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "catalog")
	write(t, blocked, "not a directory")

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.OutputDir = filepath.Join(dir, "output")
	cfg.CatalogDir = blocked
	cfg.ManifestSink = config.SinkKafka
	cfg.QuarantineSink = config.SinkKafka

	r, closeFn, err := FromConfig(cfg, metrics.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog")
	assert.Nil(t, r)
	assert.Nil(t, closeFn)
}
