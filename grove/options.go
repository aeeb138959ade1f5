package grove

import (
	"github.com/dashpay/grove/cost"
	"github.com/dashpay/grove/merk"
	"github.com/dashpay/grove/storage/badgerdb"
)

// Options configures a Database (SPEC_FULL.md "Configuration"): a
// plain struct plus functional options, deliberately without a
// config-file/CLI parser (out of scope per spec §1; see DESIGN.md).
type Options struct {
	dir        string
	inMemory   bool
	syncWrites bool
	valueLog   int64

	defaultFeature merk.FeatureType
	costCeiling    uint64
}

// Option mutates an Options under construction.
type Option func(*Options)

// WithDir sets the on-disk database directory.
func WithDir(dir string) Option {
	return func(o *Options) { o.dir = dir }
}

// WithInMemory selects a pure in-memory database (no directory).
func WithInMemory() Option {
	return func(o *Options) { o.inMemory = true }
}

// WithSyncWrites enables badger's fsync-on-write mode.
func WithSyncWrites() Option {
	return func(o *Options) { o.syncWrites = true }
}

// WithValueLogFileSize overrides badger's value-log segment size.
func WithValueLogFileSize(n int64) Option {
	return func(o *Options) { o.valueLog = n }
}

// WithDefaultFeature sets the FeatureType given to every ordinary
// (non-portal) element written by Insert or Apply, in any subtree.
// Tree-portal elements take their feature from their element kind.
func WithDefaultFeature(f merk.FeatureType) Option {
	return func(o *Options) { o.defaultFeature = f }
}

// WithCostCeiling installs a per-call cost ceiling: any operation whose
// running cost crosses max fails with groveerr.CostLimitExceeded (spec
// §7, §9 "callers can impose a ceiling").
func WithCostCeiling(max uint64) Option {
	return func(o *Options) { o.costCeiling = max }
}

func buildOptions(opts []Option) Options {
	var o Options
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

func (o Options) badgerOptions() badgerdb.Options {
	return badgerdb.Options{
		Dir:              o.dir,
		InMemory:         o.inMemory,
		SyncWrites:       o.syncWrites,
		ValueLogFileSize: o.valueLog,
	}
}

func (o Options) limiter() *cost.Limiter {
	if o.costCeiling == 0 {
		return nil
	}
	return &cost.Limiter{Max: o.costCeiling}
}
