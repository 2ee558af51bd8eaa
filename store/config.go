package store

// Config holds configuration for the Store.
type Config struct {
	// MaxTransactionItems caps the items of one TransactWriteItems call.
	// A commit larger than this is split into several transactions.
	// Default: 100
	// Max: 100 (DynamoDB limit)
	MaxTransactionItems int `env:"MAX_TRANSACTION_ITEMS" envDefault:"100"`

	// DefaultPageSize is used by GetPaging when the query sets no page size.
	// Default: 20
	DefaultPageSize int `env:"DEFAULT_PAGE_SIZE" envDefault:"20"`

	// MaxPageSize caps the page size a query may request.
	// Default: 1000
	MaxPageSize int `env:"MAX_PAGE_SIZE" envDefault:"1000"`

	// ConsistentRead enables strongly consistent reads on tables.
	// Queries against global secondary indexes are always eventually consistent.
	// Default: false
	ConsistentRead bool `env:"CONSISTENT_READ"`
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		MaxTransactionItems: 100,
		DefaultPageSize:     20,
		MaxPageSize:         1000,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.MaxTransactionItems < 1 || c.MaxTransactionItems > 100 {
		c.MaxTransactionItems = 100
	}
	if c.MaxPageSize < 1 {
		c.MaxPageSize = 1000
	}
	if c.DefaultPageSize < 1 {
		c.DefaultPageSize = 20
	}
	if c.DefaultPageSize > c.MaxPageSize {
		c.DefaultPageSize = c.MaxPageSize
	}
}
