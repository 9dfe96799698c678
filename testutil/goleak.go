package testutil

import "go.uber.org/goleak"

// GoleakOptions is a common list of options to pass to goleak.
var GoleakOptions = []goleak.Option{
	// Pooled database connections close asynchronously after sql.DB.Close.
	goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	// The pq listener used by the Postgres pubsub can outlive Close.
	goleak.IgnoreTopFunction("github.com/lib/pq.NewDialListener"),
}
