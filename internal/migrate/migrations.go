package migrate

import "embed"

// Files holds the remote schema: order tables and the status functions the
// gateway calls.
//
//go:embed migrations/*.sql
var Files embed.FS
