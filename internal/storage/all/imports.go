// Package all registers every built-in storage backend with the storage
// factory. Import it for side effects from the wiring layer:
//
//	import _ "target-snowflake/internal/storage/all"
//
// A binary that needs a subset of backends can import those packages
// directly instead.
package all

import (
	_ "target-snowflake/internal/storage/snowflake"
)
