// Package backends blank-imports every concrete jobqueue.Manager
// implementation so their init() functions register with backendregistry.
// Import this package (and only this package) for its side effects from
// anywhere that needs backendregistry.Create to know about "memory" and
// "rq" — never import memoryjq/asynqjq directly outside of this file and
// their own packages.
package backends

import (
	_ "github.com/legout/flowerpower/internal/jobqueue/asynqjq"
	_ "github.com/legout/flowerpower/internal/jobqueue/memoryjq"
)
