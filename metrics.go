package colstore

import (
	"github.com/uber-go/tally"
)

// Metrics tracks the entity operations of a repository.
type Metrics struct {
	EntitySave     tally.Counter
	EntitySaveFail tally.Counter

	EntityGet      tally.Counter
	EntityGetFail  tally.Counter
	EntityNotFound tally.Counter

	EntityExists     tally.Counter
	EntityExistsFail tally.Counter

	EntityScan     tally.Counter
	EntityScanFail tally.Counter

	EntityDelete     tally.Counter
	EntityDeleteFail tally.Counter

	KeyAssign     tally.Counter
	KeyAssignFail tally.Counter
}

// NewMetrics returns a new Metrics struct, with all metrics initialized and
// rooted at the given tally.Scope.
func NewMetrics(scope tally.Scope) Metrics {
	entityScope := scope.SubScope("entity")
	entitySuccessScope := entityScope.Tagged(map[string]string{"type": "success"})
	entityFailScope := entityScope.Tagged(map[string]string{"type": "fail"})
	entityNotFoundScope := entityScope.Tagged(map[string]string{"type": "not_found"})

	keyScope := scope.SubScope("row_key")
	keySuccessScope := keyScope.Tagged(map[string]string{"type": "success"})
	keyFailScope := keyScope.Tagged(map[string]string{"type": "fail"})

	return Metrics{
		EntitySave:     entitySuccessScope.Counter("save"),
		EntitySaveFail: entityFailScope.Counter("save"),

		EntityGet:      entitySuccessScope.Counter("get"),
		EntityGetFail:  entityFailScope.Counter("get"),
		EntityNotFound: entityNotFoundScope.Counter("get"),

		EntityExists:     entitySuccessScope.Counter("exists"),
		EntityExistsFail: entityFailScope.Counter("exists"),

		EntityScan:     entitySuccessScope.Counter("scan"),
		EntityScanFail: entityFailScope.Counter("scan"),

		EntityDelete:     entitySuccessScope.Counter("delete"),
		EntityDeleteFail: entityFailScope.Counter("delete"),

		KeyAssign:     keySuccessScope.Counter("assign"),
		KeyAssignFail: keyFailScope.Counter("assign"),
	}
}
