package activity_test

import (
	"testing"

	"thermofit/testutil"
)

// TestActivityReachesBackendsThroughInterfaces keeps the residual engine
// independent of concrete stores and solvers.
func TestActivityReachesBackendsThroughInterfaces(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, "thermofit/internal/activity", testutil.BackendImportForbidden,
		"activity must use domain.DatasetSource and equilibrium.Solver")
}
