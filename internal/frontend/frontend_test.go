package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectRejectsMissingDirectory(t *testing.T) {
	_, err := Inspect("/no/such/directory/irobf-frontend-test")
	assert.Error(t, err)
}

func TestInspectReportsThisPackage(t *testing.T) {
	report, err := Inspect(".")
	require.NoError(t, err)
	assert.Contains(t, report.PackagePath, "frontend")

	var names []string
	for _, fr := range report.Functions {
		names = append(names, fr.Name)
	}
	assert.Contains(t, names, "Inspect")
	assert.Contains(t, names, "inspectFunction")
}
