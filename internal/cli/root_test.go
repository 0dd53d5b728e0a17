package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/VehicleTaxonomy/internal/core"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taxonomy.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (core.ImportResponse, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--store", "memory"}, args...))
	err := cmd.Execute()

	var resp core.ImportResponse
	if stdout.Len() > 0 {
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp), stdout.String())
	}
	return resp, stderr.String(), err
}

func TestImportCommand(t *testing.T) {
	path := writeFile(t, "BodyType,Make,GenModel,Model,Fuel,EngineSizeSimple,EngineSizeDesc\n"+
		"Cars,ABARTH,ABARTH 124,124 GT MULTIAIR,Petrol,1400,\n"+
		"Cars,FORD,FOCUS,ST,Diesel,abc,\n")

	resp, logs, err := execute(t, "import", path)
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 1, resp.Result.NumSuccess)
	assert.Equal(t, 1, resp.Result.NumInvalid)
	assert.Contains(t, logs, "import finished")
}

func TestValidateCommand_RejectsBadFile(t *testing.T) {
	resp, _, err := execute(t, "validate", writeFile(t, "Make,Model\nABARTH,124\n"))
	assert.ErrorIs(t, err, ErrRejected)
	assert.False(t, resp.IsValid)
	require.Len(t, resp.ValidationErrors, 1)
	assert.Equal(t, core.PropertyFile, resp.ValidationErrors[0].Property)
}

func TestImportCommand_Errors(t *testing.T) {
	_, _, err := execute(t, "import")
	assert.Error(t, err, "a location is required")

	_, _, err = execute(t, "import", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(&stdout, &stderr)
	cmd.SetArgs([]string{"--store", "cassandra", "import", "x.csv"})
	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER")
}
