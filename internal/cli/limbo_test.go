package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sysval/internal/store"
	"github.com/roach88/sysval/internal/sysvalidate"
)

func TestLimbo_ListsEntries(t *testing.T) {
	f := newNodeFixture(t)
	f.enqueue(t, f.activity, f.link)

	res := execute(t, "limbo", "--db", f.db)
	require.NoError(t, res.err)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, "pending tries=0")
	}
}

func TestLimbo_StatusFilter(t *testing.T) {
	f := newNodeFixture(t)
	f.enqueue(t, f.activity, f.link)
	require.NoError(t, execute(t, "validate", "--db", f.db).err)

	res := execute(t, "--format", "json", "limbo", "--db", f.db, "--status", "awaiting_sys_deps,pending")
	require.NoError(t, res.err)

	var resp struct {
		Data []store.LimboEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, f.link.Hash(), resp.Data[0].Hash())
	assert.Equal(t, store.StatusAwaitingSysDeps, resp.Data[0].Status)
	assert.Equal(t, uint32(1), resp.Data[0].NumTries)

	res = execute(t, "limbo", "--db", f.db, "--status", "pending")
	require.NoError(t, res.err)
	assert.Equal(t, "validation limbo is empty\n", res.stdout)
}

func TestLimbo_BadStatus(t *testing.T) {
	f := newNodeFixture(t)

	res := execute(t, "limbo", "--db", f.db, "--status", "stuck")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.stdout, `unknown limbo status "stuck"`)
}

func TestRejected_ListsRejectedOps(t *testing.T) {
	f := newNodeFixture(t)

	res := execute(t, "rejected", "--db", f.db)
	require.NoError(t, res.err)
	assert.Equal(t, "no rejected ops\n", res.stdout)

	f.enqueue(t, f.forged, f.activity)
	require.NoError(t, execute(t, "validate", "--db", f.db).err)

	res = execute(t, "rejected", "--db", f.db)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, string(f.forged.Hash()))
	assert.Contains(t, res.stdout, "rejected SIGNATURE_INVALID")
	assert.NotContains(t, res.stdout, string(f.activity.Hash()))

	res = execute(t, "--format", "json", "rejected", "--db", f.db)
	require.NoError(t, res.err)
	var resp struct {
		Data []store.RejectedOp `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, string(sysvalidate.CodeSignatureInvalid), resp.Data[0].Code)
	assert.Equal(t, f.forged.Hash(), resp.Data[0].Op.Hash())
}
