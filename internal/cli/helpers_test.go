package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/store"
	"github.com/roach88/sysval/internal/testutil"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// forumManifest is the manifest shared with the appconfig tests.
var forumManifest = filepath.Join("..", "appconfig", "testdata", "forum.cue")

type result struct {
	stdout string
	stderr string
	err    error
}

// execute runs the root command with args.
func execute(t *testing.T, args ...string) result {
	t.Helper()
	return executeWithInput(t, nil, args...)
}

func executeWithInput(t *testing.T, stdin io.Reader, args ...string) result {
	t.Helper()
	cmd := NewRootCommand()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// nodeFixture is a database holding five headers of one chain, plus the
// ops the tests feed it.
type nodeFixture struct {
	db       string
	dir      string
	activity dht.Op // validates and goes to integration
	link     dht.Op // waits on a base entry nobody holds
	forged   dht.Op // fails its signature check
}

func newNodeFixture(t *testing.T) *nodeFixture {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "node.db")

	c := testutil.NewChain(t, 1)
	c.Genesis()
	for i := 1; i <= 4; i++ {
		c.Create(fmt.Sprintf("entry-%d", i))
	}
	s, err := store.Open(db)
	require.NoError(t, err)
	for _, el := range c.Elements {
		require.NoError(t, s.IntegrateElement(context.Background(), el))
	}
	require.NoError(t, s.Close())

	el := c.Create("entry-5")
	base := testutil.AppEntry("never-stored").Hash()
	linkEl := c.CreateLink(base, el.Header.EntryHash, []byte("likes"))

	forged := testutil.Op(t, dht.OpRegisterAgentActivity, c.CreateLink(base, el.Header.EntryHash, []byte("dislikes")))
	forged.Header.Timestamp++

	return &nodeFixture{
		db:       db,
		dir:      dir,
		activity: testutil.Op(t, dht.OpRegisterAgentActivity, el),
		link:     testutil.Op(t, dht.OpRegisterAddLink, linkEl),
		forged:   forged,
	}
}

// writeOps writes ops as a JSON array and returns the file path.
func (f *nodeFixture) writeOps(t *testing.T, ops ...dht.Op) string {
	t.Helper()
	data, err := json.Marshal(ops)
	require.NoError(t, err)
	file, err := os.CreateTemp(f.dir, "ops-*.json")
	require.NoError(t, err)
	defer file.Close()
	_, err = file.Write(data)
	require.NoError(t, err)
	return file.Name()
}

func (f *nodeFixture) enqueue(t *testing.T, ops ...dht.Op) {
	t.Helper()
	res := execute(t, "enqueue", "--db", f.db, f.writeOps(t, ops...))
	require.NoError(t, res.err, res.stdout)
}

// writeConfig writes a TOML config next to the database.
func (f *nodeFixture) writeConfig(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(f.dir, "node.toml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
