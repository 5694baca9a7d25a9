package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/likearthian/colstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keepOpen lets one store outlive the commands that close it.
type keepOpen struct {
	colstore.CellStore
}

func (keepOpen) Close() error { return nil }

func run(t *testing.T, store colstore.CellStore, args ...string) (string, error) {
	t.Helper()

	a := newApp()
	a.open = func(context.Context, *colstore.Config) (colstore.CellStore, error) {
		return keepOpen{store}, nil
	}

	var out bytes.Buffer
	cmd := newRootCmd(a)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--backend", colstore.BackendMemory}, args...))

	err := execute(context.Background(), a, cmd)
	return out.String(), err
}

func mustRun(t *testing.T, store colstore.CellStore, args ...string) string {
	t.Helper()
	out, err := run(t, store, args...)
	require.NoError(t, err)
	return out
}

func TestTableCommands(t *testing.T) {
	store := colstore.NewMemoryStore()

	mustRun(t, store, "table", "create", "people")
	mustRun(t, store, "table", "create", "orders")

	_, err := run(t, store, "table", "create", "people")
	assert.True(t, errors.Is(err, colstore.ErrTableExists))

	assert.Equal(t, "orders\npeople\n", mustRun(t, store, "table", "list"))
	assert.Equal(t, "true\n", mustRun(t, store, "table", "exists", "people"))

	mustRun(t, store, "table", "drop", "orders")
	assert.Equal(t, "false\n", mustRun(t, store, "table", "exists", "orders"))

	mustRun(t, store, "flush")
}

func TestCellCommands(t *testing.T) {
	store := colstore.NewMemoryStore()
	mustRun(t, store, "table", "create", "people")

	mustRun(t, store, "put", "people", "alice", "info:name", "Alice", "--timestamp", "10")
	mustRun(t, store, "put", "people", "alice", "info:age", "0x0000001e", "--timestamp", "10")
	mustRun(t, store, "put", "people", "0x00ff", "info:name", "Binary", "--timestamp", "20")

	assert.Equal(t,
		"info:age\t@10\t0x0000001e\ninfo:name\t@10\tAlice\n",
		mustRun(t, store, "get", "people", "alice"))

	assert.Equal(t,
		"info:name\t@10\tAlice\n",
		mustRun(t, store, "get", "people", "alice", "--family", "info", "--qualifier", "name"))

	assert.Equal(t,
		"0x00ff\tinfo:name\t@20\tBinary\nalice\tinfo:name\t@10\tAlice\n",
		mustRun(t, store, "scan", "people", "--family", "info", "--qualifier", "name"))

	assert.Equal(t,
		"0x00ff\tinfo:name\t@20\tBinary\n",
		mustRun(t, store, "scan", "people", "--limit", "1"))

	assert.Equal(t,
		"alice\tinfo:age\t@10\t0x0000001e\nalice\tinfo:name\t@10\tAlice\n",
		mustRun(t, store, "scan", "people", "--start", "a", "--stop", "b"))

	mustRun(t, store, "delete", "people", "alice", "--family", "info", "--qualifier", "age")
	assert.Equal(t, "info:name\t@10\tAlice\n", mustRun(t, store, "get", "people", "alice"))

	mustRun(t, store, "delete", "people", "alice")
	_, err := run(t, store, "get", "people", "alice")
	assert.True(t, errors.Is(err, colstore.ErrRowNotFound))
}

func TestCommandErrors(t *testing.T) {
	store := colstore.NewMemoryStore()
	mustRun(t, store, "table", "create", "people")

	_, err := run(t, store, "put", "people", "r", "name", "v")
	assert.ErrorContains(t, err, "FAMILY:QUALIFIER")

	_, err = run(t, store, "put", "people", "0xzz", "info:name", "v")
	assert.ErrorContains(t, err, "invalid hex")

	_, err = run(t, store, "get", "people", "r", "--qualifier", "name")
	assert.ErrorContains(t, err, "--qualifier needs --family")

	_, err = run(t, store, "get", "missing", "r")
	assert.True(t, errors.Is(err, colstore.ErrTableNotFound))

	_, err = run(t, store, "--log-level", "loud", "table", "list")
	assert.Error(t, err)
}

func TestRootCommand_backendFlags(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(newApp())
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--backend", colstore.BackendMemory, "table", "list"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Empty(t, out.String())

	cmd = newRootCmd(newApp())
	cmd.SetArgs([]string{"--backend", "hbase", "table", "list"})
	assert.ErrorContains(t, cmd.ExecuteContext(context.Background()), "invalid configuration")

	cmd = newRootCmd(newApp())
	cmd.SetArgs([]string{"--dir", t.TempDir(), "table", "create", "t"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
}

func TestImportCommand(t *testing.T) {
	store := colstore.NewMemoryStore()
	mustRun(t, store, "table", "create", "people")

	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte("row,column,value,timestamp\nalice,info:name,Alice,5\n0x01,info:name,One,\n"), 0o644))

	assert.Equal(t, "imported 2 cells\n", mustRun(t, store, "import", "people", path, "--header"))
	assert.Equal(t, "info:name\t@5\tAlice\n", mustRun(t, store, "get", "people", "alice"))

	_, err := run(t, store, "import", "people", path)
	assert.ErrorContains(t, err, "imported 0 cells")
}

type countingStore struct {
	colstore.CellStore
	closes int
}

func (s *countingStore) Close() error {
	s.closes++
	return nil
}

func TestExecute_closesStore(t *testing.T) {
	store := &countingStore{CellStore: colstore.NewMemoryStore()}

	for _, args := range [][]string{
		{"table", "create", "people"},
		{"get", "people", "missing"},
		{"get", "nowhere", "missing"},
	} {
		a := newApp()
		a.open = func(context.Context, *colstore.Config) (colstore.CellStore, error) {
			return store, nil
		}

		cmd := newRootCmd(a)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--backend", colstore.BackendMemory}, args...))

		before := store.closes
		_ = execute(context.Background(), a, cmd)
		assert.Equal(t, before+1, store.closes, strings.Join(args, " "))
	}
}

func TestIDCommand(t *testing.T) {
	store := colstore.NewMemoryStore()

	lines := strings.Fields(mustRun(t, store, "id", "--count", "3"))
	require.Len(t, lines, 3)
	prev := int64(0)
	for _, l := range lines {
		id, err := strconv.ParseInt(l, 10, 64)
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}

	assert.Len(t, strings.TrimSpace(mustRun(t, store, "id", "--policy", "assign_uuid")), 32)
	assert.Len(t, strings.TrimSpace(mustRun(t, store, "id", "--policy", "assign_ksuid")), 27)

	_, err := run(t, store, "id", "--policy", "input")
	assert.ErrorContains(t, err, "does not generate keys")

	_, err = run(t, store, "id", "--policy", "auto")
	assert.Error(t, err)
}

func TestIDCommand_configuredSnowflake(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: memory\nsnowflake:\n  datacenter_id: 2\n  worker_id: 9\n"), 0o644))

	out := mustRun(t, colstore.NewMemoryStore(), "--config", path, "id")
	id, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	require.NoError(t, err)
	assert.Equal(t, int64(9), (id>>12)&31)
	assert.Equal(t, int64(2), (id>>17)&31)
}
