package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const instance = `{"coordSystem":"cartesian",
"nodes":[{"id":"d","role":"depot","location":{"x":0,"y":0}},{"id":"c","location":{"x":3,"y":4}}],
"requests":[{"id":"r","sender":"d","receiver":"c","quantity":2}],
"vehicles":[{"id":"v","capacity":5,"start":"d","end":"d"}]}`

const square = "NAME : sq\nDIMENSION : 4\nCAPACITY : 10\nEDGE_WEIGHT_TYPE : EUC_2D\nNODE_COORD_SECTION\n1 0 0\n2 0 3\n3 4 3\n4 4 0\nDEMAND_SECTION\n1 0\n2 1\n3 1\n4 1\nDEPOT_SECTION\n1\n-1\nEOF\n"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.RunContext(context.Background(), append([]string{"vrpsolve"}, args...))
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSolveJSON(t *testing.T) {
	path := writeFile(t, "tiny.json", instance)
	out, err := run(t, "solve", "--json", "--seed", "7", "--generations", "20", "--workers", "1", path)
	require.NoError(t, err)

	var rep solveReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Equal(t, "tiny", rep.Instance)
	require.True(t, rep.Solution.Feasible)
	require.Empty(t, rep.Solution.Unassigned)
	require.Len(t, rep.Solution.Routes, 1)
	require.InDelta(t, 10, rep.Solution.Distance, 1e-9)
	require.Equal(t, uint64(7), rep.Solution.Seed)
}

func TestSolveText(t *testing.T) {
	path := writeFile(t, "tiny.json", instance)
	out, err := run(t, "solve", "--seed", "1", "--generations", "5", path)
	require.NoError(t, err)
	require.Contains(t, out, "VEHICLE")
	require.Contains(t, out, "feasible:    true")
	require.Contains(t, out, "host:")
}

func TestSolveErrors(t *testing.T) {
	_, err := run(t, "solve")
	require.Error(t, err)

	_, err = run(t, "solve", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := writeFile(t, "tiny.json", instance)
	_, err = run(t, "solve", "--format", "nope", path)
	require.Error(t, err)
}

func TestTSPCommand(t *testing.T) {
	path := writeFile(t, "sq.vrp", square)
	out, err := run(t, "tsp", "--json", "--seed", "2", "--generations", "30", path)
	require.NoError(t, err)

	var rep tspReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Equal(t, "sq", rep.Instance)
	require.InDelta(t, 14, rep.Cost, 1e-9)
	require.Equal(t, "1", rep.Tour[0])
	require.Subset(t, rep.Tour, []string{"1", "2", "3", "4"})
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "vrpsolve dev")
}
