package harness

import (
	"context"
	"errors"
	"go/parser"
	"go/token"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentbridge/core"
)

func TestFixedReasoner(t *testing.T) {
	ctx := context.Background()

	r := planReasoner(core.Step{Action: core.ActionRespond, Target: "a"})
	plan, err := r.Plan(ctx, core.PlanRequest{Input: "x"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	plan.Steps[0].Target = "changed"
	again, err := r.Plan(ctx, core.PlanRequest{Input: "x"})
	require.NoError(t, err)
	assert.Equal(t, "a", again.Steps[0].Target, "plans are copied out")
	assert.EqualValues(t, 2, r.planCalls())

	boom := errors.New("boom")
	_, err = failingReasoner(boom).Plan(ctx, core.PlanRequest{})
	assert.ErrorIs(t, err, boom)

	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = blockingReasoner().Plan(cctx, core.PlanRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHarness_ShipsWithoutTestHelpers(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)

	fset := token.NewFileSet()
	for _, name := range files {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		require.NoError(t, err)
		for _, imp := range f.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			require.NoError(t, err)
			assert.NotContains(t, path, "internal/testutil", "%s imports %s", name, path)
		}
	}
}
