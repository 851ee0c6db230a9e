package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legout/flowerpower/internal/fs"
)

func newTestRegistry() (*Registry, *fs.Memory) {
	memfs := fs.NewMemory()
	return New(memfs, "pipelines", "conf", "hooks"), memfs
}

func TestNewPipelineCreatesBothFiles(t *testing.T) {
	r, memfs := newTestRegistry()
	require.NoError(t, r.NewPipeline("hello", false))
	assert.True(t, memfs.Exists("pipelines/hello.py"))
	assert.True(t, memfs.Exists("conf/pipelines/hello.yml"))
}

func TestNewPipelineFailsIfExistsWithoutOverwrite(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.NewPipeline("hello", false))
	require.Error(t, r.NewPipeline("hello", false))
}

func TestNewPipelineOverwriteSucceeds(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.NewPipeline("hello", false))
	require.NoError(t, r.NewPipeline("hello", true))
}

func TestNewPipelineRejectsBadName(t *testing.T) {
	r, _ := newTestRegistry()
	require.Error(t, r.NewPipeline("99-bad", false))
}

func TestDeleteMissingFileDoesNotFail(t *testing.T) {
	r, _ := newTestRegistry()
	assert.NotPanics(t, func() { r.Delete("ghost", true, true) })
}

func TestListPipelines(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.NewPipeline("a", false))
	require.NoError(t, r.NewPipeline("b", false))

	listings, err := r.ListPipelines()
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "a", listings[0].Name)
	assert.Equal(t, "b", listings[1].Name)
}

func TestGetSummaryForAllPipelines(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.NewPipeline("a", false))

	summaries, err := r.GetSummary("", true, true)
	require.NoError(t, err)
	require.Contains(t, summaries, "a")
	assert.NotEmpty(t, summaries["a"].Source)
	require.NotNil(t, summaries["a"].Config)
}

func TestGetSummaryMissingPipelineFails(t *testing.T) {
	r, _ := newTestRegistry()
	_, err := r.GetSummary("missing", true, false)
	require.Error(t, err)
}

func TestAddHookAppendsTemplate(t *testing.T) {
	r, memfs := newTestRegistry()
	require.NoError(t, r.AddHook("hello", "on_success", "", ""))
	raw, err := memfs.ReadFile("hooks/hello/hook.py")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "def on_on_success")
}
