package cgroup

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m-contain/libcontainer/cgerrors"
	"m-contain/libcontainer/kernel"
)

func newTestHierarchy(t *testing.T) *Hierarchy {
	t.Helper()
	return NewHierarchy(kernel.New(), t.TempDir())
}

func mkdirAll(t *testing.T, parts ...string) string {
	t.Helper()
	p := path.Join(parts...)
	require.NoError(t, os.MkdirAll(p, 0755))
	return p
}

func TestResolveIdentity(t *testing.T) {
	h := newTestHierarchy(t)
	want := mkdirAll(t, h.Root(), "foo")

	got, err := h.Resolve("/foo")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = h.Resolve("/missing")
	assert.ErrorIs(t, err, cgerrors.ErrNotFound)
}

func TestResolveWithBatchProbeOrder(t *testing.T) {
	// 四个候选按固定顺序探测，第一个存在的获胜
	t.Run("direct wins over batch", func(t *testing.T) {
		h := newTestHierarchy(t)
		direct := mkdirAll(t, h.Root(), "foo")
		mkdirAll(t, h.Root(), "batch/foo")

		got, err := h.ResolveWithBatch("/foo")
		require.NoError(t, err)
		assert.Equal(t, direct, got)
	})

	t.Run("batch fallback", func(t *testing.T) {
		h := newTestHierarchy(t)
		batched := mkdirAll(t, h.Root(), "batch/foo")

		got, err := h.ResolveWithBatch("/foo")
		require.NoError(t, err)
		assert.Equal(t, batched, got)
	})

	t.Run("stripped first segment", func(t *testing.T) {
		h := newTestHierarchy(t)
		stripped := mkdirAll(t, h.Root(), "task")

		got, err := h.ResolveWithBatch("/alloc/task")
		require.NoError(t, err)
		assert.Equal(t, stripped, got)
	})

	t.Run("stripped batch is last", func(t *testing.T) {
		h := newTestHierarchy(t)
		strippedBatch := mkdirAll(t, h.Root(), "batch/task")

		got, err := h.ResolveWithBatch("/alloc/task")
		require.NoError(t, err)
		assert.Equal(t, strippedBatch, got)
	})

	t.Run("top-level name never strips", func(t *testing.T) {
		h := newTestHierarchy(t)
		// 首段剥离只对嵌套超过一层的名字生效
		_, err := h.ResolveWithBatch("/foo")
		assert.ErrorIs(t, err, cgerrors.ErrNotFound)
	})

	t.Run("nothing anywhere", func(t *testing.T) {
		h := newTestHierarchy(t)
		_, err := h.ResolveWithBatch("/alloc/task")
		assert.ErrorIs(t, err, cgerrors.ErrNotFound)
	})
}

func TestResolveWithBatchDeterministic(t *testing.T) {
	// 同一组目录反复解析必须给出同一个答案
	h := newTestHierarchy(t)
	mkdirAll(t, h.Root(), "batch/alloc/task")
	mkdirAll(t, h.Root(), "task")

	first, err := h.ResolveWithBatch("/alloc/task")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		got, err := h.ResolveWithBatch("/alloc/task")
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestCreateTarget(t *testing.T) {
	t.Run("top-level default root", func(t *testing.T) {
		h := newTestHierarchy(t)
		got, err := h.CreateTarget("/foo", false)
		require.NoError(t, err)
		assert.Equal(t, h.Path("/foo"), got)
	})

	t.Run("top-level batch root", func(t *testing.T) {
		h := newTestHierarchy(t)
		got, err := h.CreateTarget("/foo", true)
		require.NoError(t, err)
		assert.Equal(t, h.BatchPath("/foo"), got)
	})

	t.Run("nested inherits resolved parent root", func(t *testing.T) {
		h := newTestHierarchy(t)
		parent := mkdirAll(t, h.Root(), "batch/alloc")

		// 嵌套容器无条件落在父容器解析出的根下，自己的 batch 声明被忽略
		got, err := h.CreateTarget("/alloc/task", false)
		require.NoError(t, err)
		assert.Equal(t, path.Join(parent, "task"), got)

		got, err = h.CreateTarget("/alloc/task", true)
		require.NoError(t, err)
		assert.Equal(t, path.Join(parent, "task"), got)
	})

	t.Run("nested with missing parent", func(t *testing.T) {
		h := newTestHierarchy(t)
		_, err := h.CreateTarget("/alloc/task", false)
		assert.ErrorIs(t, err, cgerrors.ErrNotFound)
	})
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"/", "/foo", "/foo/bar", "/a/b/c"} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", "foo", "relative/path", "/foo/", "/foo//bar", "/foo/./bar", "/foo/../bar"} {
		assert.ErrorIs(t, ValidateName(name), cgerrors.ErrInvalidArgument, name)
	}
}

func TestRelativeOf(t *testing.T) {
	h := newTestHierarchy(t)
	assert.Equal(t, "/", h.RelativeOf(h.Root()))
	assert.Equal(t, "/batch/foo", h.RelativeOf(path.Join(h.Root(), "batch/foo")))
}

func TestStripFirstSegment(t *testing.T) {
	assert.Equal(t, "/task", stripFirstSegment("/alloc/task"))
	assert.Equal(t, "/b/c", stripFirstSegment("/a/b/c"))
	assert.Equal(t, "/", stripFirstSegment("/alloc"))
}
