package kernel

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSafeWriteWithRetry(t *testing.T) {
	k := New()
	dir := t.TempDir()

	t.Run("overwrites existing file", func(t *testing.T) {
		p := path.Join(dir, "param")
		require.NoError(t, os.WriteFile(p, []byte("old content"), 0644))

		n, err := k.SafeWriteWithRetry(3, "42", p)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		// 覆写而不是追加
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, "42", string(data))
	})

	t.Run("never creates the file", func(t *testing.T) {
		p := path.Join(dir, "missing")
		_, err := k.SafeWriteWithRetry(3, "42", p)
		assert.ErrorIs(t, err, ErrOpen)
		assert.NoFileExists(t, p)
	})

}

func TestReadFileToString(t *testing.T) {
	k := New()
	dir := t.TempDir()

	p := path.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, []byte("hello\n"), 0644))

	content, ok := k.ReadFileToString(p)
	assert.True(t, ok)
	assert.Equal(t, "hello\n", content)

	_, ok = k.ReadFileToString(path.Join(dir, "missing"))
	assert.False(t, ok)
}

func TestOpenLines(t *testing.T) {
	k := New()
	dir := t.TempDir()

	p := path.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, []byte("one\ntwo\nthree\n"), 0644))

	ls, err := k.OpenLines(p)
	require.NoError(t, err)
	defer ls.Close()

	var lines []string
	for ls.Scan() {
		lines = append(lines, ls.Text())
	}
	require.NoError(t, ls.Err())
	assert.Equal(t, []string{"one", "two", "three"}, lines)

	_, err = k.OpenLines(path.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestReadSubdirs(t *testing.T) {
	k := New()
	dir := t.TempDir()

	names, err := k.ReadSubdirs(dir)
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, os.Mkdir(path.Join(dir, "a"), 0755))
	require.NoError(t, os.Mkdir(path.Join(dir, "b"), 0755))
	// 普通文件不算子目录
	require.NoError(t, os.WriteFile(path.Join(dir, "tasks"), nil, 0644))

	names, err = k.ReadSubdirs(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestMkDirRmDir(t *testing.T) {
	k := New()
	dir := t.TempDir()

	p := path.Join(dir, "sub")
	require.NoError(t, k.MkDir(p))
	assert.True(t, k.Access(p, unix.F_OK))

	// 已存在时错误满足 os.IsExist
	err := k.MkDir(p)
	assert.True(t, os.IsExist(err))

	require.NoError(t, k.RmDir(p))
	assert.False(t, k.Access(p, unix.F_OK))
	assert.True(t, os.IsNotExist(k.RmDir(p)))
}

func TestEventfdEpollRoundTrip(t *testing.T) {
	k := New()

	epfd, err := k.EpollCreate()
	require.NoError(t, err)
	defer k.Close(epfd)

	efd, err := k.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	require.NoError(t, err)
	defer k.Close(efd)

	require.NoError(t, k.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(efd),
	}))

	one := []byte{1, 0, 0, 0, 0, 0, 0, 0}
	_, err = k.Write(efd, one)
	require.NoError(t, err)

	events := make([]unix.EpollEvent, 4)
	n, err := k.EpollWait(epfd, events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, int32(efd), events[0].Fd)

	// 读掉计数后 fd 回到未就绪
	var buf [8]byte
	_, err = k.Read(efd, buf[:])
	require.NoError(t, err)
	n, err = k.EpollWait(epfd, events, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
