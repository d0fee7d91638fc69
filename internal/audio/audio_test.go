package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assetDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sound.mp3"), []byte("ID3"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	return dir
}

func TestMountAndResolve(t *testing.T) {
	dir := assetDir(t)
	src, err := Mount(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, src.Dir())

	path, err := src.Resolve("sound.mp3")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sound.mp3"), path)

	for _, name := range []string{"missing.mp3", "../sound.mp3", "sub"} {
		_, err := src.Resolve(name)
		assert.True(t, errors.Is(err, ErrNoAsset), name)
	}
}

func TestMountFailure(t *testing.T) {
	_, err := Mount(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.Is(err, ErrAudioUnavailable))

	file := filepath.Join(assetDir(t), "sound.mp3")
	_, err = Mount(file)
	assert.True(t, errors.Is(err, ErrAudioUnavailable))
}

func TestProcessPlayerArgs(t *testing.T) {
	p := NewProcessPlayer(nil, nil, zerolog.Nop())
	assert.Equal(t, []string{"mpg123", "-q", "-f", "32768", "/a/b.mp3"}, p.args("/a/b.mp3"))

	require.NoError(t, p.SetVolume(0))
	assert.Equal(t, "0", p.args("x")[3])
	assert.Error(t, p.SetVolume(22))
	assert.Error(t, p.SetPinout(-1, 2, 3))
	assert.NoError(t, p.SetPinout(26, 27, 14))
}

func TestProcessPlayerLifecycle(t *testing.T) {
	src, err := Mount(assetDir(t))
	require.NoError(t, err)

	p := NewProcessPlayer(src, []string{"sleep", "30"}, zerolog.Nop())
	require.NoError(t, p.ConnectToSource("sound.mp3"))
	assert.True(t, p.IsRunning())
	p.Loop()
	assert.True(t, p.IsRunning())

	require.NoError(t, p.StopPlayback())
	assert.False(t, p.IsRunning())
	p.Loop()
	assert.False(t, p.IsRunning())
}

func TestProcessPlayerNoticesExit(t *testing.T) {
	src, err := Mount(assetDir(t))
	require.NoError(t, err)

	p := NewProcessPlayer(src, []string{"true"}, zerolog.Nop())
	require.NoError(t, p.ConnectToSource("sound.mp3"))
	require.Eventually(t, func() bool {
		p.Loop()
		return !p.IsRunning()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestProcessPlayerStartErrors(t *testing.T) {
	src, err := Mount(assetDir(t))
	require.NoError(t, err)

	p := NewProcessPlayer(src, []string{"definitely-not-a-player-binary"}, zerolog.Nop())
	assert.Error(t, p.ConnectToSource("sound.mp3"))
	assert.False(t, p.IsRunning())

	err = p.ConnectToSource("missing.mp3")
	assert.True(t, errors.Is(err, ErrNoAsset))
}

func TestSimPlayerEndsTrack(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewSimPlayer(nil, time.Second, zerolog.Nop())
	p.now = func() time.Time { return now }

	require.NoError(t, p.ConnectToSource("sound.mp3"))
	p.Loop()
	assert.True(t, p.IsRunning())

	now = now.Add(time.Second)
	p.Loop()
	assert.False(t, p.IsRunning())
	assert.Equal(t, 1, p.Starts)

	require.NoError(t, p.ConnectToSource("sound.mp3"))
	require.NoError(t, p.StopPlayback())
	assert.False(t, p.IsRunning())
}

func TestSimPlayerChecksSource(t *testing.T) {
	src, err := Mount(assetDir(t))
	require.NoError(t, err)
	p := NewSimPlayer(src, time.Second, zerolog.Nop())
	assert.True(t, errors.Is(p.ConnectToSource("other.mp3"), ErrNoAsset))
}
