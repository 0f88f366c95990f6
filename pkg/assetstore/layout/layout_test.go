package layout

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

func TestNew(t *testing.T) {
	l, err := New("/store", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultShardLength, l.ShardLength)

	_, err = New("/store", 5)
	assert.Error(t, err)

	_, err = New("", 2)
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	d := digest.SHA256().Sum([]byte("hello"))
	s := d.String()

	l, err := New("/store", 2)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/store", s[:2], s[2:]), l.Path(d))
	assert.Equal(t, filepath.Join("/store", s[:2]), l.ShardDir(d))
	assert.Equal(t, l.Path(d)+".meta", l.SidecarPath(d))
	assert.Equal(t, filepath.Join("/store", ".tmp"), l.TempDir())
	assert.Equal(t, "assets/"+s[:2]+"/"+s[2:], l.Key("assets", d))
	assert.Equal(t, s[:2]+"/"+s[2:], l.Key("", d))

	l3, err := New("/store", 3)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/store", s[:3], s[3:]), l3.Path(d))
}

func TestParseEntry(t *testing.T) {
	d := digest.SHA256().Sum([]byte("hello"))
	s := d.String()
	l, err := New("/store", 2)
	require.NoError(t, err)

	got, ok := l.ParseEntry(s[:2], s[2:])
	require.True(t, ok)
	assert.Equal(t, d, got)

	_, ok = l.ParseEntry(s[:2], s[2:]+SidecarExt)
	assert.False(t, ok)

	_, ok = l.ParseEntry(TempDirName, s[2:])
	assert.False(t, ok)

	_, ok = l.ParseEntry(s[:3], s[3:])
	assert.False(t, ok)

	_, ok = l.ParseEntry("zz", s[2:])
	assert.False(t, ok)
}

func TestParseKey(t *testing.T) {
	d := digest.SHA256().Sum([]byte("hello"))
	l, err := New("/store", 2)
	require.NoError(t, err)

	got, ok := l.ParseKey("assets/", l.Key("assets", d))
	require.True(t, ok)
	assert.Equal(t, d, got)

	got, ok = l.ParseKey("", l.Key("", d))
	require.True(t, ok)
	assert.Equal(t, d, got)

	_, ok = l.ParseKey("assets", "assets/readme.txt")
	assert.False(t, ok)
}
