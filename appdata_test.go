package shr_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	shr "github.com/paultag/go-shr"
)

func TestAppDataRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ring")
	require.NoError(t, shr.Init(path, 64, shr.FlagAppData, shr.WithAppData([]byte("meta"))))

	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	data, err := r.AppData()
	require.NoError(t, err)
	require.Equal(t, "meta", string(data))

	w, err := shr.Open(path, shr.OpenWROnly)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.SetAppData([]byte("new!")))

	data, err = r.AppData()
	require.NoError(t, err)
	require.Equal(t, "new!", string(data))
}

func TestAppDataRequiresFlag(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ring")
	require.NoError(t, shr.Init(path, 64, 0))

	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.AppData()
	require.ErrorIs(t, err, shr.ErrInvalid)
}

func TestSetAppDataRejectsOversizedBlob(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ring")
	require.NoError(t, shr.Init(path, 64, shr.FlagAppData, shr.WithAppData([]byte("ab"))))

	w, err := shr.Open(path, shr.OpenWROnly)
	require.NoError(t, err)
	defer w.Close()

	err = w.SetAppData([]byte("way too long"))
	require.ErrorIs(t, err, shr.ErrInvalid)
}

func TestSetAppDataRejectsReadOnlyHandle(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ring")
	require.NoError(t, shr.Init(path, 64, shr.FlagAppData, shr.WithAppData([]byte("ab"))))

	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	err = r.SetAppData([]byte("cd"))
	require.ErrorIs(t, err, shr.ErrReadOnly)
}
