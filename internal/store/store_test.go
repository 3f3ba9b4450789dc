package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testUser struct {
	ID       string
	Username string
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "horcrux.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertGetDelete(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(func(tx *Tx) error {
		return tx.Insert(BucketUsers, "u1", &testUser{ID: "u1", Username: "ada"})
	})
	require.NoError(t, err)

	var got testUser
	err = s.View(func(tx *Tx) error {
		return tx.Get(BucketUsers, "u1", &got)
	})
	require.NoError(t, err)
	require.Equal(t, "ada", got.Username)

	err = s.Update(func(tx *Tx) error {
		return tx.Delete(BucketUsers, "u1")
	})
	require.NoError(t, err)

	err = s.View(func(tx *Tx) error {
		return tx.Get(BucketUsers, "u1", &got)
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUniqueUsernameConstraint(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(func(tx *Tx) error {
		if err := tx.Reserve(BucketUsers, "username", "ada", "u1"); err != nil {
			return err
		}
		return tx.Insert(BucketUsers, "u1", &testUser{ID: "u1", Username: "ada"})
	})
	require.NoError(t, err)

	err = s.Update(func(tx *Tx) error {
		if err := tx.Reserve(BucketUsers, "username", "ada", "u2"); err != nil {
			return err
		}
		return tx.Insert(BucketUsers, "u2", &testUser{ID: "u2", Username: "ada"})
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestListRoundTrip(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(func(tx *Tx) error {
		for _, u := range []testUser{{ID: "u1", Username: "ada"}, {ID: "u2", Username: "grace"}} {
			if err := tx.Insert(BucketUsers, u.ID, &u); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var names []string
	err = s.View(func(tx *Tx) error {
		return List(tx, BucketUsers, func(key string, v *testUser) error {
			names = append(names, v.Username)
			return nil
		})
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ada", "grace"}, names)
}

func TestSchemaMismatchFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "horcrux.db")
	s, err := Open(path)
	require.NoError(t, err)
	err = s.Update(func(tx *Tx) error {
		return tx.Put(bucketMeta, string(keySchemaVersion), nil)
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Corrupt the stored schema version directly and reopen.
	s2, err := Open(path)
	if err == nil {
		s2.Close()
	}
	// "null" (from Put(..., nil)) is not parseable as an integer schema version.
	require.Error(t, err)
}
