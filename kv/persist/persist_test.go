package persist

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cplane-io/tinyxs/kv/store"
	"github.com/cplane-io/tinyxs/kv/transaction"
)

func testLog(t *testing.T) (*Log, func()) {
	dir, err := ioutil.TempDir("", "tinyxs-persist")
	require.Nil(t, err)
	l, err := Open(dir)
	require.Nil(t, err)
	return l, func() {
		l.Close()
		os.RemoveAll(dir)
	}
}

func TestAppendAndReadBack(t *testing.T) {
	l, cleanup := testLog(t)
	defer cleanup()

	live := store.New(store.NewQuota(100, 512))
	cred := store.Cred{Dom: 0}
	committer := transaction.NewCommitter(live, nil, nil)

	txn := transaction.Open(1, live)
	require.Nil(t, txn.Write(cred, "/a/b", []byte("v")))
	require.True(t, committer.Commit(cred, txn))
	require.Nil(t, l.Append(live, txn.SideEffects()))

	val, ok, err := l.ReadPath("/a/b")
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	// The implicit directory was persisted too.
	_, ok, err = l.ReadPath("/a")
	require.Nil(t, err)
	assert.True(t, ok)

	seq, err := l.Seq()
	require.Nil(t, err)
	assert.Equal(t, uint64(1), seq)
}

func TestDeleteTombstones(t *testing.T) {
	l, cleanup := testLog(t)
	defer cleanup()

	live := store.New(store.NewQuota(100, 512))
	cred := store.Cred{Dom: 0}
	committer := transaction.NewCommitter(live, nil, nil)

	t1 := transaction.Open(1, live)
	require.Nil(t, t1.Write(cred, "/x", []byte("1")))
	require.True(t, committer.Commit(cred, t1))
	require.Nil(t, l.Append(live, t1.SideEffects()))

	t2 := transaction.Open(2, live)
	require.Nil(t, t2.Rm(cred, "/x"))
	require.True(t, committer.Commit(cred, t2))
	require.Nil(t, l.Append(live, t2.SideEffects()))

	_, ok, err := l.ReadPath("/x")
	require.Nil(t, err)
	assert.False(t, ok)

	seq, err := l.Seq()
	require.Nil(t, err)
	assert.Equal(t, uint64(2), seq)
}

func TestMissingPathNotFound(t *testing.T) {
	l, cleanup := testLog(t)
	defer cleanup()

	_, ok, err := l.ReadPath("/never")
	require.Nil(t, err)
	assert.False(t, ok)

	seq, err := l.Seq()
	require.Nil(t, err)
	assert.Equal(t, uint64(0), seq)
}
