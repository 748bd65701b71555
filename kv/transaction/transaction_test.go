package transaction

import (
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cplane-io/tinyxs/kv/store"
)

func testLive() *store.Store {
	return store.New(store.NewQuota(100, 512))
}

func dom0() store.Cred { return store.Cred{Dom: 0} }

func TestOpenDirect(t *testing.T) {
	live := testLive()
	txn := Open(None, live)
	assert.False(t, txn.Isolated())
	assert.Equal(t, None, txn.ID())
}

func TestOpenIsolated(t *testing.T) {
	live := testLive()
	txn := Open(7, live)
	assert.True(t, txn.Isolated())
	assert.Equal(t, uint64(7), txn.ID())
}

func TestDirectWritesHitLiveStore(t *testing.T) {
	live := testLive()
	txn := Open(None, live)
	require.Nil(t, txn.Write(dom0(), "/a", []byte("1")))

	// No commit yet, but the live store already has the value.
	val, err := live.Read(dom0(), "/a")
	require.Nil(t, err)
	assert.Equal(t, []byte("1"), val)
}

func TestIsolatedWritesStayPrivate(t *testing.T) {
	live := testLive()
	txn := Open(1, live)
	require.Nil(t, txn.Write(dom0(), "/a", []byte("1")))

	assert.False(t, live.Exists("/a"))
	assert.True(t, txn.Exists("/a"))
}

func TestWriteLogsAndWatches(t *testing.T) {
	live := testLive()
	txn := Open(1, live)
	require.Nil(t, txn.Write(dom0(), "/foo/bar", []byte("v")))

	se := txn.SideEffects()
	assert.Equal(t, []string{"/foo", "/foo/bar"}, se.Writes)
	assert.Empty(t, se.Deletes)
	assert.Equal(t, []WatchEvent{{Op: WatchOpWrite, Path: "/foo/bar"}}, se.Watches)
}

func TestImplicitDirsAreSilent(t *testing.T) {
	live := testLive()
	txn := Open(1, live)
	require.Nil(t, txn.Write(dom0(), "/a/b/c", []byte("v")))

	se := txn.SideEffects()
	assert.Equal(t, []string{"/a", "/a/b", "/a/b/c"}, se.Writes)
	// Exactly one watch event, for the leaf only.
	assert.Equal(t, []WatchEvent{{Op: WatchOpWrite, Path: "/a/b/c"}}, se.Watches)
}

func TestMkdirWatchesLeafOnly(t *testing.T) {
	live := testLive()
	txn := Open(1, live)
	require.Nil(t, txn.Mkdir(dom0(), "/x/y"))

	se := txn.SideEffects()
	assert.Equal(t, []string{"/x", "/x/y"}, se.Writes)
	assert.Equal(t, []WatchEvent{{Op: WatchOpMkdir, Path: "/x/y"}}, se.Watches)
}

func TestMkdirExistingIsSilent(t *testing.T) {
	live := testLive()
	txn := Open(1, live)
	require.Nil(t, txn.Mkdir(dom0(), "/x"))
	require.Nil(t, txn.Mkdir(dom0(), "/x"))

	se := txn.SideEffects()
	assert.Equal(t, []string{"/x"}, se.Writes)
	assert.Len(t, se.Watches, 1)
}

func TestRmLogsWriteAndDelete(t *testing.T) {
	live := testLive()
	require.Nil(t, live.Write(dom0(), "/doomed", nil))

	txn := Open(1, live)
	require.Nil(t, txn.Rm(dom0(), "/doomed"))

	se := txn.SideEffects()
	assert.Equal(t, []string{"/doomed"}, se.Writes)
	assert.Equal(t, []string{"/doomed"}, se.Deletes)
	assert.Equal(t, []WatchEvent{{Op: WatchOpRm, Path: "/doomed"}}, se.Watches)
}

func TestSetPermsLogged(t *testing.T) {
	live := testLive()
	require.Nil(t, live.Write(dom0(), "/n", nil))

	txn := Open(1, live)
	require.Nil(t, txn.SetPerms(dom0(), "/n", []store.Perm{{ID: 0, Access: store.AccessRead}}))

	se := txn.SideEffects()
	assert.Equal(t, []string{"/n"}, se.Writes)
	assert.Equal(t, []WatchEvent{{Op: WatchOpSetPerms, Path: "/n"}}, se.Watches)
}

func TestReadsRecordNoSideEffects(t *testing.T) {
	live := testLive()
	require.Nil(t, live.Write(dom0(), "/a", []byte("1")))

	txn := Open(1, live)
	_, err := txn.Read(dom0(), "/a")
	require.Nil(t, err)
	_, err = txn.Ls(dom0(), "/")
	require.Nil(t, err)
	txn.Exists("/a")
	_, err = txn.GetPerms(dom0(), "/a")
	require.Nil(t, err)

	se := txn.SideEffects()
	assert.Empty(t, se.Writes)
	assert.Empty(t, se.Deletes)
	assert.Empty(t, se.Watches)
	assert.True(t, se.Empty())
}

func TestStoreErrorsPropagate(t *testing.T) {
	live := testLive()
	require.Nil(t, live.Write(dom0(), "/priv", []byte("x")))

	txn := Open(1, live)
	err := txn.Write(store.Cred{Dom: 9}, "/priv", []byte("y"))
	assert.Equal(t, store.ErrPermissionDenied, errors.Cause(err))
	// The failed write leaves no trace in the side-effect log.
	assert.True(t, txn.SideEffects().Empty())
}

func TestJournalIndependentOfSideEffects(t *testing.T) {
	live := testLive()
	txn := Open(1, live)

	txn.RecordOperation("read /a", "ENOENT")
	txn.RecordOperation("read /b", "ENOENT")

	assert.True(t, txn.SideEffects().Empty())
	ops := txn.DrainOperations()
	require.Len(t, ops, 2)
	assert.Equal(t, "read /a", ops[0].Request)
	assert.Equal(t, "read /b", ops[1].Request)
	assert.Empty(t, txn.DrainOperations())
}
