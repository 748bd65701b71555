package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cplane-io/tinyxs/kv/store"
	"github.com/cplane-io/tinyxs/kv/transaction"
)

func TestStatusEndpoint(t *testing.T) {
	svr, _ := testServer(nil)
	sess := svr.OpenSession(store.Cred{Dom: 0})
	require.Nil(t, svr.Write(sess, transaction.None, "/a", []byte("v")))
	ts := httptest.NewServer(svr.StatusHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.Nil(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info statusInfo
	require.Nil(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, 1, info.Sessions)
	assert.Equal(t, 1, info.OwnedNodes[0])
}

func TestDumpEndpoint(t *testing.T) {
	svr, _ := testServer(nil)
	sess := svr.OpenSession(store.Cred{Dom: 0})
	require.Nil(t, svr.Write(sess, transaction.None, "/a/b", []byte("v")))

	ts := httptest.NewServer(svr.StatusHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/dump")
	require.Nil(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dump map[string]string
	require.Nil(t, json.NewDecoder(resp.Body).Decode(&dump))
	assert.Equal(t, "v", dump["/a/b"])
	_, hasRoot := dump["/"]
	assert.True(t, hasRoot)
}
