package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/murmesh/pkg/xcrypto"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadParsesCompleteDocument(t *testing.T) {
	path := writeConfig(t, `
apiVersion: murmesh/v1
kind: PublicParameters
metadata:
  name: four-replica
spec:
  numReplica: 4
  numFaulty: 1
  replicaAddrs: ["127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003", "127.0.0.1:9004"]
  resendInterval: 250ms
  viewChangeInterval: 2s
  batchSizeOrTrigger: 8
  cryptoFlavor: secp256k1
  dataDir: /tmp/data
  metricsAddr: 127.0.0.1:9191
  search:
    maxDepth: 500
    numWorker: 2
`)

	params, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, params.NumReplica)
	assert.Equal(t, 1, params.NumFaulty)
	assert.Len(t, params.ReplicaAddrs, 4)
	assert.Equal(t, "/tmp/data", params.DataDir)
	assert.Equal(t, "127.0.0.1:9191", params.MetricsAddr)
	assert.Equal(t, 500, params.Search.MaxDepth)
	assert.Equal(t, 2, params.Search.NumWorker)

	flavor, err := params.CryptoFlavorValue()
	require.NoError(t, err)
	assert.Equal(t, xcrypto.Secp256k1, flavor)
}

func TestLoadFillsDefaultsForZeroFields(t *testing.T) {
	path := writeConfig(t, `
apiVersion: murmesh/v1
kind: PublicParameters
metadata:
  name: minimal
spec:
  numReplica: 4
  numFaulty: 1
  replicaAddrs: ["a:1", "b:1", "c:1", "d:1"]
`)

	params, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./murmesh-data", params.DataDir)
	assert.Equal(t, "127.0.0.1:9090", params.MetricsAddr)
	assert.Equal(t, 4, params.Search.NumWorker)
	assert.Equal(t, 1000, params.Search.MaxDepth)
}

func TestLoadRejectsInconsistentQuorumSize(t *testing.T) {
	path := writeConfig(t, `
apiVersion: murmesh/v1
kind: PublicParameters
metadata:
  name: bad
spec:
  numReplica: 4
  numFaulty: 2
  replicaAddrs: ["a:1", "b:1", "c:1", "d:1"]
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMismatchedAddressCount(t *testing.T) {
	path := writeConfig(t, `
apiVersion: murmesh/v1
kind: PublicParameters
metadata:
  name: bad
spec:
  numReplica: 4
  numFaulty: 1
  replicaAddrs: ["a:1", "b:1"]
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownCryptoFlavor(t *testing.T) {
	path := writeConfig(t, `
apiVersion: murmesh/v1
kind: PublicParameters
metadata:
  name: bad
spec:
  numReplica: 4
  numFaulty: 1
  replicaAddrs: ["a:1", "b:1", "c:1", "d:1"]
  cryptoFlavor: rot13
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnsupportedKind(t *testing.T) {
	path := writeConfig(t, `
apiVersion: murmesh/v1
kind: Service
metadata:
  name: bad
spec:
  numReplica: 4
  numFaulty: 1
  replicaAddrs: ["a:1", "b:1", "c:1", "d:1"]
`)

	_, err := Load(path)
	assert.Error(t, err)
}
