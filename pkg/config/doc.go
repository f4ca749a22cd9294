/*
Package config loads the public parameters a murmesh deployment's replicas,
clients, and search runs must agree on out of band.

# Document shape

	apiVersion: murmesh/v1
	kind: PublicParameters
	metadata:
	  name: four-replica-local
	spec:
	  numReplica: 4
	  numFaulty: 1
	  replicaAddrs: ["127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003", "127.0.0.1:9004"]
	  resendInterval: 100ms
	  viewChangeInterval: 1s
	  batchSizeOrTrigger: 1
	  cryptoFlavor: plain
	  dataDir: ./murmesh-data
	  metricsAddr: 127.0.0.1:9090
	  search:
	    maxDepth: 1000
	    numWorker: 4

# Usage

	params, err := config.Load("cluster.yaml")
	if err != nil {
		log.Fatal(err)
	}

Load validates numReplica = 3*numFaulty+1, that replicaAddrs has exactly
numReplica entries, and fills in defaults for anything left zero.
*/
package config
