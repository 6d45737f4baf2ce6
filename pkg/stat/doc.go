/*
Package stat provides the statistics nodes that admission decisions read.

A StatisticNode keeps two sliding windows built from lazily recycled
buckets: a second-level window (by default two 500ms buckets) used for QPS
checks, and a minute-level window of sixty one-second buckets. Counters are
updated with atomic adds and buckets are replaced by compare-and-swap the
first time a caller lands in a newer window, so there is no background
sweeper. A concurrency gauge tracks calls that have entered but not exited.

Nodes come in three flavours:

  - ResourceNode aggregates every call to one resource and owns per-origin
    children created on first use.
  - EntryNode counts calls to one resource arriving through one entry point
    and mirrors every write onto the ResourceNode.
  - StatisticNode is the plain counter set used for origins.

A Registry creates and indexes resource and entry nodes:

	reg, _ := stat.NewRegistry(stat.DefaultConfig())
	res, _ := reg.GetOrCreateResourceNode("orders")
	node := reg.GetOrCreateEntryNode(res, "http_ingress")
	node.IncreaseConcurrency()
	node.AddPass(1)
*/
package stat
