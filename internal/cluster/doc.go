// Package cluster drives the containerised storage/compute cluster.
//
// Admin is a thin command builder over procexec that speaks the cluster's
// administrative CLI through `docker exec <coordinator> hdfs ...` plus a few
// container helpers (copy-in, log tails, process kill). Lifecycle brings the
// compose topology up and down and reports its state.
//
// Neither type retries. Retry budgets belong to the stages that call them.
package cluster
