package tinyxs

/*
TinyXS is a hierarchical key/value configuration store intended to sit on the
control plane between isolated execution domains. Clients navigate a shared
tree of small entries, open transactions against a snapshot of that tree, and
commit their changes with whole-store optimistic concurrency: the first
transaction to publish wins, later snapshot holders are told to retry.

The `tinyxs` module is organized into the following packages:

* `kv/store`: the copy-on-write tree itself, including per-node permissions
  and per-domain quota accounting.
* `kv/transaction`: snapshot binding, the side-effect log, the operation
  journal, and the commit protocol. This is the heart of the store.
* `kv/server`: the session layer which owns open transactions and routes
  committed effects to the watch and persistence collaborators.
* `kv/watch`: delivery of watch events to subscribed clients.
* `kv/persist`: the on-disk log of committed paths, backed by badger.
* `kv/config`, `kv/metrics`: configuration and Prometheus collectors.
*/
