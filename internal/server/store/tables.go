package store

// Table names a logical partition of the keyed store. Tables mirror
// the server's durable state: identity registries, per-path version
// chains, blobs, advisory path locks, and the propagation queues.
type Table string

const (
	// identity
	TableEmailUser  Table = "email_user"   // email -> user id
	TableUserDevice Table = "user_device"  // email -> device id list
	TableUserTopDir Table = "user_top_dir" // email -> top dir id list

	// top directory metadata
	TableTopDirEditors Table = "top_dir_editors" // top dir id -> editor email list

	// version chains
	TableRelPathHead Table = "relpath_head" // topdir-scoped relpath -> head hash
	TablePrev        Table = "hash_prev"    // content hash -> previous hash
	TableBlob        Table = "hash_blob"    // content hash -> payload

	// advisory path locks
	TablePathLock Table = "path_lock" // topdir-scoped relpath -> holder

	// propagation
	TableQueue      Table = "pending_queue" // tuple key -> ""
	TableLog        Table = "change_log"    // tuple key -> ""
	TableDeviceSync Table = "device_sync"   // device id -> tuple key list
)

// ID kinds for NewID.
const (
	IDUser   = "user"
	IDDevice = "device"
	IDTopDir = "top_dir"
)
