package redis

// Redis key naming conventions for conduct data.
// All keys are prefixed with "conduct:" to avoid collisions.

const keyPrefix = "conduct:"

// ── Session keys ──

// sessionKey returns the key for a session blob: conduct:session:{identityKey}
func sessionKey(identityKey string) string { return keyPrefix + "session:" + identityKey }

// ── Ledger keys ──

// resourceKey returns the key for a resource blob: conduct:resource:{id}
func resourceKey(resourceID string) string { return keyPrefix + "resource:" + resourceID }

// placementsKey returns the List key holding a resource's placement
// records in append order: conduct:placements:{id}
func placementsKey(resourceID string) string { return keyPrefix + "placements:" + resourceID }

// seqKey returns the INCR counter key for a resource's placement
// sequence: conduct:seq:{id}
func seqKey(resourceID string) string { return keyPrefix + "seq:" + resourceID }
