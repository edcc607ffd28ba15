package redisstore

import "strconv"

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "shortlink:"

type keys struct {
	prefix string
}

// seq is the counter INCR'd for each new id.
func (k keys) seq() string {
	return k.prefix + "seq"
}

// link is the hash holding the record for id.
func (k keys) link(id int64) string {
	return k.prefix + "link:" + strconv.FormatInt(id, 10)
}

// code maps a short code to its id. It is written once and never changes.
func (k keys) code(shortCode string) string {
	return k.prefix + "code:" + shortCode
}
