package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// PresenceSetKey is the sorted set of online students scored by last heartbeat (unix seconds).
func (r *CacheKeyStruct) PresenceSetKey() string {
	return "presence:students"
}

// PresenceMember encodes a student identity as a presence set member.
func (r *CacheKeyStruct) PresenceMember(studentName, className string) string {
	return fmt.Sprintf("%s|%s", studentName, className)
}

// PresenceChannel is the PubSub channel every heartbeat is published on.
func (r *CacheKeyStruct) PresenceChannel() string {
	return "presence:events"
}

// PresenceSweepLockKey guards the sweeper so only one server instance prunes at a time.
func (r *CacheKeyStruct) PresenceSweepLockKey() string {
	return "presence:sweep_lock"
}

var CacheKey = NewCacheKeyStruct()
