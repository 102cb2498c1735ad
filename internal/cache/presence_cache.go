package cache

const onlineSetKey = "presence:online"

// PresenceCache mirrors the presence tracker's online flags into a Redis
// set so "who is online" reads never hit the document store. The store
// stays the source of truth; the set can go stale if a disconnect hook
// never fires.
type PresenceCache struct {
	redis *RedisCache
}

func NewPresenceCache(redis *RedisCache) *PresenceCache {
	return &PresenceCache{redis: redis}
}

func (pc *PresenceCache) SetOnline(userID string) error {
	if pc == nil || pc.redis == nil {
		return nil
	}
	return pc.redis.SetAdd(onlineSetKey, userID)
}

func (pc *PresenceCache) SetOffline(userID string) error {
	if pc == nil || pc.redis == nil {
		return nil
	}
	return pc.redis.SetRemove(onlineSetKey, userID)
}

func (pc *PresenceCache) IsOnline(userID string) bool {
	if pc == nil || pc.redis == nil {
		return false
	}
	return pc.redis.SetIsMember(onlineSetKey, userID)
}

func (pc *PresenceCache) OnlineUsers() ([]string, error) {
	if pc == nil || pc.redis == nil {
		return nil, nil
	}
	return pc.redis.SetMembers(onlineSetKey)
}
