package cache

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/unichat/unichat-backend/internal/live"
)

// ChatListTTL bounds how stale a cached chat list may get between live
// renders.
const ChatListTTL = 2 * time.Minute

// ChatListCache keeps the last rendered chat list per user so the REST
// first paint can skip the store. Writes happen on every projector
// render; sends and reads invalidate.
type ChatListCache struct {
	redis *RedisCache
}

func NewChatListCache(redis *RedisCache) *ChatListCache {
	return &ChatListCache{redis: redis}
}

func chatListKey(userID string) string {
	return fmt.Sprintf("chatlist:%s", userID)
}

func (cc *ChatListCache) Get(userID string) ([]live.ChatEntry, bool) {
	if cc == nil || cc.redis == nil {
		return nil, false
	}
	data, err := cc.redis.Get(chatListKey(userID))
	if err != nil || data == nil {
		return nil, false
	}
	var entries []live.ChatEntry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (cc *ChatListCache) Set(userID string, entries []live.ChatEntry) error {
	if cc == nil || cc.redis == nil {
		return nil
	}
	data, err := msgpack.Marshal(entries)
	if err != nil {
		return err
	}
	return cc.redis.Set(chatListKey(userID), data, ChatListTTL)
}

func (cc *ChatListCache) Invalidate(userID string) error {
	if cc == nil || cc.redis == nil {
		return nil
	}
	return cc.redis.Delete(chatListKey(userID))
}
