package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/kgchat-backend/internal/kg"
)

// Each conversation owns three keys:
//
//	<prefix>:{<conv>}:next   INCR counter, survives Reset
//	<prefix>:{<conv>}:keys   hash anchor\x1fcategory -> id
//	<prefix>:{<conv>}:items  hash id -> candidate JSON
//
// Ids grow with insertion, so ordering items by id yields insertion order.

var addScript = goredis.NewScript(`
local ttl = tonumber(ARGV[1])
local added = 0
for i = 4, #ARGV do
  local field = ARGV[2] .. "\31" .. ARGV[i]
  if redis.call("HEXISTS", KEYS[2], field) == 0 then
    local id = redis.call("INCR", KEYS[1])
    redis.call("HSET", KEYS[2], field, id)
    redis.call("HSET", KEYS[3], id, cjson.encode({id = id, anchor_id = ARGV[2], anchor_name = ARGV[3], category = ARGV[i]}))
    added = added + 1
  end
end
if ttl > 0 then
  for i = 1, 3 do redis.call("EXPIRE", KEYS[i], ttl) end
end
return added
`)

var consumeScript = goredis.NewScript(`
local raw = redis.call("HGET", KEYS[3], ARGV[1])
if not raw then
  return false
end
local c = cjson.decode(raw)
redis.call("HDEL", KEYS[3], ARGV[1])
redis.call("HDEL", KEYS[2], c.anchor_id .. "\31" .. c.category)
return raw
`)

var resetScript = goredis.NewScript(`
redis.call("DEL", KEYS[2], KEYS[3])
local ttl = tonumber(ARGV[1])
if ttl > 0 then
  redis.call("EXPIRE", KEYS[1], ttl)
end
return 1
`)

// RedisStore shares spaces across processes. Every mutation is a single Lua script.
type RedisStore struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "kgchat:rec"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) keys(conv string) []string {
	// The hash tag keeps the three keys in one cluster slot for the scripts.
	base := s.prefix + ":{" + conv + "}"
	return []string{base + ":next", base + ":keys", base + ":items"}
}

func (s *RedisStore) ttlSeconds() int64 {
	if s.ttl <= 0 {
		return 0
	}
	secs := int64(s.ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (s *RedisStore) Reset(ctx context.Context, conv string) error {
	if err := resetScript.Run(ctx, s.rdb, s.keys(conv), s.ttlSeconds()).Err(); err != nil {
		return storeErr("reset", err)
	}
	return nil
}

func (s *RedisStore) Add(ctx context.Context, conv string, anchor kg.Entity, categories []kg.Category) (int, error) {
	if len(categories) == 0 {
		return 0, nil
	}
	args := make([]any, 0, 3+len(categories))
	args = append(args, s.ttlSeconds(), anchor.ID, anchor.Name)
	for _, c := range categories {
		args = append(args, string(c))
	}
	n, err := addScript.Run(ctx, s.rdb, s.keys(conv), args...).Int()
	if err != nil {
		return 0, storeErr("add", err)
	}
	return n, nil
}

func (s *RedisStore) List(ctx context.Context, conv string) ([]Candidate, error) {
	raw, err := s.rdb.HGetAll(ctx, s.keys(conv)[2]).Result()
	if err != nil {
		return nil, storeErr("list", err)
	}
	out := make([]Candidate, 0, len(raw))
	for field, v := range raw {
		var c Candidate
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			return nil, storeErr("list", err)
		}
		if c.ID == 0 {
			c.ID, _ = strconv.Atoi(field)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RedisStore) Consume(ctx context.Context, conv string, id int) (Candidate, bool, error) {
	raw, err := consumeScript.Run(ctx, s.rdb, s.keys(conv), strconv.Itoa(id)).Text()
	if errors.Is(err, goredis.Nil) {
		return Candidate{}, false, nil
	}
	if err != nil {
		return Candidate{}, false, storeErr("consume", err)
	}
	var c Candidate
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Candidate{}, false, storeErr("consume", err)
	}
	return c, true, nil
}
