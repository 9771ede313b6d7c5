// Package limiter implements the Atomic Primitives (C3) and Enforcement
// Facade (C4): server-side Redis scripts that each encapsulate a
// compare-and-act on one or two keys, plus typed wrappers that assemble
// the right key, TTL, and limit from {userId, plan}. Grounded on the
// teacher's Redis-first/DB-fallback shape (pkg/alert/dedup.go) generalized
// to genuinely atomic, script-backed operations.
package limiter

import "github.com/redis/go-redis/v9"

// counterWithLimitScript implements §4.3's counterWithLimit: let cur :=
// GET(key) or 0; if cur+increment > limit, return {0, cur, remaining}
// without mutation; else set TTL on first write only, increment, and
// return {1, newCur, remaining}.
//
// KEYS[1] = counter key
// ARGV[1] = increment, ARGV[2] = limit (or -1 for unbounded), ARGV[3] = ttlSeconds
// returns {allowed(0/1), count, remaining}
var counterWithLimitScript = redis.NewScript(`
-- op:counterWithLimit
local key = KEYS[1]
local increment = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local cur = tonumber(redis.call('GET', key))
if cur == nil then cur = 0 end

if limit >= 0 and cur + increment > limit then
  local remaining = limit - cur
  if remaining < 0 then remaining = 0 end
  return {0, cur, remaining}
end

if cur == 0 then
  redis.call('SET', key, 0, 'EX', ttl)
end
local newCur = redis.call('INCRBY', key, increment)

local remaining = -1
if limit >= 0 then
  remaining = limit - newCur
  if remaining < 0 then remaining = 0 end
end
return {1, newCur, remaining}
`)

// semaphoreAcquireScript implements §4.3's semaphoreAcquire: if
// SCARD(setKey) >= maxLeases, deny; else SADD the leaseId, SET its
// metadata with leaseTtl, and (re)set the set key's TTL to 2*leaseTtl.
//
// KEYS[1] = setKey, KEYS[2] = leaseMetaKey (leaseMetaPrefix .. leaseId)
// ARGV[1] = leaseId, ARGV[2] = metadataJson, ARGV[3] = maxLeases, ARGV[4] = leaseTtl
// returns {acquired(0/1), status}
var semaphoreAcquireScript = redis.NewScript(`
-- op:semaphoreAcquire
local setKey = KEYS[1]
local metaKey = KEYS[2]
local leaseId = ARGV[1]
local metadata = ARGV[2]
local maxLeases = tonumber(ARGV[3])
local leaseTtl = tonumber(ARGV[4])

local count = redis.call('SCARD', setKey)
if count >= maxLeases then
  return {0, 'max_concurrency'}
end

redis.call('SADD', setKey, leaseId)
redis.call('SET', metaKey, metadata, 'EX', leaseTtl)
redis.call('EXPIRE', setKey, leaseTtl * 2)

return {1, 'acquired'}
`)

// semaphoreReleaseScript implements §4.3's semaphoreRelease: idempotent;
// removes leaseId from the set and deletes its metadata. Missing leases
// return {0, "not_found"} without error.
//
// KEYS[1] = setKey, KEYS[2] = leaseMetaKey
// ARGV[1] = leaseId
// returns {released(0/1), status}
var semaphoreReleaseScript = redis.NewScript(`
-- op:semaphoreRelease
local setKey = KEYS[1]
local metaKey = KEYS[2]
local leaseId = ARGV[1]

local removed = redis.call('SREM', setKey, leaseId)
redis.call('DEL', metaKey)

if removed == 0 then
  return {0, 'not_found'}
end
return {1, 'released'}
`)

// cooldownCheckAndSetScript implements §4.3's cooldownCheckAndSet: sets
// the key only if absent; returns the remaining TTL if already present.
//
// KEYS[1] = cooldown key
// ARGV[1] = seconds, ARGV[2] = value
// returns {set(0/1), ttlRemaining}
var cooldownCheckAndSetScript = redis.NewScript(`
-- op:cooldownCheckAndSet
local key = KEYS[1]
local seconds = tonumber(ARGV[1])
local value = ARGV[2]

local ok = redis.call('SET', key, value, 'EX', seconds, 'NX')
if ok then
  return {1, seconds}
end

local ttl = redis.call('TTL', key)
if ttl < 0 then ttl = 0 end
return {0, ttl}
`)

// idempotencyGetOrSetScript implements §4.3's idempotencyGetOrSet: first
// caller wins; later callers receive the first caller's stored value
// verbatim.
//
// KEYS[1] = idempotency key
// ARGV[1] = serializedValue, ARGV[2] = ttlSeconds
// returns {isFirst(0/1), storedValue}
var idempotencyGetOrSetScript = redis.NewScript(`
-- op:idempotencyGetOrSet
local key = KEYS[1]
local value = ARGV[1]
local ttl = tonumber(ARGV[2])

local ok = redis.call('SET', key, value, 'EX', ttl, 'NX')
if ok then
  return {1, value}
end

local stored = redis.call('GET', key)
return {0, stored}
`)
