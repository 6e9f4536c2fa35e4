package l2

import "github.com/redis/go-redis/v9"

// luaPredicate re-expresses [pkg/bounds.Affects] and
// [pkg/bounds.AffectsUpdate] in Lua, operating on the same 19-byte header
// layout, so that range-predicate agreement holds between the in-process
// and remote-side decisions. It is kept separate from the dispatch below
// so the conformance test can drive the predicate functions directly.
//
// Sort values travel as 8-byte little-endian strings (the same encoding the
// header itself uses), never as Lua numbers: Lua's number type is a double,
// which cannot represent every int64 exactly, and the two predicate
// implementations must agree even at the int64 extremes. All comparisons below are
// therefore done byte-by-byte, flipping only the sign bit of the
// most-significant byte to turn a two's-complement compare into an
// unsigned one -- the standard trick for comparing signed integers without
// ever materializing them as a single number.
const luaPredicate = `
local function bytes_to_str(t)
  local out = {}
  for i = 1, #t do out[i] = string.char(t[i]) end
  return table.concat(out)
end

local function negate8(s)
  local isMin = true
  for i = 1, 7 do
    if string.byte(s, i) ~= 0 then isMin = false end
  end
  if isMin and string.byte(s, 8) == 128 then
    local t = {}
    for i = 1, 7 do t[i] = 255 end
    t[8] = 127
    return bytes_to_str(t)
  end
  local t = {}
  for i = 1, 8 do t[i] = 255 - string.byte(s, i) end
  local carry = 1
  for i = 1, 8 do
    local v = t[i] + carry
    if v >= 256 then
      t[i] = v - 256
      carry = 1
    else
      t[i] = v
      carry = 0
    end
  end
  return bytes_to_str(t)
end

local function sign_flip(b)
  if b >= 128 then return b - 128 else return b + 128 end
end

local function cmp8(a, b)
  for i = 8, 1, -1 do
    local ab = string.byte(a, i)
    local bb = string.byte(b, i)
    if i == 8 then
      ab = sign_flip(ab)
      bb = sign_flip(bb)
    end
    if ab < bb then return -1 end
    if ab > bb then return 1 end
  end
  return 0
end

local function affects_asc(first, last, incomplete, firstPage, cursorMode, v)
  if not cursorMode then
    if incomplete then return true end
    return cmp8(v, last) <= 0
  end
  if firstPage and incomplete then return true end
  if firstPage then return cmp8(v, last) <= 0 end
  if incomplete then return cmp8(v, first) >= 0 end
  return cmp8(first, v) <= 0 and cmp8(v, last) <= 0
end

local function affects_update_asc(first, last, incomplete, firstPage, cursorMode, vOld, vNew)
  local lo, hi = vOld, vNew
  if cmp8(hi, lo) < 0 then lo, hi = hi, lo end
  if not cursorMode then
    if incomplete then return cmp8(first, hi) <= 0 end
    local pLo, pHi = first, last
    if cmp8(pHi, pLo) < 0 then pLo, pHi = pHi, pLo end
    return cmp8(pLo, hi) <= 0 and cmp8(lo, pHi) <= 0
  end
  return affects_asc(first, last, incomplete, firstPage, cursorMode, vOld)
      or affects_asc(first, last, incomplete, firstPage, cursorMode, vNew)
end

local function parse_header(h)
  if #h < 19 then return nil end
  if string.byte(h, 1) ~= 0x53 or string.byte(h, 2) ~= 0x52 then return nil end
  local flags = string.byte(h, 19)
  local function flagbit(n)
    return math.floor(flags / (2 ^ n)) % 2 == 1
  end
  return {
    first = string.sub(h, 3, 10),
    last = string.sub(h, 11, 18),
    desc = flagbit(0),
    firstPage = flagbit(1),
    incomplete = flagbit(2),
    cursorMode = flagbit(3),
  }
end

local function affects(h, v)
  local hdr = parse_header(h)
  if hdr == nil then return true end
  if hdr.desc then
    return affects_asc(negate8(hdr.first), negate8(hdr.last), hdr.incomplete, hdr.firstPage, hdr.cursorMode, negate8(v))
  end
  return affects_asc(hdr.first, hdr.last, hdr.incomplete, hdr.firstPage, hdr.cursorMode, v)
end

local function affects_update(h, vOld, vNew)
  local hdr = parse_header(h)
  if hdr == nil then return true end
  if hdr.desc then
    return affects_update_asc(negate8(hdr.first), negate8(hdr.last), hdr.incomplete, hdr.firstPage, hdr.cursorMode, negate8(vOld), negate8(vNew))
  end
  return affects_update_asc(hdr.first, hdr.last, hdr.incomplete, hdr.firstPage, hdr.cursorMode, vOld, vNew)
end
`

// luaDispatch is the operation switch appended to the predicate to form
// the production script.
const luaDispatch = `
local op = ARGV[1]

if op == "group" then
  local trackingKey = KEYS[1]
  local members = redis.call('SMEMBERS', trackingKey)
  local n = 0
  for _, m in ipairs(members) do
    redis.call('DEL', m)
    n = n + 1
  end
  redis.call('DEL', trackingKey)
  return n

elseif op == "selective" or op == "selective_update" then
  local trackingKey = KEYS[1]
  local members = redis.call('SMEMBERS', trackingKey)
  local deleted = 0
  local remaining = 0
  for _, m in ipairs(members) do
    local h = redis.call('GETRANGE', m, 0, 18)
    local affected
    if op == "selective" then
      affected = affects(h, ARGV[2])
    else
      affected = affects_update(h, ARGV[2], ARGV[3])
    end
    if affected then
      redis.call('DEL', m)
      redis.call('SREM', trackingKey, m)
      deleted = deleted + 1
    else
      remaining = remaining + 1
    end
  end
  if remaining == 0 then
    redis.call('DEL', trackingKey)
  end
  return deleted

elseif op == "all_groups" then
  local masterKey = KEYS[1]
  local entries = redis.call('SMEMBERS', masterKey)
  local total = 0
  for _, entry in ipairs(entries) do
    -- Master-set members are "<sortField>:<trackingKey>".
    local sep = string.find(entry, ":", 1, true)
    local tk = entry
    if sep ~= nil then tk = string.sub(entry, sep + 1) end
    local members = redis.call('SMEMBERS', tk)
    for _, m in ipairs(members) do
      redis.call('DEL', m)
      total = total + 1
    end
    redis.call('DEL', tk)
    redis.call('SREM', masterKey, entry)
  end
  return total
end

return redis.error_reply("dlist: unknown op")
`

// script wraps the full invalidation script in a [redis.Script], which
// handles the EVALSHA-then-EVAL-on-NOSCRIPT fallback idiom itself.
var script = redis.NewScript(luaPredicate + luaDispatch)
