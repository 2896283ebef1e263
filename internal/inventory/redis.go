package inventory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	entryKeyPrefix = "stock:entry:"
	entryIndexKey  = "stock:entries"

	errReplyNotFound     = "ENTRY_NOT_FOUND"
	errReplyInsufficient = "INSUFFICIENT_STOCK"
)

// decrementScript checks and subtracts in one server-side step.
var decrementScript = redis.NewScript(`
local key = KEYS[1]
local amount = tonumber(ARGV[1])
if redis.call('EXISTS', key) == 0 then
	return redis.error_reply('ENTRY_NOT_FOUND')
end
local current = tonumber(redis.call('HGET', key, 'qty'))
if current < amount then
	return redis.error_reply('INSUFFICIENT_STOCK')
end
redis.call('HINCRBY', key, 'qty', -amount)
redis.call('HSET', key, 'updated_at', ARGV[2])
return redis.call('HGETALL', key)
`)

// incrementScript refuses to create an entry that does not exist.
var incrementScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
	return redis.error_reply('ENTRY_NOT_FOUND')
end
redis.call('HINCRBY', key, 'qty', tonumber(ARGV[1]))
redis.call('HSET', key, 'updated_at', ARGV[2])
return redis.call('HGETALL', key)
`)

// RedisLedger keeps each entry in a hash and serves the ledger contract with Lua scripts.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger constructs the Redis-backed ledger.
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

// Get loads one entry.
func (l *RedisLedger) Get(ctx context.Context, id string) (Entry, error) {
	fields, err := l.client.HGetAll(ctx, entryKey(id)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("inventory: redis get: %w", err)
	}
	if len(fields) == 0 {
		return Entry{}, ErrEntryNotFound
	}
	return entryFromHash(id, fields)
}

// ConditionalDecrement subtracts amount only when at least amount is available.
func (l *RedisLedger) ConditionalDecrement(ctx context.Context, id string, amount int) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	return l.runScript(ctx, decrementScript, id, amount)
}

// Increment adds amount to the entry unconditionally.
func (l *RedisLedger) Increment(ctx context.Context, id string, amount int) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	return l.runScript(ctx, incrementScript, id, amount)
}

// Put stores descriptive fields. The quantity is only written when the entry is new.
func (l *RedisLedger) Put(ctx context.Context, entry Entry) (Entry, error) {
	key := entryKey(entry.ID)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"name", entry.DisplayName,
			"generic", entry.GenericName,
			"price", entry.UnitSellingPrice.String(),
			"reorder", entry.ReorderLevel,
			"updated_at", nowNano(),
		)
		pipe.HSetNX(ctx, key, "qty", entry.AvailableQuantity)
		pipe.SAdd(ctx, entryIndexKey, entry.ID)
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("inventory: redis put: %w", err)
	}
	return l.Get(ctx, entry.ID)
}

// List returns entries ordered by name and the total number matching filter.
func (l *RedisLedger) List(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	ids, err := l.client.SMembers(ctx, entryIndexKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("inventory: redis list: %w", err)
	}
	pipe := l.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, entryKey(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, 0, fmt.Errorf("inventory: redis list: %w", err)
		}
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]Entry, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		entry, err := entryFromHash(id, fields)
		if err != nil {
			return nil, 0, err
		}
		if search != "" && !strings.Contains(strings.ToLower(entry.DisplayName), search) &&
			!strings.Contains(strings.ToLower(entry.GenericName), search) {
			continue
		}
		if filter.LowStockOnly && !entry.IsLow() {
			continue
		}
		matched = append(matched, entry)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].DisplayName == matched[j].DisplayName {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].DisplayName < matched[j].DisplayName
	})

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func (l *RedisLedger) runScript(ctx context.Context, script *redis.Script, id string, amount int) (Entry, error) {
	res, err := script.Run(ctx, l.client, []string{entryKey(id)}, amount, nowNano()).StringSlice()
	if err != nil {
		switch {
		case strings.Contains(err.Error(), errReplyNotFound):
			return Entry{}, ErrEntryNotFound
		case strings.Contains(err.Error(), errReplyInsufficient):
			return Entry{}, ErrInsufficientStock
		}
		return Entry{}, fmt.Errorf("inventory: redis script: %w", err)
	}
	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[res[i]] = res[i+1]
	}
	return entryFromHash(id, fields)
}

func entryFromHash(id string, fields map[string]string) (Entry, error) {
	entry := Entry{
		ID:          id,
		DisplayName: fields["name"],
		GenericName: fields["generic"],
	}
	var err error
	if entry.AvailableQuantity, err = strconv.Atoi(fields["qty"]); err != nil {
		return Entry{}, fmt.Errorf("inventory: corrupt qty for %s: %w", id, err)
	}
	if raw := fields["price"]; raw != "" {
		if entry.UnitSellingPrice, err = decimal.NewFromString(raw); err != nil {
			return Entry{}, fmt.Errorf("inventory: corrupt price for %s: %w", id, err)
		}
	}
	if raw := fields["reorder"]; raw != "" {
		if entry.ReorderLevel, err = strconv.Atoi(raw); err != nil {
			return Entry{}, fmt.Errorf("inventory: corrupt reorder level for %s: %w", id, err)
		}
	}
	if raw := fields["updated_at"]; raw != "" {
		if nanos, err := strconv.ParseInt(raw, 10, 64); err == nil {
			entry.UpdatedAt = time.Unix(0, nanos).UTC()
		}
	}
	return entry, nil
}

func entryKey(id string) string {
	return entryKeyPrefix + id
}

func nowNano() int64 {
	return time.Now().UnixNano()
}
