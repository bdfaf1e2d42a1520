package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fernwake/go-grove/internal/game"
)

const (
	playerKeyPrefix = "grove:player:"
	tokenKeyPrefix  = "grove:token:"
	nodesKey        = "grove:nodes"
	itemsKey        = "grove:items"

	defaultCallTimeout = 3 * time.Second
	saveRetries        = 3
	saveRetryBackoff   = 100 * time.Millisecond
)

// Player hash fields.
const (
	fieldName      = "name"
	fieldPosition  = "position"
	fieldInventory = "inventory"
	fieldSkills    = "skills"
)

// RedisGateway stores player, node, and item state in redis: one hash
// per player so position, inventory, and skills can be flushed
// independently, plus one hash each for nodes and world items.
type RedisGateway struct {
	client  *redis.Client
	timeout time.Duration
}

type RedisGatewayOpt func(*RedisGateway)

func WithCallTimeout(d time.Duration) RedisGatewayOpt {
	return func(g *RedisGateway) {
		g.timeout = d
	}
}

func NewRedisGateway(client *redis.Client, opts ...RedisGatewayOpt) *RedisGateway {
	g := &RedisGateway{
		client:  client,
		timeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *RedisGateway) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

// retry runs an idempotent write a bounded number of times with
// backoff. Non-idempotent callers pass their op through once instead.
func (g *RedisGateway) retry(ctx context.Context, what string, op func(context.Context) error) error {
	var err error
	backoff := saveRetryBackoff
	for attempt := 0; attempt < saveRetries; attempt++ {
		callCtx, cancel := g.bound(ctx)
		err = op(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt < saveRetries-1 {
			slog.Warn("retrying persistence write", "op", what, "attempt", attempt+1, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", what, saveRetries, err)
}

func playerKey(identity string) string {
	return playerKeyPrefix + identity
}

func (g *RedisGateway) LoadPlayer(ctx context.Context, identity string) (*PlayerRecord, error) {
	callCtx, cancel := g.bound(ctx)
	defer cancel()

	fields, err := g.client.HGetAll(callCtx, playerKey(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading player %s: %w", identity, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	rec := &PlayerRecord{
		Identity: identity,
		Name:     fields[fieldName],
		Skills:   map[string]game.Skill{},
	}
	if raw, ok := fields[fieldPosition]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Position); err != nil {
			return nil, fmt.Errorf("decoding player %s position: %w", identity, err)
		}
	}
	if raw, ok := fields[fieldInventory]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Inventory); err != nil {
			return nil, fmt.Errorf("decoding player %s inventory: %w", identity, err)
		}
	}
	if raw, ok := fields[fieldSkills]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Skills); err != nil {
			return nil, fmt.Errorf("decoding player %s skills: %w", identity, err)
		}
	}
	return rec, nil
}

func (g *RedisGateway) CreatePlayer(ctx context.Context, rec *PlayerRecord) error {
	pos, err := json.Marshal(rec.Position)
	if err != nil {
		return fmt.Errorf("encoding position: %w", err)
	}
	inv, err := json.Marshal(rec.Inventory)
	if err != nil {
		return fmt.Errorf("encoding inventory: %w", err)
	}
	skills, err := json.Marshal(rec.Skills)
	if err != nil {
		return fmt.Errorf("encoding skills: %w", err)
	}

	callCtx, cancel := g.bound(ctx)
	defer cancel()
	return g.client.HSet(callCtx, playerKey(rec.Identity),
		fieldName, rec.Name,
		fieldPosition, string(pos),
		fieldInventory, string(inv),
		fieldSkills, string(skills),
	).Err()
}

func (g *RedisGateway) SavePlayerPosition(ctx context.Context, identity string, pos game.Position) error {
	raw, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encoding position: %w", err)
	}
	return g.retry(ctx, "save position", func(c context.Context) error {
		return g.client.HSet(c, playerKey(identity), fieldPosition, string(raw)).Err()
	})
}

func (g *RedisGateway) SavePlayerInventory(ctx context.Context, identity string, items []game.InventoryItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding inventory: %w", err)
	}
	return g.retry(ctx, "save inventory", func(c context.Context) error {
		return g.client.HSet(c, playerKey(identity), fieldInventory, string(raw)).Err()
	})
}

func (g *RedisGateway) SavePlayerSkills(ctx context.Context, identity string, skills map[string]game.Skill) error {
	raw, err := json.Marshal(skills)
	if err != nil {
		return fmt.Errorf("encoding skills: %w", err)
	}
	return g.retry(ctx, "save skills", func(c context.Context) error {
		return g.client.HSet(c, playerKey(identity), fieldSkills, string(raw)).Err()
	})
}

func (g *RedisGateway) LoadResourceNodes(ctx context.Context) ([]NodeRecord, error) {
	callCtx, cancel := g.bound(ctx)
	defer cancel()

	fields, err := g.client.HGetAll(callCtx, nodesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("loading resource nodes: %w", err)
	}
	recs := make([]NodeRecord, 0, len(fields))
	for id, raw := range fields {
		var rec NodeRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			slog.Warn("skipping undecodable node record", "id", id, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (g *RedisGateway) SaveResourceNode(ctx context.Context, rec NodeRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding node: %w", err)
	}
	return g.retry(ctx, "save node", func(c context.Context) error {
		return g.client.HSet(c, nodesKey, rec.Id, string(raw)).Err()
	})
}

func (g *RedisGateway) LoadWorldItems(ctx context.Context) ([]ItemRecord, error) {
	callCtx, cancel := g.bound(ctx)
	defer cancel()

	fields, err := g.client.HGetAll(callCtx, itemsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("loading world items: %w", err)
	}
	recs := make([]ItemRecord, 0, len(fields))
	for id, raw := range fields {
		var rec ItemRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			slog.Warn("skipping undecodable item record", "id", id, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (g *RedisGateway) DropItemInWorld(ctx context.Context, rec ItemRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding item: %w", err)
	}
	callCtx, cancel := g.bound(ctx)
	defer cancel()
	return g.client.HSet(callCtx, itemsKey, rec.Id, string(raw)).Err()
}

func (g *RedisGateway) RemoveWorldItem(ctx context.Context, id string) error {
	return g.retry(ctx, "remove item", func(c context.Context) error {
		return g.client.HDel(c, itemsKey, id).Err()
	})
}

func (g *RedisGateway) RemoveAllWorldItems(ctx context.Context) error {
	return g.retry(ctx, "remove all items", func(c context.Context) error {
		return g.client.Del(c, itemsKey).Err()
	})
}

// TokenVerifier resolves credential tokens to identities via redis,
// the same store the excluded auth exchange writes them to.
type TokenVerifier struct {
	client  *redis.Client
	timeout time.Duration
}

func NewTokenVerifier(client *redis.Client) *TokenVerifier {
	return &TokenVerifier{client: client, timeout: defaultCallTimeout}
}

// Verify resolves a token to (identity, name). An unknown token returns
// an error; the session registry falls back to a guest identity.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (string, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	raw, err := v.client.Get(callCtx, tokenKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", "", fmt.Errorf("unknown token")
		}
		return "", "", fmt.Errorf("verifying token: %w", err)
	}

	var cred struct {
		Identity string `json:"identity"`
		Name     string `json:"name"`
	}
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return "", "", fmt.Errorf("decoding credential: %w", err)
	}
	if cred.Identity == "" {
		return "", "", fmt.Errorf("credential missing identity")
	}
	return cred.Identity, cred.Name, nil
}
