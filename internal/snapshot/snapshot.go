// Package snapshot caches world and per-player item state in redis as
// zstd-compressed JSON blobs.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/klauspost/compress/zstd"

	"github.com/gravitas-games/economy/internal/inventory"
	"github.com/gravitas-games/economy/pkg/models"
)

// Version is bumped whenever the blob layout changes incompatibly.
const Version = 1

// ErrVersion is returned for blobs written by an incompatible layout.
var ErrVersion = errors.New("snapshot version mismatch")

type Header struct {
	Version int   `json:"version"`
	SavedAt int64 `json:"saved_at"`
}

// World is the shared state: shop stock and floor items.
type World struct {
	Header Header                      `json:"header"`
	Shops  map[string]models.ShopStock `json:"shops"`
	Floor  []models.FloorItem          `json:"floor"`
}

// Player is one player's inventory, bank and last position.
type Player struct {
	Header    Header                 `json:"header"`
	Position  models.Position        `json:"position"`
	Inventory inventory.Snapshot     `json:"inventory"`
	Bank      inventory.BankSnapshot `json:"bank"`
}

// Store reads and writes snapshots under a key prefix.
type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New creates a store. A zero ttl keeps snapshots forever.
func New(rdb *redis.Client, prefix string, ttl time.Duration) (*Store, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl, now: time.Now, enc: enc, dec: dec}, nil
}

// Close releases the codec resources. The redis client is owned by the
// caller.
func (s *Store) Close() {
	s.enc.Close()
	s.dec.Close()
}

func (s *Store) worldKey() string { return s.prefix + "world" }

func (s *Store) playerKey(id string) string { return s.prefix + "player:" + id }

// SaveWorld writes the shared state.
func (s *Store) SaveWorld(ctx context.Context, w World) error {
	w.Header = s.header()
	return s.put(ctx, s.worldKey(), w)
}

// LoadWorld reads the shared state; ok is false when none was saved.
func (s *Store) LoadWorld(ctx context.Context) (w World, ok bool, err error) {
	ok, err = s.get(ctx, s.worldKey(), &w)
	if err == nil && ok && w.Header.Version != Version {
		return World{}, false, fmt.Errorf("%w: world has %d", ErrVersion, w.Header.Version)
	}
	return w, ok, err
}

// SavePlayer writes one player's state.
func (s *Store) SavePlayer(ctx context.Context, playerID string, p Player) error {
	p.Header = s.header()
	return s.put(ctx, s.playerKey(playerID), p)
}

// LoadPlayer reads one player's state; ok is false when none was saved.
func (s *Store) LoadPlayer(ctx context.Context, playerID string) (p Player, ok bool, err error) {
	ok, err = s.get(ctx, s.playerKey(playerID), &p)
	if err == nil && ok && p.Header.Version != Version {
		return Player{}, false, fmt.Errorf("%w: player %s has %d", ErrVersion, playerID, p.Header.Version)
	}
	return p, ok, err
}

// DeletePlayer drops a player's saved state.
func (s *Store) DeletePlayer(ctx context.Context, playerID string) error {
	return s.rdb.Del(ctx, s.playerKey(playerID)).Err()
}

func (s *Store) header() Header {
	return Header{Version: Version, SavedAt: s.now().UnixMilli()}
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	blob := s.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	if err := s.rdb.Set(ctx, key, blob, s.ttl).Err(); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, v any) (bool, error) {
	blob, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	raw, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return false, fmt.Errorf("decompress %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
