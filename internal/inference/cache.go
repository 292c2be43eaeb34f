package inference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"math"
	"strconv"
	"strings"
	"time"

	"credit-prediction/internal/common/database"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/pipeline"
)

// Cache stores deterministic scoring outputs in Redis. Failures are logged and
// treated as misses.
type Cache struct {
	client *database.RedisClient
	ttl    time.Duration
	logger logger.Logger
}

func NewCache(client *database.RedisClient, ttl time.Duration, log logger.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, logger: log}
}

// score is the cached part of a Result. Runtime is never cached.
type score struct {
	Value float64   `json:"value,omitempty"`
	Proba []float64 `json:"proba,omitempty"`
}

// Key returns pred:<kind>:<model>:<sha256 of the reconciled row>.
func Key(kind, modelName string, r pipeline.Row) string {
	var b strings.Builder
	for _, v := range r.Numeric {
		if math.IsNaN(v) {
			b.WriteString("NaN")
		} else {
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		b.WriteByte(0x1f)
	}
	for _, v := range r.Categorical {
		b.WriteString(strconv.Quote(v))
		b.WriteByte(0x1f)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return "pred:" + kind + ":" + modelName + ":" + hex.EncodeToString(sum[:])
}

func (c *Cache) get(ctx context.Context, key string) (*score, bool) {
	var s score
	err := c.client.GetJSON(ctx, key, &s)
	if err == nil {
		return &s, true
	}
	if !stderrors.Is(err, database.ErrCacheMiss) {
		c.logger.Warn("Prediction cache read failed", map[string]interface{}{"key": key, "error": err})
	}
	return nil, false
}

func (c *Cache) put(ctx context.Context, key string, s *score) {
	if err := c.client.SetJSON(ctx, key, s, c.ttl); err != nil {
		c.logger.Warn("Prediction cache write failed", map[string]interface{}{"key": key, "error": err})
	}
}
