package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
	"github.com/redis/go-redis/v9"

	"github.com/fernwake/go-grove/internal/persist"
	"github.com/fernwake/go-grove/internal/session"
)

// RedisConfig points the persistence gateway at a redis instance. An
// empty addr runs the world in memory only: nothing survives a restart
// and every connection plays as a guest.
type RedisConfig struct {
	Addr        string `json:"addr"`
	Password    string `json:"password"`
	DB          int    `json:"db"`
	CallTimeout string `json:"call_timeout"`
}

func (c *RedisConfig) Validate() error {
	el := errors.NewErrorList()

	if c.CallTimeout != "" {
		_, err := time.ParseDuration(c.CallTimeout)
		if err != nil {
			el.Add(fmt.Errorf("parsing call_timeout: %w", err))
		}
	}

	return el.Err()
}

func (c *RedisConfig) BuildGateway() (persist.Gateway, session.Verifier, error) {
	if c.Addr == "" {
		return persist.NewMemoryGateway(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})

	var opts []persist.RedisGatewayOpt
	if c.CallTimeout != "" {
		d, err := time.ParseDuration(c.CallTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing call_timeout: %w", err)
		}
		opts = append(opts, persist.WithCallTimeout(d))
	}

	return persist.NewRedisGateway(client, opts...), persist.NewTokenVerifier(client), nil
}
