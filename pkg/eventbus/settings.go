package eventbus

// Settings selects and configures the bus backend. When RedisEnabled is
// false an in-process channel is used.
//
// RedisObserve makes the bus read-only: the process opens no realtime
// socket of its own and follows the feed another process publishes.
type Settings struct {
	RedisEnabled  bool   `mapstructure:"redis-enabled" yaml:"redis-enabled"`
	RedisAddr     string `mapstructure:"redis-addr" yaml:"redis-addr"`
	RedisGroup    string `mapstructure:"redis-group" yaml:"redis-group"`
	RedisConsumer string `mapstructure:"redis-consumer" yaml:"redis-consumer"`
	RedisObserve  bool   `mapstructure:"redis-observe" yaml:"redis-observe"`
}

func DefaultSettings() Settings {
	return Settings{
		RedisAddr:  "localhost:6379",
		RedisGroup: "helpdesk-ui",
	}
}
