package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Server describes one managed Minecraft server instance. The list is loaded
// once at startup and treated as read-only for the process lifetime.
type Server struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	ContainerID  string `mapstructure:"containerId"`
	Address      string `mapstructure:"address"`
	RconPort     int    `mapstructure:"rconPort"`
	RconPassword string `mapstructure:"rconPassword"`
	QueryPort    int    `mapstructure:"queryPort"`
	// CommandsDisabled marks instances that are listed but not addressable
	// for liveness checks or RCON commands.
	CommandsDisabled bool `mapstructure:"commandsDisabled"`
}

// Whitelist holds the reviewing policy and the Discord surfaces involved
// in the request flow.
type Whitelist struct {
	AllowedRoles   []string `mapstructure:"allowedRoles"`
	AllowAdmin     bool     `mapstructure:"allowAdmin"`
	PingRoles      []string `mapstructure:"pingRoles"`
	RequestChannel string   `mapstructure:"requestChannel"`
}

// SMTP configures the optional ops alert mails sent for lost approvals.
type SMTP struct {
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	OpsEmail string `mapstructure:"opsEmail"`
}

// Config is the full application configuration.
type Config struct {
	DiscordToken    string    `mapstructure:"discordToken"`
	MongodbConnStr  string    `mapstructure:"mongodbConn"`
	RabbitmqConnStr string    `mapstructure:"rabbitMQConn"`
	RedisConnStr    string    `mapstructure:"redisConn"`
	TaskQueueName   string    `mapstructure:"taskQueueName"`
	APIPort         string    `mapstructure:"port"`
	JWTTokenSecret  string    `mapstructure:"jwtTokenSecret"`
	AdminUsername   string    `mapstructure:"adminUsername"`
	AdminPassword   string    `mapstructure:"adminPassword"`
	LogLevel        string    `mapstructure:"logLevel"`
	Whitelist       Whitelist `mapstructure:"whitelist"`
	Servers         []Server  `mapstructure:"servers"`
	SMTP            SMTP      `mapstructure:"smtp"`
}

// LoadConfig reads config.yaml from the working directory and validates it.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate runs pre-run sanity checks. It is also re-run on config file
// change events so a bad edit is surfaced immediately.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return errors.New("invalid configuration: discordToken is required")
	}
	if len(c.Servers) == 0 {
		return errors.New("invalid configuration: at least one server must be defined")
	}
	seen := make(map[string]bool)
	for _, s := range c.Servers {
		if s.ID == "" {
			return errors.New("invalid configuration: server id can not be empty")
		}
		if seen[s.ID] {
			return fmt.Errorf("invalid configuration: duplicate server id %q", s.ID)
		}
		seen[s.ID] = true
		if !s.CommandsDisabled && (s.Address == "" || s.RconPort == 0) {
			return fmt.Errorf("invalid configuration: server %q needs address and rconPort unless commandsDisabled", s.ID)
		}
	}
	if len(c.Whitelist.AllowedRoles) == 0 && !c.Whitelist.AllowAdmin {
		return errors.New("invalid configuration: no allowed roles and allowAdmin disabled, nobody could ever approve")
	}
	if c.Whitelist.RequestChannel == "" {
		return errors.New("invalid configuration: whitelist.requestChannel is required")
	}
	return nil
}

// FindServer resolves a server id against the static server list.
func (c *Config) FindServer(id string) (*Server, bool) {
	for i := range c.Servers {
		if c.Servers[i].ID == id {
			return &c.Servers[i], true
		}
	}
	return nil, false
}
