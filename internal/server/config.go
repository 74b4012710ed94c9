package server

// Config carries the command-line knobs this build exposes: where the
// RDB snapshot lives, what port to listen on, and whether this node
// starts life as a replica of another instance.
type Config struct {
	Host       string
	Port       int
	Dir        string
	DBFilename string

	ReplicaOfHost string
	ReplicaOfPort int
}

// IsReplica reports whether --replicaof was given.
func (c *Config) IsReplica() bool {
	return c.ReplicaOfHost != ""
}

func DefaultConfig() *Config {
	return &Config{
		Host:       "0.0.0.0",
		Port:       6379,
		Dir:        ".",
		DBFilename: "dump.rdb",
	}
}
