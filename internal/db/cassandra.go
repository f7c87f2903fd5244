package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
)

// CassandraOptions describe how to reach the cluster.
type CassandraOptions struct {
	Hosts             []string
	Port              int
	Username          string
	Password          string
	Consistency       string // e.g. "quorum", "local_quorum", "one"
	Timeout           time.Duration
	ReplicationFactor int // used when a keyspace has to be created
}

// Cassandra is a session that also administers keyspaces. gocql refuses USE
// statements, so selecting a keyspace reconnects with it bound.
type Cassandra struct {
	mu          sync.Mutex
	cluster     *gocql.ClusterConfig
	session     *gocql.Session
	replication int
}

func OpenCassandra(opts CassandraOptions) (*Cassandra, error) {
	if len(opts.Hosts) == 0 {
		return nil, fmt.Errorf("no cassandra hosts configured")
	}
	cluster := gocql.NewCluster(opts.Hosts...)
	if opts.Port > 0 {
		cluster.Port = opts.Port
	}
	if opts.Timeout > 0 {
		cluster.Timeout = opts.Timeout
		cluster.ConnectTimeout = opts.Timeout
	}
	if opts.Consistency != "" {
		c, err := gocql.ParseConsistencyWrapper(opts.Consistency)
		if err != nil {
			return nil, err
		}
		cluster.Consistency = c
	}
	if opts.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: opts.Username,
			Password: opts.Password,
		}
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect cassandra: %w", err)
	}
	rf := opts.ReplicationFactor
	if rf <= 0 {
		rf = 1
	}
	return &Cassandra{cluster: cluster, session: session, replication: rf}, nil
}

func (c *Cassandra) current() *gocql.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Execute runs stmt with positional "?" parameters and returns every row.
func (c *Cassandra) Execute(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	iter := c.current().Query(stmt, args...).WithContext(ctx).Iter()
	rows, err := iter.SliceMap()
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Cassandra) EnsureKeyspace(ctx context.Context, keyspace string) error {
	if err := checkIdent("keyspace", keyspace); err != nil {
		return err
	}
	_, err := c.Execute(ctx, fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
  WITH replication = {
    'class' : 'SimpleStrategy',
    'replication_factor' : %d
  }`, keyspace, c.replication))
	return err
}

func (c *Cassandra) UseKeyspace(ctx context.Context, keyspace string) error {
	if err := checkIdent("keyspace", keyspace); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cluster.Keyspace == keyspace && c.session != nil && !c.session.Closed() {
		return nil
	}
	cluster := *c.cluster
	cluster.Keyspace = keyspace
	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("connect keyspace %s: %w", keyspace, err)
	}
	c.session.Close()
	c.cluster = &cluster
	c.session = session
	return nil
}

func (c *Cassandra) DropKeyspace(ctx context.Context, keyspace string) error {
	if err := checkIdent("keyspace", keyspace); err != nil {
		return err
	}
	_, err := c.Execute(ctx, fmt.Sprintf(`DROP KEYSPACE IF EXISTS %s`, keyspace))
	return err
}

func (c *Cassandra) EnsureLedgerTable(ctx context.Context, table string) error {
	if err := checkIdent("table", table); err != nil {
		return err
	}
	_, err := c.Execute(ctx, cassandraLedgerDDL(table))
	return err
}

// Versions and execution times are bound as int64, so both columns are bigint.
func cassandraLedgerDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    version bigint,
    name text,
    type text,
    checksum text,
    installed_on timestamp,
    execution_time bigint,
    success boolean,
    PRIMARY KEY (version)
  )`, table)
}

// Close releases the current session.
func (c *Cassandra) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Close()
	}
}
