package mockserver

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/gautamrajesh007/Interceptor/internal/clock"
)

var sampleStatements = []string{
	"DELETE FROM users WHERE last_login < NOW() - INTERVAL '2 years'",
	"DROP TABLE audit_archive_2023",
	"TRUNCATE TABLE sessions",
	"UPDATE accounts SET balance = 0 WHERE id = 4412",
	"ALTER TABLE orders DROP COLUMN legacy_ref",
	"GRANT ALL PRIVILEGES ON DATABASE billing TO reporting",
	"DELETE FROM invoices WHERE status = 'draft'",
	"REVOKE SELECT ON customers FROM analyst",
	"DROP INDEX CONCURRENTLY idx_events_created_at",
	"UPDATE feature_flags SET enabled = true",
}

// Generator intercepts a sample statement every interval and expires
// pending queries older than ttl.
type Generator struct {
	server   *Server
	clock    clock.Clock
	interval time.Duration
	ttl      time.Duration
	rand     *rand.Rand
	conns    int
}

func NewGenerator(s *Server, interval, ttl time.Duration, clk clock.Clock) *Generator {
	if clk == nil {
		clk = clock.Real()
	}
	return &Generator{
		server:   s,
		clock:    clk,
		interval: interval,
		ttl:      ttl,
		rand:     rand.New(rand.NewSource(clk.Now().UnixNano())),
	}
}

func (g *Generator) Start(ctx context.Context) {
	if g.interval <= 0 {
		return
	}
	go g.run(ctx, g.clock.NewTicker(g.interval))
}

func (g *Generator) run(ctx context.Context, ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Tick()
		}
	}
}

// Tick runs one generator step.
func (g *Generator) Tick() {
	if g.ttl > 0 {
		g.server.ExpireStale(g.ttl)
	}
	stmt := sampleStatements[g.rand.Intn(len(sampleStatements))]
	g.conns++
	g.server.Intercept(fmt.Sprintf("conn-%d", g.conns%8+1), statementType(stmt), stmt)
}

func statementType(stmt string) string {
	verb, _, _ := strings.Cut(strings.TrimSpace(stmt), " ")
	return strings.ToUpper(verb)
}
