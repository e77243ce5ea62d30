package payments

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// ReferenceGenerator produces merchant references for gateway requests. The
// rand source is injected so tests can seed it.
type ReferenceGenerator struct {
	db *Database

	mu  sync.Mutex
	rng *rand.Rand
}

func NewReferenceGenerator(db *Database, rng *rand.Rand) *ReferenceGenerator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ReferenceGenerator{db: db, rng: rng}
}

// Generate builds a reference of the form {order}_{METHOD}_{count}_{rand}.
// The count keeps references human-traceable; the random suffix guards
// against a clash with a prior attempt that sent a request but crashed
// before its record was persisted. Uniqueness is best-effort, not
// guaranteed.
func (g *ReferenceGenerator) Generate(orderNumber, method string) (string, error) {
	numPrevious, err := g.db.CountTransactions(orderNumber, method)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	suffix := g.rng.Intn(10000)
	g.mu.Unlock()

	return fmt.Sprintf("%s_%s_%d_%04d",
		orderNumber, strings.ToUpper(method), numPrevious+1, suffix), nil
}
