package seeder

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

type EventRow struct {
	EventID   int64
	EventName string
	UserID    string
	SessionID string
	Country   string
	Device    string
	Amount    float64
	TS        time.Time
}

// Generator produces deterministic synthetic event rows so repeated seeding
// runs yield identical warehouses.
type Generator struct {
	rnd             *rand.Rand
	userCardinality int
	sequence        int64
}

func NewGenerator(seed int64, userCardinality int) *Generator {
	return &Generator{
		rnd:             rand.New(rand.NewSource(seed)),
		userCardinality: userCardinality,
	}
}

// NextRow emits one event for the given day, spread across its 24 hours.
func (g *Generator) NextRow(day time.Time) EventRow {
	g.sequence++
	eventName := g.pickEventName()
	secondOfDay := g.rnd.Intn(24 * 60 * 60)

	return EventRow{
		EventID:   g.sequence,
		EventName: eventName,
		UserID:    fmt.Sprintf("user-%04d", g.rnd.Intn(g.userCardinality)+1),
		SessionID: fmt.Sprintf("sess-%08x", g.rnd.Uint32()),
		Country:   pickOne(g.rnd, []string{"US", "DE", "GB", "IN", "JP", "BR"}),
		Device:    pickOne(g.rnd, []string{"desktop", "mobile", "tablet"}),
		Amount:    g.pickAmount(eventName),
		TS:        day.Add(time.Duration(secondOfDay) * time.Second),
	}
}

func (g *Generator) pickEventName() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 55:
		return "page_view"
	case p < 75:
		return "search"
	case p < 88:
		return "add_to_cart"
	case p < 97:
		return "checkout"
	default:
		return "purchase"
	}
}

func (g *Generator) pickAmount(eventName string) float64 {
	switch eventName {
	case "purchase":
		return round2(20 + g.rnd.Float64()*280)
	case "checkout":
		return round2(15 + g.rnd.Float64()*240)
	case "add_to_cart":
		return round2(5 + g.rnd.Float64()*120)
	default:
		return 0
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
