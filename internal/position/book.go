package position

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"trading-sentinel/pkg/db"
)

// Entry is the in-memory state for one symbol. Its mutex serializes every
// read-check-mutate sequence for that symbol, so an exit decision and a
// concurrent entry can never interleave.
type Entry struct {
	mu  sync.Mutex
	pos db.Position
}

// Book owns the per-symbol entries. Symbols are fixed for the lifetime of a
// run; the elite universe only selects among them.
type Book struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	store   *db.Database
}

// NewBook creates an empty book backed by the given store.
func NewBook(store *db.Database) *Book {
	return &Book{
		entries: make(map[string]*Entry),
		store:   store,
	}
}

// Init loads or creates a position row for every symbol, then reconciles
// each snapshot against the trade ledger. The ledger is appended before the
// snapshot is written, so after a crash the last trade is the authority:
// a BUY newer than a flat snapshot means the entry committed, a SELL newer
// than an open snapshot means the exit committed.
func (b *Book) Init(ctx context.Context, symbols []string, startingBalance float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, symbol := range symbols {
		pos, err := b.store.LoadPosition(ctx, symbol)
		switch {
		case errors.Is(err, db.ErrNotFound):
			pos, err = b.seed(ctx, symbol, startingBalance)
			if err != nil {
				return fmt.Errorf("seed position %s: %w", symbol, err)
			}
		case err != nil:
			return fmt.Errorf("load position %s: %w", symbol, err)
		default:
			pos, err = b.reconcile(ctx, pos)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", symbol, err)
			}
		}
		b.entries[symbol] = &Entry{pos: pos}
	}
	return nil
}

// seed creates the position row for a symbol the book has never tracked.
// The trade ledger outlives the snapshot table, so a symbol rejoining the
// universe resumes from its last ledger-known balance instead of resetting
// to the configured start.
func (b *Book) seed(ctx context.Context, symbol string, startingBalance float64) (db.Position, error) {
	pos := db.Position{Symbol: symbol, Balance: startingBalance}

	last, err := b.store.LastTrade(ctx, symbol)
	switch {
	case errors.Is(err, db.ErrNotFound):
		log.Printf("📋 %s: new position row, balance %.2f", symbol, startingBalance)
	case err != nil:
		return pos, err
	case last.Side == "SELL":
		// Flat tail. The SELL row holds realized profit; the entry cost
		// comes from the BUY it closed.
		buy, err := b.store.LastTradeBySide(ctx, symbol, "BUY")
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return pos, err
		}
		if err == nil {
			pos.Balance = buy.Price*buy.Qty + last.Profit
		}
		log.Printf("📋 %s: carrying ledger balance %.2f forward", symbol, pos.Balance)
	case last.Side == "BUY":
		// Entry committed but the snapshot row never made it. Replay it
		// open, the same way reconcile does.
		pos.IsOpen = true
		pos.EntryPrice = last.Price
		pos.Qty = last.Qty
		pos.PeakPrice = last.Price
		pos.Balance = last.Price * last.Qty
		log.Printf("🔄 %s: ledger shows open BUY with no snapshot, replaying entry at %.4f", symbol, last.Price)
	}

	pos.UpdatedAt = time.Now()
	if err := b.store.SavePosition(ctx, pos); err != nil {
		return pos, err
	}
	return pos, nil
}

// reconcile replays the last ledger entry over the snapshot when the two
// disagree about whether the position is open.
func (b *Book) reconcile(ctx context.Context, pos db.Position) (db.Position, error) {
	last, err := b.store.LastTrade(ctx, pos.Symbol)
	if errors.Is(err, db.ErrNotFound) {
		return pos, nil
	}
	if err != nil {
		return pos, err
	}

	switch {
	case last.Side == "BUY" && !pos.IsOpen:
		// Entry committed to the ledger but the snapshot write was lost.
		pos.IsOpen = true
		pos.EntryPrice = last.Price
		pos.Qty = last.Qty
		pos.PeakPrice = last.Price
		pos.UpdatedAt = time.Now()
		log.Printf("🔄 %s: ledger shows open BUY, replaying entry at %.4f", pos.Symbol, last.Price)
	case last.Side == "SELL" && pos.IsOpen:
		// Exit committed but the flat snapshot was lost. The SELL row
		// carries the realized profit, so rebuild the balance from it.
		pos.Balance = pos.EntryPrice*pos.Qty + last.Profit
		pos.IsOpen = false
		pos.EntryPrice = 0
		pos.Qty = 0
		pos.PeakPrice = 0
		pos.UpdatedAt = time.Now()
		log.Printf("🔄 %s: ledger shows closed SELL, replaying exit, balance %.2f", pos.Symbol, pos.Balance)
	default:
		return pos, nil
	}

	if err := b.store.SavePosition(ctx, pos); err != nil {
		return pos, err
	}
	return pos, nil
}

// entry returns the holder for a symbol, or nil when the symbol is not
// managed by this book.
func (b *Book) entry(symbol string) *Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries[symbol]
}

// Symbols lists every managed symbol.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.entries))
	for s := range b.entries {
		out = append(out, s)
	}
	return out
}

// Has reports whether the symbol is managed.
func (b *Book) Has(symbol string) bool {
	return b.entry(symbol) != nil
}

// Snapshot returns a copy of every position, for the reporting API.
func (b *Book) Snapshot() []db.Position {
	b.mu.RLock()
	entries := make([]*Entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.mu.RUnlock()

	out := make([]db.Position, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.pos)
		e.mu.Unlock()
	}
	return out
}
