// Package wal implements the append-only write-ahead log of order intents
// and fills that gives the decision loop crash/restart durability.
// Grounded on the original C++ storage/wal_store module's on-disk format
// (spec.md §6 "WAL file format") and on the teacher's append-mode file
// handling idiom (open-or-create, explicit flush) seen across
// storage/database.go and execution/reconciler.go.
package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/types"
)

const (
	recordIntent = "INTENT"
	recordFill2  = "FILL2"
	recordFillV1 = "FILL" // legacy, read-only
)

// WAL is an append-only durable log. All writes happen from the main loop
// under its exclusive write discipline (spec.md §5); the mutex here guards
// against accidental concurrent use rather than expressing a real
// multi-writer design.
type WAL struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
}

// Open ensures the parent directory exists, creates the file if absent, and
// opens it in append mode. Any I/O failure here is a hard error per
// spec.md §4.1 ("never fails silently").
func Open(path string) (*WAL, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &WAL{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// Close flushes and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

func purposeInt(p types.Purpose) int { return int(p) }

func purposeFromInt(i int) types.Purpose { return types.Purpose(i) }

func directionInt(d types.Direction) int { return int(d) }

func directionFromInt(i int) types.Direction { return types.Direction(i) }

func boolToDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// AppendIntent durably appends a snapshot of intent. Durable before return:
// the write is flushed and fsync'd before AppendIntent returns successfully.
func (w *WAL) AppendIntent(intent types.OrderIntent) error {
	line := strings.Join([]string{
		recordIntent,
		intent.ClientOrderID,
		intent.Symbol,
		strconv.Itoa(purposeInt(intent.Purpose)),
		strconv.Itoa(int(intent.LiquidityPreference)),
		boolToDigit(intent.ReduceOnly),
		strconv.Itoa(directionInt(intent.Direction)),
		intent.Qty.String(),
		intent.Price.String(),
	}, "\t")
	return w.appendLine(line)
}

// AppendFill durably appends a snapshot of fill (including its fill_id).
func (w *WAL) AppendFill(fill types.FillEvent) error {
	line := strings.Join([]string{
		recordFill2,
		fill.FillID,
		fill.ClientOrderID,
		fill.Symbol,
		strconv.Itoa(directionInt(fill.Direction)),
		fill.Qty.String(),
		fill.Price.String(),
		fill.Fee.String(),
	}, "\t")
	return w.appendLine(line)
}

func (w *WAL) appendLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	return nil
}

// LoadedState is the result of replaying the log from disk.
type LoadedState struct {
	IntentIDs     map[string]struct{}
	FillIDs       map[string]struct{}
	OrderedFills  []types.FillEvent
	OrderedIntents []types.OrderIntent
}

// LoadState reads the entire log and reconstructs the id sets and ordered
// fill list. Duplicate fill_id entries after the first are discarded from
// the returned ordered list but their id remains in FillIDs (idempotent
// load per spec.md §4.1 and testable property 1).
func LoadState(path string) (LoadedState, error) {
	state := LoadedState{
		IntentIDs: make(map[string]struct{}),
		FillIDs:   make(map[string]struct{}),
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("wal: load open %s: %w", path, err)
	}
	defer f.Close()

	legacySeq := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		switch fields[0] {
		case recordIntent:
			intent, err := parseIntent(fields)
			if err != nil {
				return state, fmt.Errorf("wal: line %d: %w", lineNo, err)
			}
			state.IntentIDs[intent.ClientOrderID] = struct{}{}
			state.OrderedIntents = append(state.OrderedIntents, intent)
		case recordFill2:
			fill, err := parseFill2(fields)
			if err != nil {
				return state, fmt.Errorf("wal: line %d: %w", lineNo, err)
			}
			if _, dup := state.FillIDs[fill.FillID]; dup {
				continue
			}
			state.FillIDs[fill.FillID] = struct{}{}
			state.OrderedFills = append(state.OrderedFills, fill)
		case recordFillV1:
			legacySeq++
			fill, err := parseFillV1(fields, legacySeq)
			if err != nil {
				return state, fmt.Errorf("wal: line %d: %w", lineNo, err)
			}
			if _, dup := state.FillIDs[fill.FillID]; dup {
				continue
			}
			state.FillIDs[fill.FillID] = struct{}{}
			state.OrderedFills = append(state.OrderedFills, fill)
		default:
			return state, fmt.Errorf("wal: line %d: unknown record type %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return state, fmt.Errorf("wal: scan: %w", err)
	}
	return state, nil
}

func parseIntent(f []string) (types.OrderIntent, error) {
	if len(f) != 9 {
		return types.OrderIntent{}, fmt.Errorf("INTENT: want 9 fields, got %d", len(f))
	}
	purpose, err := strconv.Atoi(f[3])
	if err != nil {
		return types.OrderIntent{}, fmt.Errorf("INTENT purpose: %w", err)
	}
	liqPref, err := strconv.Atoi(f[4])
	if err != nil {
		return types.OrderIntent{}, fmt.Errorf("INTENT liquidity_pref: %w", err)
	}
	reduceOnly := f[5] == "1"
	dir, err := strconv.Atoi(f[6])
	if err != nil {
		return types.OrderIntent{}, fmt.Errorf("INTENT direction: %w", err)
	}
	qty, err := decimal.NewFromString(f[7])
	if err != nil {
		return types.OrderIntent{}, fmt.Errorf("INTENT qty: %w", err)
	}
	price, err := decimal.NewFromString(f[8])
	if err != nil {
		return types.OrderIntent{}, fmt.Errorf("INTENT price: %w", err)
	}
	return types.OrderIntent{
		ClientOrderID:       f[1],
		Symbol:              f[2],
		Purpose:             purposeFromInt(purpose),
		LiquidityPreference: types.LiquidityPreference(liqPref),
		ReduceOnly:          reduceOnly,
		Direction:           directionFromInt(dir),
		Qty:                 qty,
		Price:               price,
	}, nil
}

func parseFill2(f []string) (types.FillEvent, error) {
	if len(f) != 8 {
		return types.FillEvent{}, fmt.Errorf("FILL2: want 8 fields, got %d", len(f))
	}
	dir, err := strconv.Atoi(f[4])
	if err != nil {
		return types.FillEvent{}, fmt.Errorf("FILL2 direction: %w", err)
	}
	qty, err := decimal.NewFromString(f[5])
	if err != nil {
		return types.FillEvent{}, fmt.Errorf("FILL2 qty: %w", err)
	}
	price, err := decimal.NewFromString(f[6])
	if err != nil {
		return types.FillEvent{}, fmt.Errorf("FILL2 price: %w", err)
	}
	fee, err := decimal.NewFromString(f[7])
	if err != nil {
		return types.FillEvent{}, fmt.Errorf("FILL2 fee: %w", err)
	}
	return types.FillEvent{
		FillID:        f[1],
		ClientOrderID: f[2],
		Symbol:        f[3],
		Direction:     directionFromInt(dir),
		Qty:           qty,
		Price:         price,
		Fee:           fee,
	}, nil
}

// parseFillV1 reads the legacy format (no explicit fill_id) and synthesizes
// one from the client_order_id and its position in the legacy stream, so
// repeated loads are stable.
func parseFillV1(f []string, legacySeq int) (types.FillEvent, error) {
	if len(f) != 8 {
		return types.FillEvent{}, fmt.Errorf("FILL(legacy): want 8 fields, got %d", len(f))
	}
	dir, err := strconv.Atoi(f[4])
	if err != nil {
		return types.FillEvent{}, fmt.Errorf("FILL(legacy) direction: %w", err)
	}
	qty, err := decimal.NewFromString(f[5])
	if err != nil {
		return types.FillEvent{}, fmt.Errorf("FILL(legacy) qty: %w", err)
	}
	price, err := decimal.NewFromString(f[6])
	if err != nil {
		return types.FillEvent{}, fmt.Errorf("FILL(legacy) price: %w", err)
	}
	return types.FillEvent{
		FillID:        fmt.Sprintf("legacy-%s-%d", f[1], legacySeq),
		ClientOrderID: f[1],
		Symbol:        f[2],
		Direction:     directionFromInt(dir),
		Qty:           qty,
		Price:         price,
		Fee:           decimal.Zero,
	}, nil
}
