package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
)

type ledgerCLI struct {
	t        *testing.T
	dir      string
	dataFile string
}

func newLedgerCLI(t *testing.T) *ledgerCLI {
	t.Helper()
	t.Setenv("AMQP_URL", "")
	t.Setenv("MIRROR_BACKEND", "")
	t.Setenv("FALLBACK_BACKEND", "file")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("FX_RATES", "EUR=0.95")
	t.Setenv("FX_BASE", "CHF")
	dir := t.TempDir()
	return &ledgerCLI{t: t, dir: dir, dataFile: filepath.Join(dir, "ledger.json")}
}

func (l *ledgerCLI) run(args ...string) (string, error) {
	l.t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{
		"--env-file", filepath.Join(l.dir, "missing.env"),
		"--backend", "file",
		"--data-file", l.dataFile,
		"--log-level", "error",
	}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (l *ledgerCLI) mustRun(args ...string) string {
	l.t.Helper()
	out, err := l.run(args...)
	require.NoError(l.t, err, "conti %v", args)
	return out
}

func (l *ledgerCLI) addDinner() {
	l.t.Helper()
	l.mustRun("add", "--amount", "50", "--payer", "Alice", "--participants", "Alice,Bob",
		"--category", "Eating out", "--date", "2025-01-10")
}

func TestAddAndList(t *testing.T) {
	l := newLedgerCLI(t)

	out := l.mustRun("add", "--amount", "50", "--payer", "Alice", "--participants", "Alice,Bob",
		"--category", "Eating out", "--date", "2025-01-10")
	assert.Equal(t, "Added entry 1: 50.00 EUR paid by Alice (Eating out)\n", out)

	out = l.mustRun("list", "--year", "2025", "--month", "1")
	assert.Contains(t, out, "Eating out")
	assert.Contains(t, out, "Alice, Bob")

	out = l.mustRun("list", "--year", "2024")
	assert.Equal(t, "No entries\n", out)

	out = l.mustRun("list", "--json")
	assert.Contains(t, out, `"payer": "Alice"`)

	_, err := os.Stat(l.dataFile)
	assert.NoError(t, err, "the ledger is persisted to the data file")
}

func TestAddValidation(t *testing.T) {
	l := newLedgerCLI(t)

	_, err := l.run("add", "--amount", "0", "--payer", "Alice", "--participants", "Bob")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = l.run("add", "--amount", "10", "--payer", "Alice")
	assert.ErrorIs(t, err, core.ErrValidation, "participants or shares are required")

	_, err = l.run("add", "--payer", "Alice")
	assert.ErrorContains(t, err, "amount")

	_, err = l.run("add", "--amount", "10", "--payer", "Alice", "--share", "Bob")
	assert.ErrorContains(t, err, "expected name=amount")
}

func TestCustomShares(t *testing.T) {
	l := newLedgerCLI(t)
	l.mustRun("add", "--amount", "30", "--payer", "Alice", "--share", "Alice=10", "--share", "Bob=20")

	out := l.mustRun("settle")
	assert.Equal(t, "Bob pays Alice 20.00 EUR\n", out)
}

func TestBalancesAndSettle(t *testing.T) {
	l := newLedgerCLI(t)
	l.addDinner()

	out := l.mustRun("balances")
	assert.Contains(t, out, "EUR")
	assert.Contains(t, out, "25.00")
	assert.Contains(t, out, "-25.00")

	out = l.mustRun("settle", "--verify")
	assert.Contains(t, out, "Bob pays Alice 25.00 EUR")
	assert.Contains(t, out, "Verified")

	out = l.mustRun("balances", "--convert")
	assert.Contains(t, out, "Bob pays Alice 23.75 CHF")
	assert.Contains(t, out, "Total spent: 47.50 CHF")
}

func TestSettleWhenSquare(t *testing.T) {
	l := newLedgerCLI(t)
	assert.Equal(t, "Everyone is square\n", l.mustRun("settle"))
}

func TestEditAndDelete(t *testing.T) {
	l := newLedgerCLI(t)
	l.addDinner()

	out := l.mustRun("edit", "1", "--amount", "60")
	assert.Equal(t, "Updated entry 1: 60.00 EUR paid by Alice (Eating out)\n", out)

	_, err := l.run("edit", "7", "--amount", "60")
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Equal(t, "Deleted entry 1\n", l.mustRun("delete", "1"))
	_, err = l.run("delete", "1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = l.run("delete", "zero")
	assert.ErrorContains(t, err, "invalid entry id")

	l.addDinner()
	lines := strings.Split(strings.TrimSpace(l.mustRun("list")), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "2 "), "ids are not reused after a delete: %q", lines[1])
}

func TestTotalsAndPeriods(t *testing.T) {
	l := newLedgerCLI(t)
	l.addDinner()
	l.mustRun("add", "--amount", "12.5", "--payer", "Bob", "--participants", "Alice",
		"--category", "Groceries", "--date", "2025-03-02")

	out := l.mustRun("totals", "--year", "2025", "--month", "1")
	assert.Contains(t, out, "Eating out")
	assert.NotContains(t, out, "Groceries")

	out = l.mustRun("totals", "--year", "2025")
	assert.Contains(t, out, "Groceries")
	assert.Contains(t, out, "62.50")

	assert.Equal(t, "No expenses\n", l.mustRun("totals", "--year", "2020"))
	assert.Equal(t, "2025: 01 03\n", l.mustRun("periods"))

	_, err := l.run("totals", "--month", "13")
	assert.Error(t, err)
}

func TestCategories(t *testing.T) {
	l := newLedgerCLI(t)

	assert.Equal(t, "Added category \"Travel\"\n", l.mustRun("categories", "add", "Travel"))
	assert.Equal(t, "Category \"Travel\" already exists\n", l.mustRun("categories", "add", "Travel"))
	assert.Contains(t, l.mustRun("categories"), "Travel")

	_, err := l.run("categories", "add", " ")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestClearNeedsConfirmation(t *testing.T) {
	l := newLedgerCLI(t)
	l.addDinner()

	_, err := l.run("clear")
	assert.ErrorContains(t, err, "--yes")

	assert.Equal(t, "Ledger cleared\n", l.mustRun("clear", "--yes"))
	assert.Equal(t, "No entries\n", l.mustRun("list"))
}

func TestExport(t *testing.T) {
	l := newLedgerCLI(t)
	l.addDinner()

	out := l.mustRun("export")
	assert.Contains(t, out, "id,date,amount,unit,payer,participants,category,description,shares")

	path := filepath.Join(l.dir, "out.csv")
	l.mustRun("export", "--year", "2025", "-o", path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1,2025-01-10,50.00,EUR,Alice")
}

func TestStatus(t *testing.T) {
	l := newLedgerCLI(t)
	l.addDinner()

	out := l.mustRun("status")
	assert.Contains(t, out, "Backend: file")
	assert.Contains(t, out, "Durable: true")
	assert.Contains(t, out, "Entries: 1")
	assert.Contains(t, out, "Next id: 2")
}

func TestInvalidConfigFails(t *testing.T) {
	l := newLedgerCLI(t)
	_, err := l.run("--backend", "postgres", "list")
	assert.ErrorContains(t, err, "invalid data backend")
}

func TestVersion(t *testing.T) {
	l := newLedgerCLI(t)
	out := l.mustRun("--version")
	assert.Contains(t, out, "dev (commit: none")
}

func TestParseShares(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    string
		wantErr bool
	}{
		{name: "none", in: nil, want: "{}"},
		{name: "pairs", in: []string{"Alice=10", "Bob=20,5"}, want: `{"Alice":10.00,"Bob":20.50}`},
		{name: "repeat keeps last", in: []string{"Alice=1", "Alice=2"}, want: `{"Alice":2.00}`},
		{name: "missing amount", in: []string{"Alice"}, wantErr: true},
		{name: "bad amount", in: []string{"Alice=x"}, wantErr: true},
		{name: "blank name", in: []string{"=3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseShares(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			data, err := got.MarshalJSON()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}
