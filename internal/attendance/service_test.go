package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"presence/internal/ledger"
	"presence/internal/model"
	"presence/internal/store"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (*Service, *store.Memory, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)}
	mem := store.NewMemory()
	mem.SetClock(clock.Now)
	svc := NewService(Clients{Store: mem, Logger: zap.NewNop(), Now: clock.Now})
	return svc, mem, clock
}

func mustSession(t *testing.T, svc *Service, name string) model.Session {
	t.Helper()
	sess, err := svc.CreateSession(context.Background(), SessionInput{Name: name, Course: "Math"})
	require.NoError(t, err)
	return sess
}

func mustStudent(t *testing.T, svc *Service, first, roll string) model.Student {
	t.Helper()
	st, err := svc.CreateStudent(context.Background(), model.Student{FirstName: first, LastName: "Doe", RollNumber: roll})
	require.NoError(t, err)
	return st
}

// fakeLedger is a scriptable ledger collaborator.
type fakeLedger struct {
	authorized bool
	err        error
	calls      []ledger.Entry
	records    []ledger.Record
	readErr    error
}

var errLedgerDown = errors.New("bridge unreachable")

func (f *fakeLedger) Authorized(string) bool { return f.authorized }

func (f *fakeLedger) AddAttendanceRecord(_ context.Context, e ledger.Entry) (ledger.Receipt, error) {
	f.calls = append(f.calls, e)
	if f.err != nil {
		return ledger.Receipt{}, f.err
	}
	return ledger.Receipt{RecordID: "rec-1", TransactionID: "0xtx"}, nil
}

func (f *fakeLedger) RecordsBySession(context.Context, string) ([]ledger.Record, error) {
	return f.records, f.readErr
}

func countWrites(mem *store.Memory, op, collection string) int {
	n := 0
	for _, w := range mem.Writes() {
		if w.Op == op && w.Collection == collection {
			n++
		}
	}
	return n
}
