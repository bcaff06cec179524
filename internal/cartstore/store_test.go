package cartstore

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type backendMock struct {
	mock.Mock
	// 呼び出し中に差し込む処理（同時更新の再現用）
	during func()
}

func (m *backendMock) Fetch(ctx context.Context) (Snapshot, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(Snapshot)
	return s, args.Error(1)
}

func (m *backendMock) Add(ctx context.Context, ref model.ItemRef, v model.Variant) (Snapshot, error) {
	if m.during != nil {
		f := m.during
		m.during = nil
		f()
	}
	args := m.Called(ctx, ref, v)
	s, _ := args.Get(0).(Snapshot)
	return s, args.Error(1)
}

func (m *backendMock) Subtract(ctx context.Context, ref model.ItemRef, v model.Variant) (Snapshot, error) {
	args := m.Called(ctx, ref, v)
	s, _ := args.Get(0).(Snapshot)
	return s, args.Error(1)
}

func (m *backendMock) Remove(ctx context.Context, itemID int64) (Snapshot, error) {
	args := m.Called(ctx, itemID)
	s, _ := args.Get(0).(Snapshot)
	return s, args.Error(1)
}

func (m *backendMock) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var errBackend = errors.New("network down")

func line(id int64, ref model.ItemRef, size string, price int64, qty int64) Line {
	p := decimal.NewFromInt(price)
	return Line{
		ItemID:    id,
		Ref:       ref,
		Variant:   model.Variant{Size: size},
		Name:      "item",
		UnitPrice: p,
		Quantity:  qty,
		Subtotal:  p.Mul(decimal.NewFromInt(qty)),
		Available: true,
	}
}

func snapshotOf(lines ...Line) Snapshot {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal)
	}
	return Snapshot{Lines: lines, Total: total}
}

func loaded(t *testing.T, b *backendMock, snap Snapshot) *Store {
	t.Helper()
	b.On("Fetch", mock.Anything).Return(snap, nil).Once()
	s := New(b, zaptest.NewLogger(t))
	require.NoError(t, s.Fetch(context.Background()))
	return s
}

func TestStore_Add_ReplacedByServerResponse(t *testing.T) {
	b := new(backendMock)
	ref := model.NewProductRef(1)
	s := loaded(t, b, snapshotOf())

	server := snapshotOf(line(10, ref, "M", 100, 1))
	b.On("Add", mock.Anything, ref, model.Variant{Size: "M"}).Return(server, nil)

	require.NoError(t, s.Add(context.Background(), ref, model.Variant{Size: "M"}))

	got := s.Snapshot()
	require.Len(t, got.Lines, 1)
	assert.Equal(t, int64(10), got.Lines[0].ItemID)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(100)))
}

func TestStore_Add_AppliedBeforeBackendAnswers(t *testing.T) {
	b := new(backendMock)
	ref := model.NewProductRef(1)
	s := loaded(t, b, snapshotOf(line(10, ref, "M", 100, 1)))

	var seen Snapshot
	b.during = func() { seen = s.Snapshot() }
	b.On("Add", mock.Anything, ref, model.Variant{Size: "M"}).
		Return(snapshotOf(line(10, ref, "M", 100, 2)), nil)

	require.NoError(t, s.Add(context.Background(), ref, model.Variant{Size: "M"}))

	// サーバ応答前に手元では既に2個
	require.Len(t, seen.Lines, 1)
	assert.Equal(t, int64(2), seen.Lines[0].Quantity)
	assert.True(t, seen.Total.Equal(decimal.NewFromInt(200)))
}

func TestStore_Add_RevertedOnBackendFailure(t *testing.T) {
	b := new(backendMock)
	ref := model.NewProductRef(1)
	before := snapshotOf(line(10, ref, "M", 100, 1))
	s := loaded(t, b, before)

	b.On("Add", mock.Anything, ref, model.Variant{Size: "M"}).Return(Snapshot{}, errBackend)

	err := s.Add(context.Background(), ref, model.Variant{Size: "M"})
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, before, s.Snapshot())
}

func TestStore_Subtract_RemovesLineAtZero(t *testing.T) {
	b := new(backendMock)
	ref := model.NewCustomRef(3)
	s := loaded(t, b, snapshotOf(line(11, ref, "", 50, 1)))

	b.On("Subtract", mock.Anything, ref, model.Variant{}).Return(Snapshot{}, errBackend).Once()

	// 失敗しても元の1個に戻る
	assert.Error(t, s.Subtract(context.Background(), ref, model.Variant{}))
	require.Len(t, s.Snapshot().Lines, 1)

	b.On("Subtract", mock.Anything, ref, model.Variant{}).Return(snapshotOf(), nil).Once()
	require.NoError(t, s.Subtract(context.Background(), ref, model.Variant{}))
	assert.Empty(t, s.Snapshot().Lines)
	assert.True(t, s.Snapshot().Total.IsZero())
}

func TestStore_Remove_And_Clear(t *testing.T) {
	b := new(backendMock)
	r1, r2 := model.NewProductRef(1), model.NewProductRef(2)
	s := loaded(t, b, snapshotOf(line(10, r1, "M", 100, 1), line(11, r2, "L", 30, 2)))

	b.On("Remove", mock.Anything, int64(10)).Return(snapshotOf(line(11, r2, "L", 30, 2)), nil)
	require.NoError(t, s.Remove(context.Background(), 10))
	require.Len(t, s.Snapshot().Lines, 1)
	assert.True(t, s.Snapshot().Total.Equal(decimal.NewFromInt(60)))

	b.On("Clear", mock.Anything).Return(errBackend).Once()
	assert.Error(t, s.Clear(context.Background()))
	assert.Len(t, s.Snapshot().Lines, 1)

	b.On("Clear", mock.Anything).Return(nil).Once()
	require.NoError(t, s.Clear(context.Background()))
	assert.Empty(t, s.Snapshot().Lines)
}

func TestStore_FetchFailureKeepsSnapshot(t *testing.T) {
	b := new(backendMock)
	ref := model.NewProductRef(1)
	before := snapshotOf(line(10, ref, "M", 100, 3))
	s := loaded(t, b, before)

	b.On("Fetch", mock.Anything).Return(Snapshot{}, errBackend).Once()
	assert.ErrorIs(t, s.Fetch(context.Background()), errBackend)
	assert.Equal(t, before, s.Snapshot())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	b := new(backendMock)
	ref := model.NewProductRef(1)
	s := loaded(t, b, snapshotOf(line(10, ref, "M", 100, 1)))

	got := s.Snapshot()
	got.Lines[0].Quantity = 99

	assert.Equal(t, int64(1), s.Snapshot().Lines[0].Quantity)
}

// 失敗した変更の最中に別の変更が入ったら、戻さずにサーバから取り直す
func TestStore_FailureWithInterleavedChangeRefetches(t *testing.T) {
	b := new(backendMock)
	r1, r2 := model.NewProductRef(1), model.NewProductRef(2)
	s := loaded(t, b, snapshotOf())

	b.On("Remove", mock.Anything, int64(5)).Return(snapshotOf(line(20, r2, "", 10, 1)), nil)
	b.during = func() {
		require.NoError(t, s.Remove(context.Background(), 5))
	}
	b.On("Add", mock.Anything, r1, model.Variant{}).Return(Snapshot{}, errBackend)

	server := snapshotOf(line(20, r2, "", 10, 1), line(21, r1, "", 5, 1))
	b.On("Fetch", mock.Anything).Return(server, nil).Once()

	assert.ErrorIs(t, s.Add(context.Background(), r1, model.Variant{}), errBackend)
	assert.Equal(t, server, s.Snapshot())
	b.AssertExpectations(t)
}

func TestStore_InvalidRefRejectedLocally(t *testing.T) {
	b := new(backendMock)
	s := New(b, zaptest.NewLogger(t))

	err := s.Add(context.Background(), model.ItemRef{Kind: "other", ID: 1}, model.Variant{})
	assert.ErrorIs(t, err, model.ErrInvalidRef)
	b.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything)
}
