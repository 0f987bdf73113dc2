package google

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"carservice/internal/events"
	"carservice/internal/model"
	"carservice/internal/orders"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValues struct {
	appended [][]interface{}
	updates  map[string][]interface{}
}

func (f *fakeValues) Append(_ context.Context, _, rng string, values [][]interface{}) (string, error) {
	f.appended = append(f.appended, values[0])
	return fmt.Sprintf("Orders!A%d:M%d", len(f.appended)+1, len(f.appended)+1), nil
}

func (f *fakeValues) Update(_ context.Context, _, rng string, values [][]interface{}) error {
	if f.updates == nil {
		f.updates = make(map[string][]interface{})
	}
	f.updates[rng] = values[0]
	return nil
}

func newTestService(api valuesAPI) *SheetsService {
	logger := zerolog.New(io.Discard)
	return newSheetsService(api, "sheet-id", "", &logger)
}

func TestOrderRowValues(t *testing.T) {
	createdAt := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	updatedAt := time.Date(2026, 3, 11, 11, 0, 0, 0, time.UTC)
	o := &model.Order{
		ID: 123, ClientName: "Иван", ClientContact: "+79990000010",
		MasterName: "Пётр", MasterContact: "+79990000020",
		Status: model.OrderWait, Description: "Замена масла",
		Vehicle: model.Vehicle{Brand: "Lada", Model: "Vesta", Year: 2020, Plate: "А123ВС77", Mileage: 41000},
		Grade:   0, CreatedAt: createdAt, UpdatedAt: updatedAt,
	}

	expected := []interface{}{
		int64(123), "Иван", "+79990000010", "Пётр", "+79990000020", "wait",
		"Замена масла", "Lada Vesta 2020", "А123ВС77", 41000, 0,
		"2026-03-10 10:00:00", "2026-03-11 11:00:00",
	}
	assert.Equal(t, expected, orderRowValues(o))
	assert.Len(t, orderHeaders, len(expected))
}

func TestUpsertOrderAppendsThenUpdates(t *testing.T) {
	api := &fakeValues{}
	s := newTestService(api)
	ctx := context.Background()

	o := &model.Order{ID: 1, Status: model.OrderInWork}
	require.NoError(t, s.UpsertOrder(ctx, o))
	require.Len(t, api.appended, 1)

	row, ok := s.getCachedRow(1)
	require.True(t, ok)
	assert.Equal(t, 2, row)

	o.Status = model.OrderWait
	require.NoError(t, s.UpsertOrder(ctx, o))
	assert.Len(t, api.appended, 1)
	assert.Equal(t, "wait", api.updates["Orders!A2"][5])
}

func TestCacheOperations(t *testing.T) {
	s := newTestService(&fakeValues{})

	s.setCachedRow(100, 5)
	row, ok := s.getCachedRow(100)
	assert.True(t, ok)
	assert.Equal(t, 5, row)

	s.deleteCacheRow(100)
	_, ok = s.getCachedRow(100)
	assert.False(t, ok)

	s.setCachedRow(200, 10)
	s.ClearCache()
	_, ok = s.getCachedRow(200)
	assert.False(t, ok)
}

func TestRowFromRange(t *testing.T) {
	row, ok := rowFromRange("Orders!A17:M17")
	assert.True(t, ok)
	assert.Equal(t, 17, row)

	_, ok = rowFromRange("")
	assert.False(t, ok)
}

func TestSubscribeQueuesOrderEvents(t *testing.T) {
	api := &fakeValues{}
	s := newTestService(api)
	logger := zerolog.New(io.Discard)
	bus := events.NewEventBus(&logger)
	s.Subscribe(bus)

	require.NoError(t, bus.PublishJSON(orders.EventDeleted, orders.Event{Action: "delete", Order: model.Order{ID: 9}}))
	require.NoError(t, bus.PublishJSON("appointment.booked", map[string]int{"id": 1}))

	require.Len(t, s.queue, 1)
	o := <-s.queue
	assert.Equal(t, int64(9), o.ID)
	assert.Equal(t, model.OrderStatus("deleted"), o.Status)
}
