package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCycle(t *testing.T) {
	okBefore := testutil.ToFloat64(CyclesTotal.WithLabelValues("test", "ok"))
	errBefore := testutil.ToFloat64(CyclesTotal.WithLabelValues("test", "error"))

	RecordCycle("test", nil, time.Second)
	RecordCycle("test", errors.New("boom"), time.Second)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(CyclesTotal.WithLabelValues("test", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(CyclesTotal.WithLabelValues("test", "error")))
}

func TestAddItemsIgnoresNonPositive(t *testing.T) {
	before := testutil.ToFloat64(ItemsTotal.WithLabelValues(StageMatched))
	AddItems(StageMatched, 0)
	AddItems(StageMatched, 3)
	assert.Equal(t, before+3, testutil.ToFloat64(ItemsTotal.WithLabelValues(StageMatched)))
}

func TestSetHeartbeat(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	SetHeartbeat(at)
	assert.Equal(t, float64(1_700_000_000), testutil.ToFloat64(LastHeartbeat))
}
