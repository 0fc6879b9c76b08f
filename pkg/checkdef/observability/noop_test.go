package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopImplementations(t *testing.T) {
	ctx := context.Background()

	assert.NotPanics(t, func() {
		var m MetricsRecorder = NoopMetrics{}
		m.RecordCheckExecution(ctx, "c", "script", "built", time.Second)
		m.RecordCacheLookup(ctx, "c", true)
		m.RecordChecklistRun(ctx, "foo", true, time.Second)
	})

	var sm SpanManager = NoopSpanManager{}
	runCtx, span := sm.StartRunSpan(ctx, "foo", "run")
	assert.Equal(t, ctx, runCtx)
	assert.False(t, span.IsRecording())

	checkCtx, span := sm.StartCheckSpan(ctx, "c", "script")
	assert.Equal(t, ctx, checkCtx)
	sm.EndSpanWithError(span, errors.New("x"))
	sm.AddSpanEvent(ctx, "e")
}
